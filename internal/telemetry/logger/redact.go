package logger

import (
	"log/slog"
	"strings"
)

const redacted = "***REDACTED***"

// Keys containing one of these, in any case, never have their string value
// logged. Header fields such as Proxy-Authorization and Set-Cookie match too.
var secretKeys = []string{
	"authorization",
	"cookie",
	"password",
	"secret",
	"token",
	"credential",
}

// HTTP auth schemes. A string value starting with one is a credential
// whatever its key; the scheme name is kept.
var authSchemes = []string{"Bearer ", "Basic ", "Digest "}

// redact is the ReplaceAttr hook of every handler built by New. slog calls
// it for the members of groups as well.
func redact(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString {
		return a
	}
	v := a.Value.String()
	if v == "" {
		return a
	}
	for _, scheme := range authSchemes {
		if len(v) >= len(scheme) && strings.EqualFold(v[:len(scheme)], scheme) {
			return slog.String(a.Key, v[:len(scheme)]+redacted)
		}
	}
	key := strings.ToLower(a.Key)
	for _, s := range secretKeys {
		if strings.Contains(key, s) {
			return slog.String(a.Key, redacted)
		}
	}
	return a
}
