package logger

import (
	"log/slog"
	"net"

	"github.com/yndnr/rxhttp-go/internal/core/domain"
)

// Attribute keys used across connection, exchange and subscription logs.
const (
	KeyConnID    = "conn_id"
	KeyRemote    = "remote"
	KeyMethod    = "method"
	KeyTarget    = "target"
	KeySpanID    = "span_id"
	KeyError     = "error"
	KeyErrorCode = "error_code"
)

// Connection returns the attributes that identify a connection.
func Connection(id string, remote net.Addr) []any {
	addr := ""
	if remote != nil {
		addr = remote.String()
	}
	return []any{slog.String(KeyConnID, id), slog.String(KeyRemote, addr)}
}

// Request returns the attributes that identify a request on its connection.
func Request(method domain.Method, target string) []any {
	return []any{slog.String(KeyMethod, string(method)), slog.String(KeyTarget, target)}
}

// Err returns err as an attribute, followed by its code for domain errors.
func Err(err error) []any {
	if err == nil {
		return nil
	}
	attrs := []any{slog.Any(KeyError, err)}
	if code := domain.GetErrorCode(err); code != "" {
		attrs = append(attrs, slog.String(KeyErrorCode, code))
	}
	return attrs
}
