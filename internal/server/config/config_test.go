package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.HTTP.Addr != DefaultHTTPAddr {
		t.Errorf("HTTP.Addr = %q, want %q", cfg.Server.HTTP.Addr, DefaultHTTPAddr)
	}
	if cfg.Server.HTTP.CloseGraceDelay != DefaultCloseGraceDelay {
		t.Errorf("CloseGraceDelay = %v, want %v", cfg.Server.HTTP.CloseGraceDelay, DefaultCloseGraceDelay)
	}
	if cfg.Server.HTTP.MaxHeaderSize != DefaultMaxHeaderSize {
		t.Errorf("MaxHeaderSize = %d, want %d", cfg.Server.HTTP.MaxHeaderSize, DefaultMaxHeaderSize)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics should be disabled by default")
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
	if cfg.Trace.Subscriptions {
		t.Error("Subscription tracing should be off by default")
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, DefaultLogLevel)
	}
	if cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, DefaultLogFormat)
	}

	if err := Verify(cfg); err != nil {
		t.Errorf("Verify(Default()) = %v", err)
	}
}

func TestSanitize(t *testing.T) {
	cfg := Default()
	cfg.Metrics.AuthToken = "super-secret-token-1234567890"

	sanitized := Sanitize(cfg)

	if cfg.Metrics.AuthToken != "super-secret-token-1234567890" {
		t.Error("Original config should not be modified")
	}
	if sanitized.Metrics.AuthToken == cfg.Metrics.AuthToken {
		t.Error("Sanitized config should mask the token")
	}
	if len(sanitized.Metrics.AuthToken) != len(cfg.Metrics.AuthToken) {
		t.Errorf("Masked token length = %d, want %d", len(sanitized.Metrics.AuthToken), len(cfg.Metrics.AuthToken))
	}
}

func TestSanitize_EmptyToken(t *testing.T) {
	if got := Sanitize(Default()).Metrics.AuthToken; got != "" {
		t.Errorf("empty token masked to %q", got)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"a", "****"},
		{"abcd", "****"},
		{"abcde", "ab*de"},
		{"abcdef", "ab**ef"},
		{"1234567890", "12******90"},
	}

	for _, tt := range tests {
		result := maskSecret(tt.input)
		if result != tt.expected {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr string
	}{
		{"defaults", func(*ServerConfig) {}, ""},
		{"empty addr", func(c *ServerConfig) { c.Server.HTTP.Addr = "" }, "server.http.addr is required"},
		{"addr without port", func(c *ServerConfig) { c.Server.HTTP.Addr = "localhost" }, "server.http.addr"},
		{"negative grace", func(c *ServerConfig) { c.Server.HTTP.CloseGraceDelay = -time.Second }, "close_grace_delay"},
		{"negative idle", func(c *ServerConfig) { c.Server.HTTP.IdleTimeout = -1 }, "idle_timeout"},
		{"tiny header limit", func(c *ServerConfig) { c.Server.HTTP.MaxHeaderSize = 10 }, "max_header_size"},
		{"zero chunk", func(c *ServerConfig) { c.Server.HTTP.MaxChunkSize = 0 }, "max_chunk_size"},
		{"negative prefetch", func(c *ServerConfig) { c.Server.HTTP.SplicePrefetch = -1 }, "splice_prefetch"},
		{"bad cidr", func(c *ServerConfig) { c.Server.Admission.AllowList = []string{"10.0.0.0/33"} }, "allow_list"},
		{"bad ip", func(c *ServerConfig) { c.Server.Admission.AllowList = []string{"10.0.0"} }, "allow_list"},
		{"valid allow list", func(c *ServerConfig) {
			c.Server.Admission.AllowList = []string{"10.0.0.0/8", "::1"}
		}, ""},
		{"negative rate", func(c *ServerConfig) { c.Server.Admission.RateLimit = -1 }, "rate"},
		{"metrics port clash", func(c *ServerConfig) {
			c.Metrics.Enabled = true
			c.Metrics.Addr = c.Server.HTTP.Addr
		}, "conflicts"},
		{"metrics bad path", func(c *ServerConfig) {
			c.Metrics.Enabled = true
			c.Metrics.Path = "metrics"
		}, "metrics.path"},
		{"metrics disabled ignores addr", func(c *ServerConfig) { c.Metrics.Addr = "" }, ""},
		{"bad level", func(c *ServerConfig) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *ServerConfig) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Verify(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Verify() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Verify() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
