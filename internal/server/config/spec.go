// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration for rxhttp-server.
type ServerConfig struct {
	Server  ServerSection  `koanf:"server"`
	Metrics MetricsSection `koanf:"metrics"`
	Trace   TraceSection   `koanf:"trace"`
	Log     LogSection     `koanf:"log"`
}

// ServerSection configures the HTTP listener and admission.
type ServerSection struct {
	HTTP      HTTPConfig      `koanf:"http"`
	Admission AdmissionConfig `koanf:"admission"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr string `koanf:"addr"`

	// CloseGraceDelay is the pause between a response that ends the
	// connection and the close of the socket.
	CloseGraceDelay time.Duration `koanf:"close_grace_delay"`

	// ReadTimeout bounds reading one request head or body item.
	ReadTimeout time.Duration `koanf:"read_timeout"`

	// IdleTimeout bounds the wait for the next request on a kept-alive
	// connection.
	IdleTimeout time.Duration `koanf:"idle_timeout"`

	WriteTimeout time.Duration `koanf:"write_timeout"`

	MaxHeaderSize int `koanf:"max_header_size"`
	MaxChunkSize  int `koanf:"max_chunk_size"`

	// SplicePrefetch is the number of body items read ahead with the head.
	SplicePrefetch int `koanf:"splice_prefetch"`
}

// AdmissionConfig configures the connection filters.
type AdmissionConfig struct {
	// AllowList holds IPs and CIDR blocks. Empty admits everyone.
	AllowList []string `koanf:"allow_list"`

	// RateLimit is new connections per second per remote IP. Zero disables it.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// MetricsSection configures the Prometheus endpoint.
type MetricsSection struct {
	Enabled   bool   `koanf:"enabled"`
	Addr      string `koanf:"addr"`
	Path      string `koanf:"path"`
	AuthToken string `koanf:"auth_token"`
}

// TraceSection configures subscription tracing.
type TraceSection struct {
	Subscriptions bool `koanf:"subscriptions"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
