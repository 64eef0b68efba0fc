package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr        = "127.0.0.1:5080"
	DefaultCloseGraceDelay = 100 * time.Millisecond
	DefaultReadTimeout     = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultMaxHeaderSize   = 16 << 10
	DefaultMaxChunkSize    = 1 << 20

	DefaultMetricsAddr = "127.0.0.1:9090"
	DefaultMetricsPath = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:            DefaultHTTPAddr,
				CloseGraceDelay: DefaultCloseGraceDelay,
				ReadTimeout:     DefaultReadTimeout,
				IdleTimeout:     DefaultIdleTimeout,
				WriteTimeout:    DefaultWriteTimeout,
				MaxHeaderSize:   DefaultMaxHeaderSize,
				MaxChunkSize:    DefaultMaxChunkSize,
			},
		},
		Metrics: MetricsSection{
			Enabled: false,
			Addr:    DefaultMetricsAddr,
			Path:    DefaultMetricsPath,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
