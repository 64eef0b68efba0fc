package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyHTTP(&cfg.Server.HTTP); err != nil {
		return err
	}
	if err := verifyAdmission(&cfg.Server.Admission); err != nil {
		return err
	}
	if err := verifyMetrics(&cfg.Metrics, cfg.Server.HTTP.Addr); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyHTTP(cfg *HTTPConfig) error {
	if cfg.Addr == "" {
		return errors.New("server.http.addr is required")
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("server.http.addr: %w", err)
	}
	for name, d := range map[string]time.Duration{
		"close_grace_delay": cfg.CloseGraceDelay,
		"read_timeout":      cfg.ReadTimeout,
		"idle_timeout":      cfg.IdleTimeout,
		"write_timeout":     cfg.WriteTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("server.http.%s must not be negative", name)
		}
	}
	if cfg.MaxHeaderSize < 256 {
		return errors.New("server.http.max_header_size must be at least 256")
	}
	if cfg.MaxChunkSize < 1 {
		return errors.New("server.http.max_chunk_size must be positive")
	}
	if cfg.SplicePrefetch < 0 {
		return errors.New("server.http.splice_prefetch must not be negative")
	}
	return nil
}

func verifyAdmission(cfg *AdmissionConfig) error {
	for _, entry := range cfg.AllowList {
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return fmt.Errorf("server.admission.allow_list: %w", err)
			}
			continue
		}
		if net.ParseIP(entry) == nil {
			return fmt.Errorf("server.admission.allow_list: invalid IP %q", entry)
		}
	}
	if cfg.RateLimit < 0 || cfg.RateBurst < 0 {
		return errors.New("server.admission rate settings must not be negative")
	}
	return nil
}

func verifyMetrics(cfg *MetricsSection, httpAddr string) error {
	if !cfg.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("metrics.addr: %w", err)
	}
	if cfg.Addr == httpAddr {
		return errors.New("metrics.addr conflicts with server.http.addr")
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("log.level: unknown level %q", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format: unknown format %q", cfg.Format)
	}
	return nil
}
