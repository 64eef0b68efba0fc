// Package confloader provides configuration loading mechanism.
//
// It uses Koanf to load configuration from multiple sources with priority:
// Flag > Env > File > Default.
package confloader

import (
	"fmt"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "RXHTTP_"

// envLevelSeparator separates nesting levels in environment variable names.
// A single underscore stays part of the key.
const envLevelSeparator = "__"

// Loader loads configuration from multiple sources.
type Loader struct {
	mu        sync.Mutex
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	flags     map[string]any
	loaded    bool
}

// Option is a function that configures the Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the configuration file path.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithFlags sets values that override every other source. Keys use the
// dotted koanf form, e.g. "server.http.addr".
func WithFlags(values map[string]any) Option {
	return func(l *Loader) {
		l.flags = values
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FilePath returns the configured file path, or "".
func (l *Loader) FilePath() string { return l.filePath }

// Load loads configuration from all sources and unmarshals into target.
// target should already hold the defaults; keys absent from every source
// keep their value. Later sources override earlier ones:
//  1. Configuration file (YAML)
//  2. Environment variables
//  3. Flags
func (l *Loader) Load(target any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(l.k, target)
}

// Reload reads every source again from scratch and unmarshals into target.
// On error the previously loaded values are kept.
func (l *Loader) Reload(target any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := koanf.New(".")
	if err := l.load(k, target); err != nil {
		return err
	}
	l.k = k
	return nil
}

func (l *Loader) load(k *koanf.Koanf, target any) error {
	if l.filePath != "" {
		if err := loadFile(k, l.filePath); err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
	}
	if err := loadEnv(k, l.envPrefix); err != nil {
		return err
	}
	if len(l.flags) > 0 {
		if err := k.Load(mapProvider(l.flags), nil); err != nil {
			return fmt.Errorf("load flags: %w", err)
		}
	}
	if err := k.Unmarshal("", target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	l.loaded = true
	return nil
}

// LoadFile merges a YAML file into the loaded configuration.
func (l *Loader) LoadFile(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return loadFile(l.k, path)
}

func loadFile(k *koanf.Koanf, path string) error {
	if path == "" {
		return nil
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("load file %s: %w", path, err)
	}
	return nil
}

// LoadEnv merges prefixed environment variables into the loaded
// configuration. Nesting levels are separated by a double underscore:
// RXHTTP_SERVER__HTTP__CLOSE_GRACE_DELAY=50ms sets
// server.http.close_grace_delay.
func (l *Loader) LoadEnv() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return loadEnv(l.k, l.envPrefix)
}

func loadEnv(k *koanf.Koanf, prefix string) error {
	if err := k.Load(env.Provider(prefix, ".", envKey(prefix)), nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

func envKey(prefix string) func(string) string {
	return func(s string) string {
		s = strings.TrimPrefix(s, prefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, envLevelSeparator, ".")
	}
}

// LoadMap merges a map into the loaded configuration.
func (l *Loader) LoadMap(data map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.k.Load(mapProvider(data), nil); err != nil {
		return fmt.Errorf("load map: %w", err)
	}
	return nil
}

// Unmarshal unmarshals the loaded configuration into the target struct.
func (l *Loader) Unmarshal(target any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.k.Unmarshal("", target)
}

// GetString returns a string value from the configuration.
func (l *Loader) GetString(key string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.k.String(key)
}

// GetBool returns a bool value from the configuration.
func (l *Loader) GetBool(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.k.Bool(key)
}

// IsLoaded returns true if configuration has been loaded.
func (l *Loader) IsLoaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// Keys returns all configuration keys.
func (l *Loader) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.k.Keys()
}
