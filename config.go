package stonebed

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds session configuration. The zero value opens an in-memory
// database with engine defaults for all limits.
type Config struct {
	// Path is the storage directory. Empty means in-memory.
	Path string `yaml:"path"`
	// MemoryLimit caps engine memory in megabytes. 0 means no limit.
	MemoryLimit int `yaml:"memory_limit"`
	// QueryTimeout is the per-query timeout in milliseconds. 0 disables it.
	QueryTimeout int `yaml:"query_timeout"`
	// SessionTimeout is the session timeout in milliseconds. 0 disables it.
	SessionTimeout int `yaml:"session_timeout"`
	// Threads is the engine worker thread count. 0 lets the engine decide.
	Threads int `yaml:"threads"`
}

// options translates the config into the engine's open options.
func (c Config) options() Options {
	return Options{
		MemoryLimit:    c.MemoryLimit,
		QueryTimeout:   c.QueryTimeout,
		SessionTimeout: c.SessionTimeout,
		Threads:        c.Threads,
	}
}

// LoadConfig reads a YAML session configuration file.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// SessionOption configures a Session before it is opened.
type SessionOption func(*Session)

// WithPath sets the storage directory. Empty keeps the in-memory default.
func WithPath(path string) SessionOption {
	return func(s *Session) { s.cfg.Path = path }
}

// WithMemoryLimit caps engine memory in megabytes.
func WithMemoryLimit(mb int) SessionOption {
	return func(s *Session) { s.cfg.MemoryLimit = mb }
}

// WithQueryTimeout sets the per-query timeout in milliseconds.
func WithQueryTimeout(ms int) SessionOption {
	return func(s *Session) { s.cfg.QueryTimeout = ms }
}

// WithSessionTimeout sets the session timeout in milliseconds.
func WithSessionTimeout(ms int) SessionOption {
	return func(s *Session) { s.cfg.SessionTimeout = ms }
}

// WithThreads sets the engine worker thread count.
func WithThreads(n int) SessionOption {
	return func(s *Session) { s.cfg.Threads = n }
}

// WithConfig replaces the whole configuration, typically one produced by
// LoadConfig. Options applied after it still take effect.
func WithConfig(cfg Config) SessionOption {
	return func(s *Session) { s.cfg = cfg }
}

// WithRegistry attaches the session to a specific registry instead of the
// process-wide default.
func WithRegistry(r *Registry) SessionOption {
	return func(s *Session) { s.registry = r }
}

// WithLogger sets the session logger.
func WithLogger(log *slog.Logger) SessionOption {
	return func(s *Session) { s.log = log }
}
