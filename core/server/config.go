package server

import "time"

// Config holds listener configuration with environment variable support.
// An empty Addr disables the listener.
//
// There are no read or write timeouts: upgraded connections outlive the
// request, per-frame deadlines are set by the session.
type Config struct {
	Addr              string        `env:"WS_ADDR" envDefault:""`
	Path              string        `env:"WS_PATH" envDefault:"/ws"`
	ReadHeaderTimeout time.Duration `env:"WS_READ_HEADER_TIMEOUT" envDefault:"10s"`
	IdleTimeout       time.Duration `env:"WS_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"WS_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxHeaderBytes    int           `env:"WS_MAX_HEADER_BYTES" envDefault:"1048576"`
}

// DefaultConfig returns a Config with sensible defaults and the listener disabled.
func DefaultConfig() Config {
	return Config{
		Path:              "/ws",
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		ShutdownTimeout:   DefaultShutdownTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// NewFromConfig creates a Server from configuration.
// Additional options can override config values.
func NewFromConfig(cfg Config, opts ...Option) (*Server, error) {
	if cfg.Addr == "" {
		return nil, ErrMissingAddress
	}

	configOpts := []Option{
		WithReadHeaderTimeout(cfg.ReadHeaderTimeout),
		WithIdleTimeout(cfg.IdleTimeout),
		WithShutdownTimeout(cfg.ShutdownTimeout),
		WithMaxHeaderBytes(cfg.MaxHeaderBytes),
	}

	return New(cfg.Addr, append(configOpts, opts...)...), nil
}
