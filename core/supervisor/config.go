package supervisor

import "time"

// Config holds supervisor settings.
type Config struct {
	ShutdownTimeout time.Duration `env:"SUPERVISOR_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{ShutdownTimeout: 30 * time.Second}
}
