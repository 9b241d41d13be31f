package broker

import "time"

// Config holds broker settings loadable from the environment.
type Config struct {
	// DefaultCapacity applies to queues created implicitly by Publish. 0 means unbounded.
	DefaultCapacity int           `env:"BROKER_QUEUE_DEFAULT_CAPACITY" envDefault:"0"`
	PollInterval    time.Duration `env:"BROKER_DISPATCH_POLL_INTERVAL" envDefault:"100ms"`
	MaxRetries      int           `env:"BROKER_MAX_RETRIES" envDefault:"3"`
	ShutdownTimeout time.Duration `env:"BROKER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	// HandlerTimeout bounds a single handler invocation. 0 disables the bound.
	HandlerTimeout time.Duration `env:"BROKER_HANDLER_TIMEOUT" envDefault:"0s"`
	StaleThreshold time.Duration `env:"BROKER_STALE_THRESHOLD" envDefault:"1m"`
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		DefaultCapacity: 0,
		PollInterval:    100 * time.Millisecond,
		MaxRetries:      3,
		ShutdownTimeout: 30 * time.Second,
		StaleThreshold:  time.Minute,
	}
}
