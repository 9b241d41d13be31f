package ratelimiter

import (
	"fmt"
	"time"
)

// Config defines fixed-window parameters and state housekeeping.
type Config struct {
	Capacity int           `env:"RATE_LIMIT_CAPACITY" envDefault:"100"` // Requests allowed per window
	Window   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`

	// CleanupInterval is how often stale keys are swept. 0 disables the sweep loop.
	CleanupInterval time.Duration `env:"RATE_LIMIT_CLEANUP_INTERVAL" envDefault:"5m"`
	// StaleAfter is how long a key may go unused before the sweep forgets it.
	StaleAfter time.Duration `env:"RATE_LIMIT_STALE_AFTER" envDefault:"1h"`
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Capacity:        100,
		Window:          60 * time.Second,
		CleanupInterval: 5 * time.Minute,
		StaleAfter:      time.Hour,
	}
}

// Validate checks the parameters a limiter cannot work without.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, c.Capacity)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be positive, got %s", ErrInvalidConfig, c.Window)
	}
	if c.CleanupInterval < 0 || c.StaleAfter < 0 {
		return fmt.Errorf("%w: cleanup durations must not be negative", ErrInvalidConfig)
	}
	return nil
}
