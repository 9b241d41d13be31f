package registry

import "time"

// Config holds admission, eviction and heartbeat settings.
type Config struct {
	MaxConnections  int           `env:"REGISTRY_MAX_CONNECTIONS" envDefault:"100"`
	CPUThreshold    float64       `env:"REGISTRY_CPU_THRESHOLD" envDefault:"80"`    // Percent; connects are refused above it
	MemoryThreshold float64       `env:"REGISTRY_MEMORY_THRESHOLD" envDefault:"80"` // Percent; connects are refused above it
	IdleTimeout     time.Duration `env:"REGISTRY_IDLE_TIMEOUT" envDefault:"30m"`
	CleanupInterval time.Duration `env:"REGISTRY_CLEANUP_INTERVAL" envDefault:"60s"`
	// LoadWarnRatio is the share of MaxConnections above which a high load warning is raised.
	LoadWarnRatio     float64       `env:"REGISTRY_LOAD_WARN_RATIO" envDefault:"0.8"`
	HeartbeatInterval time.Duration `env:"REGISTRY_HEARTBEAT_INTERVAL" envDefault:"30s"`
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxConnections:    100,
		CPUThreshold:      80,
		MemoryThreshold:   80,
		IdleTimeout:       30 * time.Minute,
		CleanupInterval:   60 * time.Second,
		LoadWarnRatio:     0.8,
		HeartbeatInterval: 30 * time.Second,
	}
}
