package coordinator

import (
	"github.com/dmitrymomot/sessioncore/core/broker"
	"github.com/dmitrymomot/sessioncore/core/registry"
	"github.com/dmitrymomot/sessioncore/core/server"
	"github.com/dmitrymomot/sessioncore/core/supervisor"
	"github.com/dmitrymomot/sessioncore/integration/redis"
	"github.com/dmitrymomot/sessioncore/pkg/ratelimiter"
)

// Config aggregates the configuration of every component.
type Config struct {
	Broker     broker.Config
	RateLimit  ratelimiter.Config
	Registry   registry.Config
	Supervisor supervisor.Config
	Server     server.Config
	Redis      redis.Config

	AppName  string `env:"APP_NAME" envDefault:"sessioncore"`
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// InboundQueue receives frames read from websocket clients.
	InboundQueue string `env:"INBOUND_QUEUE" envDefault:"inbound_messages"`
}

// DefaultConfig returns a Config with every component at its defaults.
func DefaultConfig() Config {
	return Config{
		Broker:       broker.DefaultConfig(),
		RateLimit:    ratelimiter.DefaultConfig(),
		Registry:     registry.DefaultConfig(),
		Supervisor:   supervisor.DefaultConfig(),
		Server:       server.DefaultConfig(),
		Redis:        redis.DefaultConfig(),
		AppName:      "sessioncore",
		Env:          "development",
		LogLevel:     "info",
		InboundQueue: "inbound_messages",
	}
}
