package authstore

import (
	"context"

	"github.com/fittly/shopkit/pkg/redis"
)

// Config selects the durable backend. When RedisURL is set the record is
// kept in redis and shared across hosts; otherwise it lives in a per-user
// state file.
type Config struct {
	StatePath string `env:"SHOPKIT_AUTH_STATE_PATH"`                        // empty means <UserConfigDir>/fittly/auth.json
	RedisURL  string `env:"SHOPKIT_AUTH_REDIS_URL"`                         // e.g. redis://:password@localhost:6379/0
	RedisKey  string `env:"SHOPKIT_AUTH_REDIS_KEY" envDefault:"fittly:auth"`
}

// NewFromConfig builds a Store with the durable backend the config selects.
func NewFromConfig(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.RedisURL != "" {
		client, err := redis.Connect(ctx, redis.Config{
			ConnectionURL: cfg.RedisURL,
			RetryAttempts: 1,
		})
		if err != nil {
			return nil, err
		}
		backend, err := NewRedisBackend(client, cfg.RedisKey)
		if err != nil {
			return nil, err
		}
		return New(backend, opts...), nil
	}

	backend, err := NewFileBackend(cfg.StatePath)
	if err != nil {
		return nil, err
	}
	return New(backend, opts...), nil
}
