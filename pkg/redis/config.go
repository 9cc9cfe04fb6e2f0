package redis

import "time"

// Config describes a redis connection. ConnectionURL follows the
// "redis://:password@host:6379/0" form.
type Config struct {
	ConnectionURL  string        `env:"SHOPKIT_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `env:"SHOPKIT_REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"SHOPKIT_REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"SHOPKIT_REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}
