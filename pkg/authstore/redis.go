package authstore

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores the record under a single key. Every save and delete
// publishes on a companion channel, so other processes holding the same key
// observe session changes through Watch. Suited to deployments where the
// client layer runs on several hosts behind one login.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend creates a redis-backed durable scope under the given key.
// An empty key defaults to "fittly:auth".
func NewRedisBackend(client *redis.Client, key string) (*RedisBackend, error) {
	if client == nil {
		return nil, ErrNoClient
	}
	if key == "" {
		key = "fittly:auth"
	}
	return &RedisBackend{client: client, key: key}, nil
}

func (r *RedisBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (r *RedisBackend) Save(ctx context.Context, data []byte) error {
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return err
	}
	// Best-effort: a lost notification only delays visibility until the
	// next read, which the eventually-consistent contract allows.
	_ = r.client.Publish(ctx, r.changeChannel(), "save").Err()
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return err
	}
	_ = r.client.Publish(ctx, r.changeChannel(), "delete").Err()
	return nil
}

// Watch subscribes to the record's change channel and forwards every
// publication as a payloadless wake-up.
func (r *RedisBackend) Watch(ctx context.Context) (<-chan struct{}, error) {
	pubsub := r.client.Subscribe(ctx, r.changeChannel())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer pubsub.Close()
		defer close(ch)
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()

	return ch, nil
}

func (r *RedisBackend) changeChannel() string {
	return r.key + ":changed"
}
