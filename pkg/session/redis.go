package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/milan604/feedclient/pkg/errors"
)

// RedisStorage keeps the session in Redis so several processes share one login.
type RedisStorage struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	owned  bool
}

// RedisOption configures RedisStorage.
type RedisOption func(*RedisStorage)

// WithTTL expires the stored keys after ttl. Zero keeps them until cleared.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *RedisStorage) { r.ttl = ttl }
}

// NewRedisStorage uses an existing client; Close leaves the client open.
func NewRedisStorage(client redis.UniversalClient, prefix string, opts ...RedisOption) *RedisStorage {
	r := &RedisStorage{client: client, prefix: prefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OpenRedis dials addr and checks the connection.
func OpenRedis(ctx context.Context, addr, prefix string, opts ...RedisOption) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "redis ping %s", addr)
	}
	r := NewRedisStorage(client, prefix, opts...)
	r.owned = true
	return r, nil
}

func (r *RedisStorage) key(k string) string { return r.prefix + k }

func (r *RedisStorage) Load(ctx context.Context) (map[string]string, error) {
	names := make([]string, len(Keys))
	for i, k := range Keys {
		names[i] = r.key(k)
	}
	got, err := r.client.MGet(ctx, names...).Result()
	if err != nil {
		return nil, err
	}
	values := map[string]string{}
	for i, v := range got {
		if s, ok := v.(string); ok {
			values[Keys[i]] = s
		}
	}
	return values, nil
}

// Save writes every value in one MULTI/EXEC. With a TTL, keys not written are expired along with
// the written ones so the session always lapses as a whole.
func (r *RedisStorage) Save(ctx context.Context, values map[string]string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, r.key(k), v, r.ttl)
		}
		if r.ttl > 0 {
			for _, k := range Keys {
				if _, written := values[k]; !written {
					pipe.Expire(ctx, r.key(k), r.ttl)
				}
			}
		}
		return nil
	})
	return err
}

func (r *RedisStorage) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = r.key(k)
	}
	return r.client.Del(ctx, names...).Err()
}

func (r *RedisStorage) Close() error {
	if r.owned {
		return r.client.Close()
	}
	return nil
}
