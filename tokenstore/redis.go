package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a [Store] backed by two Redis string keys. It lets several
// client processes (for example a CLI and a background worker) share one
// logged-in session.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis returns a Redis-backed store. Keys are "<prefix>:token" and
// "<prefix>:refreshToken", or the bare key names when prefix is empty.
// A non-zero ttl bounds how long a stale pair survives in Redis.
func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if ttl < 0 {
		ttl = 0
	}
	return &Redis{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *Redis) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + ":" + name
}

// Load implements [Store].
//
//	Performance: 1 Redis MGET.
func (s *Redis) Load(ctx context.Context) (Pair, error) {
	values, err := s.redis.MGet(ctx, s.key(AccessKey), s.key(RefreshKey)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Pair{}, nil
		}
		return Pair{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var pair Pair
	if len(values) > 0 {
		pair.Access, _ = values[0].(string)
	}
	if len(values) > 1 {
		pair.Refresh, _ = values[1].(string)
	}
	return pair, nil
}

// Save implements [Store]. Both keys are written in one MULTI/EXEC.
func (s *Redis) Save(ctx context.Context, pair Pair) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.write(ctx, pipe, AccessKey, pair.Access)
		s.write(ctx, pipe, RefreshKey, pair.Refresh)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// SetAccess implements [Store].
func (s *Redis) SetAccess(ctx context.Context, token string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.write(ctx, pipe, AccessKey, token)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Clear implements [Store].
func (s *Redis) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key(AccessKey), s.key(RefreshKey)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Redis) write(ctx context.Context, pipe redis.Pipeliner, name, value string) {
	if value == "" {
		pipe.Del(ctx, s.key(name))
		return
	}
	pipe.Set(ctx, s.key(name), value, s.ttl)
}
