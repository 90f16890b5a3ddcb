package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "keydeck:session:"

// RedisStore keeps sessions in redis so several console instances can share
// them and they survive restarts.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr string, ttl time.Duration) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

func (r *RedisStore) Save(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := r.rdb.Set(ctx, redisPrefix+rec.Token, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context, token string) (*Record, error) {
	data, err := r.rdb.Get(ctx, redisPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &rec, nil
}

func (r *RedisStore) Delete(ctx context.Context, token string) error {
	if err := r.rdb.Del(ctx, redisPrefix+token).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (r *RedisStore) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		n      int
	)
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, redisPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("counting sessions: %w", err)
		}
		n += len(keys)
		if next == 0 {
			return n, nil
		}
		cursor = next
	}
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
