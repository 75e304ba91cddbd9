package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Cache backed by a real or miniredis-simulated Redis
// server.
type RedisCache struct {
	client   *redis.Client
	logger   *slog.Logger
	isClosed bool
}

// NewRedisCache dials addr and verifies the connection with a Ping before
// returning, so callers never hold a Cache that cannot actually reach its
// backend.
func NewRedisCache(cfg Config, logger *slog.Logger) (*RedisCache, error) {
	cfg.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: cfg.MinRetryBackoff,
		MaxRetryBackoff: cfg.MaxRetryBackoff,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("cache: failed to connect to redis", "addr", cfg.Addr, "error", err)
		return nil, (&Error{Message: "failed to connect to redis", Code: "CONNECTION_ERROR"}).withCause(err)
	}

	logger.Info("cache: connected to redis", "addr", cfg.Addr, "db", cfg.DB)
	return &RedisCache{client: client, logger: logger}, nil
}

func (rc *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	if rc.isClosed {
		return ErrConnectionFailed
	}
	val, err := rc.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return ErrNotFound
		}
		return (&Error{Message: "failed to get value from cache", Code: "GET_ERROR"}).withCause(err)
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return (&Error{Message: "failed to unmarshal cache value", Code: "UNMARSHAL_ERROR"}).withCause(err)
	}
	return nil
}

func (rc *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if rc.isClosed {
		return ErrConnectionFailed
	}
	data, err := json.Marshal(value)
	if err != nil {
		return (&Error{Message: "failed to marshal cache value", Code: "MARSHAL_ERROR"}).withCause(err)
	}
	if err := rc.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return (&Error{Message: "failed to set value in cache", Code: "SET_ERROR"}).withCause(err)
	}
	return nil
}

func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	if rc.isClosed {
		return ErrConnectionFailed
	}
	result, err := rc.client.Del(ctx, key).Result()
	if err != nil {
		return (&Error{Message: "failed to delete value from cache", Code: "DELETE_ERROR"}).withCause(err)
	}
	if result == 0 {
		return ErrNotFound
	}
	return nil
}

func (rc *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	if rc.isClosed {
		return false, ErrConnectionFailed
	}
	result, err := rc.client.Exists(ctx, key).Result()
	if err != nil {
		return false, (&Error{Message: "failed to check key existence", Code: "EXISTS_ERROR"}).withCause(err)
	}
	return result > 0, nil
}

func (rc *RedisCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	if rc.isClosed {
		return 0, ErrConnectionFailed
	}
	ttl, err := rc.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, (&Error{Message: "failed to get ttl", Code: "TTL_ERROR"}).withCause(err)
	}
	return ttl, nil
}

func (rc *RedisCache) HealthCheck(ctx context.Context) error {
	if rc.isClosed {
		return ErrConnectionFailed
	}
	if err := rc.client.Ping(ctx).Err(); err != nil {
		return (&Error{Message: "cache health check failed", Code: "HEALTH_CHECK_ERROR"}).withCause(err)
	}
	return nil
}

func (rc *RedisCache) Close() error {
	if rc.isClosed {
		return nil
	}
	rc.isClosed = true
	if err := rc.client.Close(); err != nil {
		return (&Error{Message: "failed to close redis connection", Code: "CLOSE_ERROR"}).withCause(err)
	}
	return nil
}

func (e *Error) withCause(cause error) *Error {
	e.Cause = cause
	return e
}
