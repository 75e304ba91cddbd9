// Package cache provides an optional read-through secondary cache fronting
// the parameter store's read path, for deployments that mirror parameter
// reads to a process other than the one holding the engine (the
// supplementary front-end). It is never required for correctness: the
// durable store and in-process cache (internal/engine) remain the source of
// truth, and every Cache miss simply falls through to the engine.
package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is the interface a read-through layer needs: get/set/delete plus
// the housekeeping a production deployment wants (TTL inspection, health
// checks). It intentionally omits set-member operations — nothing in this
// domain groups values into sets.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// Config configures a Redis-backed Cache.
type Config struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
}

// Error is a cache-layer error with an optional cause and machine-readable
// code, matching the style of the engine's sentinel errors.
type Error struct {
	Message string
	Code    string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(message, code string) *Error { return &Error{Message: message, Code: code} }

var (
	ErrNotFound         = newError("key not found", "NOT_FOUND")
	ErrInvalidConfig    = newError("invalid cache configuration", "CONFIG_ERROR")
	ErrConnectionFailed = newError("connection failed", "CONNECTION_ERROR")
)

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Code == "NOT_FOUND"
}
