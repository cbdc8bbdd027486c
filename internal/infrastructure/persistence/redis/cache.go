// Package redis implements the Redis side of the gamification service:
//   - LeaderboardCache: ranked pages served from sorted sets
//   - Locker: cross-process job locks with SET NX PX
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	Host     string
	Port     int
	Password string
	// DB is the Redis database number (0-15).
	DB int

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration

	// LeaderboardTTL bounds how long a cached ranking outlives its last rebuild.
	LeaderboardTTL time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           6379,
		PoolSize:       10,
		MinIdleConns:   2,
		MaxRetries:     3,
		DialTimeout:    5 * time.Second,
		ReadTimeout:    3 * time.Second,
		WriteTimeout:   3 * time.Second,
		PoolTimeout:    4 * time.Second,
		LeaderboardTTL: TTLLeaderboardCache,
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrCacheConnection is returned when Redis cannot be reached.
	ErrCacheConnection = errors.New("cache: connection failed")

	// ErrCacheCorrupt is returned when a cached entry cannot be decoded.
	ErrCacheCorrupt = errors.New("cache: corrupt entry")

	// ErrLockNotHeld is returned when releasing a lock whose token expired
	// or was taken over.
	ErrLockNotHeld = errors.New("lock: not held")
)

// ══════════════════════════════════════════════════════════════════════════════
// KEYS AND TTLS
// ══════════════════════════════════════════════════════════════════════════════

const (
	PrefixLeaderboard = "leaderboard:"
	PrefixLock        = "lock:job:"

	// TTLLeaderboardCache outlives two default recompute intervals.
	TTLLeaderboardCache = 12 * time.Minute
)

// LeaderboardKey returns the sorted-set key of a scope: "leaderboard:global"
// or "leaderboard:course:<id>".
func LeaderboardKey(courseID *int64) string {
	if courseID == nil {
		return PrefixLeaderboard + "global"
	}
	return PrefixLeaderboard + "course:" + strconv.FormatInt(*courseID, 10)
}

// LockKey returns the key guarding a scheduled job.
func LockKey(job string) string {
	return PrefixLock + job
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client wraps a go-redis client shared by the cache and the locker.
type Client struct {
	rdb    *redis.Client
	config Config
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}

	return &Client{rdb: rdb, config: cfg}, nil
}

// Redis returns the underlying go-redis client.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks if Redis is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
