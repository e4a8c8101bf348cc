package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "order-analytics/internal/errors"
	"order-analytics/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

//go:embed scripts/extend_lock.lua
var extendLockScript string

const (
	latestKey     = "kpis:latest"
	runHistoryKey = "kpis:runs"
	historyLength = 20
)

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
	extendScript  *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
		extendScript:  redis.NewScript(extendLockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SetLatest stores the snapshot of the latest successful run and pushes its
// run id onto the bounded run history
func (c *Client) SetLatest(ctx context.Context, snap *models.RunSnapshot, ttl time.Duration) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, latestKey, payload, ttl)
	pipe.LPush(ctx, runHistoryKey, snap.RunID)
	pipe.LTrim(ctx, runHistoryKey, 0, historyLength-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache snapshot: %w", err)
	}
	return nil
}

// GetLatest returns the cached snapshot or ErrNoResults when none exists
func (c *Client) GetLatest(ctx context.Context) (*models.RunSnapshot, error) {
	payload, err := c.rdb.Get(ctx, latestKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrNoResults
	}
	if err != nil {
		return nil, err
	}

	var snap models.RunSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// RecentRunIDs returns the ids of the latest cached runs, newest first
func (c *Client) RecentRunIDs(ctx context.Context) ([]string, error) {
	return c.rdb.LRange(ctx, runHistoryKey, 0, historyLength-1).Result()
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// LookupIdempotencyKey returns the value stored under an idempotency key
func (c *Client) LookupIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	value, err := c.rdb.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// AcquireLock acquires a distributed lock. The returned token must be passed
// to ReleaseLock so that only the owner can release it.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ExtendLock pushes the expiry of a held lock forward
func (c *Client) ExtendLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error) {
	result, err := c.extendScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token, ttl.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("extend lock script failed: %w", err)
	}
	n, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return n == 1, nil
}

// ReleaseLock releases a distributed lock held with token
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}
