package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"klarna-checkout-service/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

const (
	lockRetryInterval = 50 * time.Millisecond
	unlockTimeout     = 2 * time.Second
)

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
	lockTTL       time.Duration
	lockWait      time.Duration
	logger        *zap.Logger
}

// NewClient creates a new Redis client. Order locks expire after lockTTL and
// LockOrder waits up to lockWait for a held lock.
func NewClient(addr, password string, db int, lockTTL, lockWait time.Duration, logger *zap.Logger) (*Client, error) {
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
		lockTTL:       lockTTL,
		lockWait:      lockWait,
		logger:        logger,
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func orderLockKey(orderID int64) string {
	return fmt.Sprintf("lock:order:%d", orderID)
}

// LockOrder acquires the per-order lock, retrying until the wait budget is
// spent. It returns models.ErrLockNotAcquired when another holder keeps it.
func (c *Client) LockOrder(ctx context.Context, orderID int64) (func(), error) {
	key := orderLockKey(orderID)
	token := uuid.New().String()
	deadline := time.Now().Add(c.lockWait)

	for {
		ok, err := c.rdb.SetNX(ctx, key, token, c.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire order lock: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("order %d: %w", orderID, models.ErrLockNotAcquired)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}

	return func() {
		// the request context may already be canceled
		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()

		released, err := c.releaseScript.Run(ctx, c.rdb, []string{key}, token).Int64()
		if err != nil {
			c.logger.Error("Failed to release order lock", zap.Int64("order_id", orderID), zap.Error(err))
			return
		}
		if released == 0 {
			c.logger.Warn("Order lock expired before release", zap.Int64("order_id", orderID))
		}
	}, nil
}
