package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/set_stock_snapshot.lua
var setStockSnapshotScript string

// pendingMarker is stored under an idempotency key while the first request
// holding it is still running.
const pendingMarker = "__pending__"

// ErrRequestInProgress is returned when an idempotency key is held by a
// request that has not finished.
var ErrRequestInProgress = errors.New("request with this idempotency key is in progress")

// DefaultSnapshotTTL bounds how long a stock snapshot outlives its last write.
const DefaultSnapshotTTL = 10 * time.Minute

type Client struct {
	rdb            *redis.Client
	snapshotScript *redis.Script
	snapshotTTL    time.Duration
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
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:            rdb,
		snapshotScript: redis.NewScript(setStockSnapshotScript),
		snapshotTTL:    DefaultSnapshotTTL,
	}, nil
}

// WithSnapshotTTL sets the expiry applied on every snapshot write. Zero
// disables expiry.
func (c *Client) WithSnapshotTTL(ttl time.Duration) *Client {
	c.snapshotTTL = ttl
	return c
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func stockKey(productID string) string {
	return "stock:" + productID
}

func idempotencyKey(key string) string {
	return "idempotency:" + key
}

// SetStockSnapshot stores the snapshot only if version is newer than the one
// cached. Returns false when the write was ignored as stale.
func (c *Client) SetStockSnapshot(ctx context.Context, productID string, version, total int) (bool, error) {
	result, err := c.snapshotScript.Run(ctx, c.rdb, []string{stockKey(productID)}, version, total, c.snapshotTTL.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("set stock snapshot script failed: %w", err)
	}

	applied, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}

	return applied == 1, nil
}

// GetStockSnapshot returns the cached total and version for a product.
func (c *Client) GetStockSnapshot(ctx context.Context, productID string) (total, version int, found bool, err error) {
	result, err := c.rdb.HGetAll(ctx, stockKey(productID)).Result()
	if err != nil {
		return 0, 0, false, err
	}

	if len(result) == 0 {
		return 0, 0, false, nil
	}

	total, err = strconv.Atoi(result["total"])
	if err != nil {
		return 0, 0, false, fmt.Errorf("invalid cached total for product %s: %w", productID, err)
	}
	version, err = strconv.Atoi(result["version"])
	if err != nil {
		return 0, 0, false, fmt.Errorf("invalid cached version for product %s: %w", productID, err)
	}

	return total, version, true, nil
}

// ClaimIdempotencyKey reserves key for the caller. It returns false when the
// key is already claimed or completed.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, idempotencyKey(key), pendingMarker, ttl).Result()
}

// SaveIdempotentResponse replaces the claim with the final response.
func (c *Client) SaveIdempotentResponse(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(key), response, ttl).Err()
}

// GetIdempotentResponse returns the stored response for key. found is false
// when the key was never claimed; ErrRequestInProgress is returned while the
// claim is still pending.
func (c *Client) GetIdempotentResponse(ctx context.Context, key string) (response []byte, found bool, err error) {
	value, err := c.rdb.Get(ctx, idempotencyKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if string(value) == pendingMarker {
		return nil, true, ErrRequestInProgress
	}
	return value, true, nil
}

// ReleaseIdempotencyKey drops a claim so the request can be retried.
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, idempotencyKey(key)).Err()
}
