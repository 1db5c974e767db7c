package redisclient

import (
	"context"
	"os"
	"testing"
	"time"

	"commerce-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "stock:abc", stockKey("abc"))
	assert.Equal(t, "idempotency:k1", idempotencyKey("k1"))
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Integration test - requires redis (set TEST_REDIS_ADDR)")
	}
	c, err := NewClient(addr, "", 15)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestStockSnapshotIgnoresStaleVersions(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	id := models.NewID()
	t.Cleanup(func() { c.rdb.Del(ctx, stockKey(id)) })

	_, _, found, err := c.GetStockSnapshot(ctx, id)
	require.NoError(t, err)
	assert.False(t, found)

	applied, err := c.SetStockSnapshot(ctx, id, 3, 30)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = c.SetStockSnapshot(ctx, id, 2, 20)
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = c.SetStockSnapshot(ctx, id, 3, 99)
	require.NoError(t, err)
	assert.False(t, applied)

	total, version, found, err := c.GetStockSnapshot(ctx, id)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 30, total)
	assert.Equal(t, 3, version)

	ttl, err := c.rdb.PTTL(ctx, stockKey(id)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, DefaultSnapshotTTL)
}

func TestIdempotencyLifecycle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := models.NewID()
	t.Cleanup(func() { c.rdb.Del(ctx, idempotencyKey(key)) })

	_, found, err := c.GetIdempotentResponse(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	claimed, err := c.ClaimIdempotencyKey(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = c.ClaimIdempotencyKey(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)

	_, _, err = c.GetIdempotentResponse(ctx, key)
	assert.ErrorIs(t, err, ErrRequestInProgress)

	require.NoError(t, c.SaveIdempotentResponse(ctx, key, []byte(`{"ok":true}`), time.Minute))
	resp, found, err := c.GetIdempotentResponse(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"ok":true}`, string(resp))

	require.NoError(t, c.ReleaseIdempotencyKey(ctx, key))
	_, found, err = c.GetIdempotentResponse(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}
