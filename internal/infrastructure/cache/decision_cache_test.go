package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*DecisionCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewDecisionCache(client, ttl), mr
}

func TestDecisionCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t, 5*time.Minute)
	ctx := context.Background()
	tenantID := uuid.New()

	snap := &DecisionSnapshot{
		HasConsent:           true,
		CanSendMarketing:     true,
		CanSendTransactional: true,
		Warnings:             []string{"consent expiring soon"},
	}
	require.NoError(t, c.Set(ctx, tenantID, "abc123", snap))

	got, err := c.Get(ctx, tenantID, "abc123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.HasConsent)
	assert.True(t, got.CanSendMarketing)
	assert.Equal(t, []string{"consent expiring soon"}, got.Warnings)
	assert.False(t, got.CachedAt.IsZero())
}

func TestDecisionCacheMiss(t *testing.T) {
	c, _ := newTestCache(t, 5*time.Minute)

	got, err := c.Get(context.Background(), uuid.New(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDecisionCacheTTLExpiry(t *testing.T) {
	c, mr := newTestCache(t, 5*time.Minute)
	ctx := context.Background()
	tenantID := uuid.New()

	require.NoError(t, c.Set(ctx, tenantID, "abc123", &DecisionSnapshot{HasConsent: true}))

	mr.FastForward(5*time.Minute + time.Second)

	got, err := c.Get(ctx, tenantID, "abc123")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDecisionCacheInvalidateDeletes(t *testing.T) {
	c, _ := newTestCache(t, 5*time.Minute)
	ctx := context.Background()
	tenantID := uuid.New()

	require.NoError(t, c.Set(ctx, tenantID, "abc123", &DecisionSnapshot{HasConsent: true}))
	require.NoError(t, c.Invalidate(ctx, tenantID, "abc123"))

	got, err := c.Get(ctx, tenantID, "abc123")
	require.NoError(t, err)
	assert.Nil(t, got, "invalidation must remove the entry before the TTL elapses")
}

func TestDecisionCacheKeysAreScopedPerPair(t *testing.T) {
	c, _ := newTestCache(t, 5*time.Minute)
	ctx := context.Background()
	tenantA, tenantB := uuid.New(), uuid.New()

	require.NoError(t, c.Set(ctx, tenantA, "hash1", &DecisionSnapshot{HasConsent: true}))

	got, err := c.Get(ctx, tenantB, "hash1")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = c.Get(ctx, tenantA, "hash2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDecisionCacheBackendErrorSurfaces(t *testing.T) {
	c, mr := newTestCache(t, 5*time.Minute)
	mr.Close()

	_, err := c.Get(context.Background(), uuid.New(), "abc123")
	require.Error(t, err)
}
