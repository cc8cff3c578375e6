package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidega/apartments/pkg/observability"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return NewClientWithRedis(rdb, logger, metrics), mr
}

func TestKeyFor(t *testing.T) {
	t.Run("shared namespace", func(t *testing.T) {
		assert.Equal(t, "apartments:/api/apartment-units", KeyFor("apartments", "/api/apartment-units", ""))
	})
	t.Run("tenant namespace", func(t *testing.T) {
		assert.Equal(t, "tenant:t1:apartments:/api/apartment-units/tenant",
			KeyFor("apartments", "/api/apartment-units/tenant", "t1"))
	})
}

func TestTTLFor(t *testing.T) {
	assert.Equal(t, 300*time.Second, TTLFor("apartments"))
	assert.Equal(t, 600*time.Second, TTLFor("users"))
	assert.Equal(t, 86400*time.Second, TTLFor("static"))
	assert.Equal(t, DefaultTTL, TTLFor("unknown-type"))
}

func TestSetAndGet(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	client.Set(ctx, "apartments:/list", []byte(`[{"id":"u1"}]`), time.Minute)

	data, found := client.Get(ctx, "apartments:/list", "apartments")
	require.True(t, found)
	assert.JSONEq(t, `[{"id":"u1"}]`, string(data))

	// Expiry honors the TTL.
	mr.FastForward(2 * time.Minute)
	_, found = client.Get(ctx, "apartments:/list", "apartments")
	assert.False(t, found)
}

func TestGetMiss(t *testing.T) {
	client, _ := newTestClient(t)

	_, found := client.Get(context.Background(), "missing", "apartments")
	assert.False(t, found)
}

func TestGetDegradesToMissWhenRedisDown(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	client.Set(ctx, "k", []byte("v"), time.Minute)
	mr.Close()

	_, found := client.Get(ctx, "k", "apartments")
	assert.False(t, found)

	// Set and Delete must not panic or error out either.
	client.Set(ctx, "k2", []byte("v"), time.Minute)
	client.Delete(ctx, "k")
}

func TestDelete(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	client.Set(ctx, "apartments:/list", []byte("a"), time.Minute)
	client.Set(ctx, "apartments:/by-id/u1", []byte("b"), time.Minute)
	client.Delete(ctx, "apartments:/list", "apartments:/by-id/u1")

	_, found := client.Get(ctx, "apartments:/list", "apartments")
	assert.False(t, found)
	_, found = client.Get(ctx, "apartments:/by-id/u1", "apartments")
	assert.False(t, found)
}

func TestInvalidateTenant(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	client.Set(ctx, KeyFor("apartments", "/api/apartment-units/tenant", "t1"), []byte("a"), time.Minute)
	client.Set(ctx, KeyFor("tenants", "/api/payments", "t1"), []byte("b"), time.Minute)
	client.Set(ctx, KeyFor("apartments", "/api/apartment-units/tenant", "t2"), []byte("c"), time.Minute)
	client.Set(ctx, KeyFor("apartments", "/api/apartment-units", ""), []byte("d"), time.Minute)

	client.InvalidateTenant(ctx, "t1")

	_, found := client.Get(ctx, KeyFor("apartments", "/api/apartment-units/tenant", "t1"), "apartments")
	assert.False(t, found)
	_, found = client.Get(ctx, KeyFor("tenants", "/api/payments", "t1"), "tenants")
	assert.False(t, found)

	// Other tenants and the shared namespace are untouched.
	_, found = client.Get(ctx, KeyFor("apartments", "/api/apartment-units/tenant", "t2"), "apartments")
	assert.True(t, found)
	_, found = client.Get(ctx, KeyFor("apartments", "/api/apartment-units", ""), "apartments")
	assert.True(t, found)
}

func TestHealthCheck(t *testing.T) {
	client, mr := newTestClient(t)

	assert.NoError(t, client.HealthCheck(context.Background()))
	mr.Close()
	assert.Error(t, client.HealthCheck(context.Background()))
}
