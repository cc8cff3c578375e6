package middleware

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidega/apartments/pkg/auth"
	"github.com/kidega/apartments/pkg/cache"
	"github.com/kidega/apartments/pkg/model"
	"github.com/kidega/apartments/pkg/observability"
)

func newCacheClient(t *testing.T) *cache.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return cache.NewClientWithRedis(rdb, logger, metrics)
}

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	})
}

func TestAuthenticateMissingHeader(t *testing.T) {
	tokens := auth.NewTokenManager("secret", 0, 0)
	handler := Authenticate(tokens)(okHandler(`{}`))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateInvalidToken(t *testing.T) {
	tokens := auth.NewTokenManager("secret", 0, 0)
	handler := Authenticate(tokens)(okHandler(`{}`))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateAttachesIdentity(t *testing.T) {
	tokens := auth.NewTokenManager("secret", 0, 0)
	token, err := tokens.GenerateAccessToken("user-1", model.RoleManager)
	require.NoError(t, err)

	var got auth.Identity
	handler := Authenticate(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, model.RoleManager, got.Role)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole("admin")(okHandler(`{}`))

	t.Run("wrong role", func(t *testing.T) {
		ctx := auth.WithIdentity(context.Background(), auth.Identity{UserID: "t1", Role: model.RoleTenant})
		req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("allowed role", func(t *testing.T) {
		ctx := auth.WithIdentity(context.Background(), auth.Identity{UserID: "a1", Role: model.RoleAdmin})
		req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestCacheMissThenHit(t *testing.T) {
	client := newCacheClient(t)
	calls := 0
	handler := Cache(client, "apartments", 0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`[{"id":"u1"}]`))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/apartment-units", nil))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, 1, calls)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/apartment-units", nil))
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.JSONEq(t, `[{"id":"u1"}]`, rec.Body.String())
	assert.Equal(t, 1, calls, "handler must not run on a hit")
}

func TestCacheSkipsNonGET(t *testing.T) {
	client := newCacheClient(t)
	handler := Cache(client, "apartments", 0)(okHandler(`{}`))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/apartment-units", nil))
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestCacheSkipsErrorResponses(t *testing.T) {
	client := newCacheClient(t)
	status := http.StatusInternalServerError
	handler := Cache(client, "apartments", 0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/apartment-units", nil))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	// The failed body was not stored, so the next request is a miss too.
	status = http.StatusOK
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/apartment-units", nil))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
}

func TestCacheTenantNamespaceIsolation(t *testing.T) {
	client := newCacheClient(t)
	serve := "tenant-1 data"
	handler := Cache(client, "apartments", 0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(serve))
	}))

	asTenant := func(tenantID string) *httptest.ResponseRecorder {
		ctx := auth.WithIdentity(context.Background(), auth.Identity{UserID: tenantID, Role: model.RoleTenant})
		req := httptest.NewRequest(http.MethodGet, "/api/apartment-units/tenant", nil).WithContext(ctx)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := asTenant("t1")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	// A different tenant on the same path must not see t1's body.
	serve = "tenant-2 data"
	rec = asTenant("t2")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, "tenant-2 data", rec.Body.String())

	rec = asTenant("t1")
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, "tenant-1 data", rec.Body.String())
}

func TestRateLimiter(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	rl := NewRateLimiter(10, 15*time.Minute, metrics)
	handler := rl.Middleware("login")(okHandler(`{}`))

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, fmt.Sprintf("request %d", i+1))
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// A different client IP has its own budget.
	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterHonorsForwardedFor(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, nil)
	handler := rl.Middleware("login")(okHandler(`{}`))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.2")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
