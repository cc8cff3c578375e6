package middleware

import (
	"bytes"
	"net/http"
	"time"

	"github.com/kidega/apartments/pkg/auth"
	"github.com/kidega/apartments/pkg/cache"
)

// cacheRecorder buffers a handler's response so a 200 body can be
// stored after the handler returns.
type cacheRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (cr *cacheRecorder) WriteHeader(code int) {
	cr.statusCode = code
	cr.ResponseWriter.WriteHeader(code)
}

func (cr *cacheRecorder) Write(b []byte) (int, error) {
	cr.body.Write(b)
	return cr.ResponseWriter.Write(b)
}

// Cache serves GET responses from Redis. Keys combine the data type
// with the request path and query; tenant callers get a tenant-scoped
// namespace so cached rows never leak across tenants. Responses carry
// an X-Cache header saying HIT or MISS. Only 200 bodies are stored.
// Pass ttl=0 to use the data type's default lifetime.
func Cache(client *cache.Client, dataType string, ttl time.Duration) func(http.Handler) http.Handler {
	if ttl == 0 {
		ttl = cache.TTLFor(dataType)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			var tenantID string
			if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.IsTenant() {
				tenantID = identity.UserID
			}
			key := cache.KeyFor(dataType, r.URL.RequestURI(), tenantID)

			if data, found := client.Get(r.Context(), key, dataType); found {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(http.StatusOK)
				w.Write(data)
				return
			}

			w.Header().Set("X-Cache", "MISS")
			recorder := &cacheRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			if recorder.statusCode == http.StatusOK {
				client.Set(r.Context(), key, recorder.body.Bytes(), ttl)
			}
		})
	}
}
