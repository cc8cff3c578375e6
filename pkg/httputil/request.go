package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// ParseJSON decodes the request body into dest.
func ParseJSON(r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ParseJSONOrError decodes the request body, writing a 400 on failure.
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// PathParam extracts a path parameter registered with mux.
func PathParam(r *http.Request, key string) string {
	return mux.Vars(r)[key]
}

// PathParamOrError extracts a path parameter, writing a 400 when empty.
func PathParamOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	val := PathParam(r, key)
	if val == "" {
		WriteBadRequest(w, fmt.Sprintf("missing path parameter: %s", key))
		return "", false
	}
	return val, true
}

// ClientIP resolves the caller's address, preferring X-Forwarded-For
// then X-Real-IP over the socket address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx >= 0 {
		return addr[:idx]
	}
	return addr
}
