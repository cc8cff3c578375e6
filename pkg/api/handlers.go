package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/kidega/apartments/pkg/auth"
	"github.com/kidega/apartments/pkg/authz"
	"github.com/kidega/apartments/pkg/cache"
	"github.com/kidega/apartments/pkg/httputil"
	"github.com/kidega/apartments/pkg/observability"
	"github.com/kidega/apartments/pkg/storage"
)

// Cache data types used across handlers.
const (
	cacheApartments = "apartments"
	cacheUsers      = "users"
	cacheTenants    = "tenants"
	cacheReceipts   = "receipts"
	cachePayments   = "payments"
	cacheStatic     = "static"
)

// gate enforces the authorization rule table for a resource/action
// pair. Ownership narrowing happens in the handlers via the checker.
func (s *Server) gate(resource authz.Resource, action authz.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := identity(w, r)
			if !ok {
				return
			}
			if !s.checker.Allows(caller, resource, action) {
				httputil.WriteForbidden(w, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// identity returns the authenticated caller, writing a 401 when the
// request somehow bypassed the auth middleware.
func identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return auth.Identity{}, false
	}
	return id, true
}

// writeStorageError maps storage sentinel errors onto HTTP statuses.
// Unexpected errors are logged and surface as a generic 500.
func writeStorageError(w http.ResponseWriter, r *http.Request, err error, notFoundMessage string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httputil.WriteNotFound(w, notFoundMessage)
	case errors.Is(err, storage.ErrDuplicateManager):
		httputil.WriteConflict(w, "This manager is already assigned to another building.")
	case errors.Is(err, storage.ErrDuplicateReceipt):
		httputil.WriteConflict(w, "A receipt already exists for this payment")
	case errors.Is(err, storage.ErrUnitOccupied):
		httputil.WriteBadRequest(w, "Unit already occupied")
	case errors.Is(err, storage.ErrConflict):
		httputil.WriteConflict(w, "Resource already exists")
	default:
		observability.FromContext(r.Context()).WithError(err).Error("storage operation failed")
		httputil.WriteInternalError(w, "internal server error")
	}
}

// invalidate removes shared cache keys for a data type and bumps the
// invalidation counter. Cache keys carry the full request URI, so each
// path is dropped as a prefix to catch query-string variants of the
// same listing.
func (s *Server) invalidate(ctx context.Context, dataType string, paths ...string) {
	for _, path := range paths {
		s.cache.DeletePrefix(ctx, cache.KeyFor(dataType, path, ""))
	}
	s.metrics.CacheInvalidationsTotal.WithLabelValues(dataType).Inc()
}

// invalidateTenants wipes the cache namespaces of the given tenants.
func (s *Server) invalidateTenants(ctx context.Context, tenantIDs ...string) {
	for _, id := range tenantIDs {
		if id == "" {
			continue
		}
		s.cache.InvalidateTenant(ctx, id)
	}
}

// invalidateUnitKeys drops the unit keys (the collection prefix covers
// the by-id and query-variant entries) plus the namespaces of any
// tenants linked to the unit.
func (s *Server) invalidateUnitKeys(ctx context.Context, tenantIDs ...string) {
	s.invalidate(ctx, cacheApartments, "/api/apartment-units")
	s.invalidateTenants(ctx, tenantIDs...)
}
