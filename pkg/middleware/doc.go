// Package middleware provides the request-scoped guards of the API:
// bearer-token authentication, role gating, GET response caching and
// the sliding-window rate limiter protecting the auth endpoints.
//
// Ordering matters: Authenticate runs first so Cache can key tenant
// requests into their own namespace and RequireRole can read the
// caller's role from the context.
package middleware
