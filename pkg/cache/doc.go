// Package cache wraps Redis with the response-caching policy used by
// the GET middleware and the invalidation hooks used by mutating
// handlers.
//
// Keys are deterministic: `<dataType>:<path>` for admin and manager
// callers, `tenant:<tenantID>:<dataType>:<path>` for tenants. The
// tenant prefix isolates per-tenant responses and lets a mutation wipe
// one tenant's namespace with a single SCAN pass.
//
// TTLs come from a per-data-type policy table (DefaultTTLs) with a
// 5 minute fallback; routes can override with an explicit TTL.
//
// The cache is an optimization, never a dependency: every Redis failure
// degrades to a miss or a no-op with a logged warning. Hit and miss
// counts are exported as Prometheus counters labeled by data type.
package cache
