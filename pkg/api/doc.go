// Package api implements the HTTP surface of the apartments backend:
// the domain types shared across packages, the router wiring, and the
// role-scoped handlers for auth, buildings, units, users, payments,
// receipts and documents.
//
// Cacheable GET endpoints sit behind the Redis response cache; any
// authorization narrower than the rule table runs in a guard before the
// cache so a cached body is never served to a caller who could not have
// produced it.
package api
