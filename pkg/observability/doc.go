// Package observability provides the structured logger, Prometheus
// metrics, health probes and graceful shutdown used across the
// apartments backend.
//
// Logger wraps slog with a JSON handler and field-chaining helpers
// (WithField, WithError) plus context plumbing for request ids.
//
// Metrics registers the apts_* metric family: HTTP request counts and
// latencies, cache hits/misses/invalidations by data type, auth attempt
// outcomes, rate limiter rejections and a few business counters.
//
// HealthChecker serves /health/live and /health/ready; readiness runs
// the registered dependency probes (postgres ping, redis ping) and
// reports 503 when any fails.
//
// ShutdownManager drains the HTTP servers on SIGINT/SIGTERM and then
// runs registered cleanup functions (database close, cron stop) inside
// a bounded context.
package observability
