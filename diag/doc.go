// Package diag exposes the resilience pipeline's diagnostics over HTTP.
//
// The server publishes per-backend counters (retries, breaker state, limiter
// activity, cache hit rates) and administrative operations: resetting
// counters and forcing a circuit breaker closed.
//
//	reg := diag.NewRegistry()
//	reg.Register(guard)
//	srv := diag.New(cfg, reg, log)
//	srv.Start(ctx)
package diag
