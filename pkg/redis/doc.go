// Package redis dials the redis server that backs the shared auth store.
//
// Connect retries with a fresh client per attempt, bounded by the configured
// connect timeout; Healthcheck wraps a ping for liveness probes. Config
// fields populate from SHOPKIT_REDIS_* environment variables.
package redis
