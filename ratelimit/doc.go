// Package ratelimit implements a process-local token-bucket rate limiter
// keyed by caller identity, with per-endpoint-class policies.
package ratelimit
