// Package authcore is the authentication and session-security core of a web API:
// it issues and verifies signed access tokens, manages long-lived revocable refresh
// sessions with rotation, enforces per-IP/per-endpoint rate limiting, locks accounts
// after repeated failed logins, and brokers one-time OAuth2 authorization codes.
//
// The package is designed for concurrent server workloads: Engine methods are safe
// to call from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config], the
// durable store interfaces ([AccountStore], [SessionStore], [CodeStore],
// [ChallengeStore]) and their value records. Orchestration bodies, brute-force
// tracking, audit dispatch, and metric storage live under internal/ and are never
// exported. Store backends live under store/ ([store/memory], [store/redis],
// [store/postgres]); leaf components under token/, password/, ratelimit/,
// schedule/, and middleware/.
//
// # What this package must NOT do
//
//   - Perform HTTP routing or request validation (the embedding service owns those;
//     middleware/ only carries the rate-limit and cookie conventions).
//   - Send email or write audit records synchronously on the request path: both are
//     fire-and-forget side effects that may be dropped, never a reason to fail the
//     primary operation.
//   - Persist or log a raw refresh token anywhere beyond the issuance response.
package authcore
