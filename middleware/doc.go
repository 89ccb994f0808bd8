// Package middleware exposes net/http adapters for the rate-limit chain and
// the token cookie conventions.
//
// # Rate limiting
//
//   - [RateLimit] classifies the request path, charges the caller's bucket,
//     and rejects over-budget requests with 429 and a JSON body.
//
// The caller key defaults to the request's remote IP; override with
// [WithKeyFunc] for deployments behind a trusted proxy.
//
// # Cookies
//
//   - [SetAuthCookies] / [ClearAuthCookies] deliver and revoke the token
//     pair as HTTP-only cookies (access scoped to /, refresh to the auth
//     prefix).
//
// # Architecture boundaries
//
// This package translates HTTP semantics into ratelimit and cookie calls.
// It does not touch the Engine or make authentication decisions.
package middleware
