// Package redis provides Redis-backed stores for sessions, one-time codes
// and challenges. Multi-step conditional updates run as Lua scripts so the
// single-winner guarantees hold across engine instances.
package redis
