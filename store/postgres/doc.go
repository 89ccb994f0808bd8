// Package postgres provides PostgreSQL-backed stores on pgx. Every
// conditional mutation runs as a single statement, so the atomicity
// contracts hold without explicit row locking in the callers.
package postgres
