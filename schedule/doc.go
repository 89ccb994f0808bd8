// Package schedule runs named maintenance tasks on fixed intervals.
//
// The engine's sweep operations (expired sessions, stale one-time codes,
// dead challenges) are exposed as [Task] values; a [Runner] drives them on
// tickers until its context is cancelled. Task failures are logged and do
// not stop the runner.
package schedule
