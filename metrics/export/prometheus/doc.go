// Package prometheus renders authcore engine counters in Prometheus text
// exposition format.
//
// [NewExporter] accepts an [authcore.Engine] and exposes an [http.Handler]
// that serves every engine counter. Counter names are prefixed
// authcore_*_total.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the
//     Handler where they want it.
//   - Mutate engine state.
package prometheus
