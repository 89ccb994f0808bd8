// Package memory provides in-process store implementations. They honor the
// same atomicity contracts as the durable backends and back the test suite
// and single-process deployments.
package memory
