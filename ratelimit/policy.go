package ratelimit

import (
	"strings"
	"time"
)

// Class names an endpoint family that shares a policy.
type Class string

const (
	// ClassGeneral covers every endpoint not matched by another class.
	ClassGeneral Class = "general"
	// ClassAuth covers credential-bearing endpoints, which get a tighter
	// budget.
	ClassAuth Class = "auth"
)

// Rules maps request paths to classes and classes to limiters. Classification
// is by static path prefix so it costs no allocation per request.
type Rules struct {
	authPrefixes []string
	limiters     map[Class]*Limiter
}

// NewRules builds a rule set. authPrefixes are the path prefixes routed to
// the auth class.
func NewRules(authPrefixes []string, general, auth *Limiter) *Rules {
	return &Rules{
		authPrefixes: authPrefixes,
		limiters: map[Class]*Limiter{
			ClassGeneral: general,
			ClassAuth:    auth,
		},
	}
}

// Classify returns the class for a request path.
func (r *Rules) Classify(path string) Class {
	for _, p := range r.authPrefixes {
		if strings.HasPrefix(path, p) {
			return ClassAuth
		}
	}
	return ClassGeneral
}

// Allow classifies path and charges the caller's bucket under that class.
// Buckets are keyed per caller per class so auth pressure never starves
// general traffic.
func (r *Rules) Allow(callerKey, path string) Decision {
	class := r.Classify(path)
	return r.limiters[class].Allow(string(class) + ":" + callerKey)
}

// Sweep evicts idle buckets across all classes.
func (r *Rules) Sweep() int {
	removed := 0
	for _, l := range r.limiters {
		removed += l.Sweep()
	}
	return removed
}

// DefaultSweepInterval is a reasonable cadence for calling [Rules.Sweep].
const DefaultSweepInterval = 10 * time.Minute
