package ratelimit

import (
	"hash/fnv"
	"math"
	"sync"
	"time"
)

const shardCount = 64

// Policy is a token-bucket policy: Limit requests per Window, with burst
// capacity equal to Limit.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one [Limiter.Allow] call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long until one token refills; zero when Allowed.
	RetryAfter time.Duration
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// Limiter holds token buckets for caller/class pairs across a fixed set of
// mutex-guarded shards. Buckets refill continuously and are evicted after an
// idle period. State is process-local only; in a multi-instance deployment
// each instance enforces its own budget.
type Limiter struct {
	policy       Policy
	idleEviction time.Duration
	perShardCap  int
	shards       [shardCount]*shard

	// now is swappable for tests.
	now func() time.Time
}

// NewLimiter creates a limiter for one policy. idleEviction bounds how long
// an unused bucket survives; maxBuckets caps total bucket count per shard
// group so hostile key churn cannot grow memory without bound.
func NewLimiter(policy Policy, idleEviction time.Duration, maxBuckets int) *Limiter {
	// A cap below the shard count would truncate to zero buckets per shard
	// and refuse all traffic; every shard must admit at least one bucket.
	perShard := maxBuckets / shardCount
	if perShard < 1 {
		perShard = 1
	}
	l := &Limiter{
		policy:       policy,
		idleEviction: idleEviction,
		perShardCap:  perShard,
		now:          time.Now,
	}
	for i := range l.shards {
		l.shards[i] = &shard{buckets: make(map[string]*bucket)}
	}
	return l
}

// Allow consumes one token from key's bucket if available and reports the
// decision. A brand-new bucket starts full, so a fresh caller gets a burst of
// Limit requests.
func (l *Limiter) Allow(key string) Decision {
	now := l.now()
	s := l.shards[shardFor(key)]

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		if len(s.buckets) >= l.perShardCap {
			l.evictIdleLocked(s, now)
		}
		if len(s.buckets) >= l.perShardCap {
			// Shard is saturated with live buckets. Refusing the request is
			// the fail-closed choice for an abuse-control component.
			return Decision{Allowed: false, Limit: l.policy.Limit, RetryAfter: l.refillInterval()}
		}
		b = &bucket{tokens: float64(l.policy.Limit)}
		s.buckets[key] = b
	} else {
		l.refill(b, now)
	}
	b.lastSeen = now

	if b.tokens < 1 {
		deficit := 1 - b.tokens
		retry := time.Duration(deficit * float64(l.refillInterval()))
		return Decision{Allowed: false, Limit: l.policy.Limit, RetryAfter: retry}
	}

	b.tokens--
	return Decision{
		Allowed:   true,
		Limit:     l.policy.Limit,
		Remaining: int(math.Floor(b.tokens)),
	}
}

// Sweep drops buckets idle past the eviction window and returns the count
// removed. Intended to be run periodically by a scheduler.
func (l *Limiter) Sweep() int {
	now := l.now()
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		removed += l.evictIdleLocked(s, now)
		s.mu.Unlock()
	}
	return removed
}

// Len reports the total number of live buckets.
func (l *Limiter) Len() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.buckets)
		s.mu.Unlock()
	}
	return n
}

func (l *Limiter) refill(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastSeen)
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed.Seconds() * float64(l.policy.Limit) / l.policy.Window.Seconds()
	if b.tokens > float64(l.policy.Limit) {
		b.tokens = float64(l.policy.Limit)
	}
}

func (l *Limiter) refillInterval() time.Duration {
	return l.policy.Window / time.Duration(l.policy.Limit)
}

func (l *Limiter) evictIdleLocked(s *shard, now time.Time) int {
	removed := 0
	for key, b := range s.buckets {
		if now.Sub(b.lastSeen) >= l.idleEviction {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed
}

func shardFor(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
