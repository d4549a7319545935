package resilience

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var ErrRateLimited = errors.New("rate limited")

// LimiterOpts configures the token bucket rate limiter.
type LimiterOpts struct {
	// Rate is the number of tokens added per second.
	Rate float64
	// Burst is the maximum number of tokens (bucket capacity).
	Burst int
}

// Limiter is a token bucket that starts full. The clock is injectable so
// refill can be tested without sleeping.
type Limiter struct {
	lim *rate.Limiter
	now func() time.Time
}

// NewLimiter creates a token bucket rate limiter.
func NewLimiter(opts LimiterOpts) *Limiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Limiter{
		lim: rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst),
		now: time.Now,
	}
}

// Allow reports whether a token was available and takes it.
func (l *Limiter) Allow() bool {
	return l.lim.AllowN(l.now(), 1)
}

// KeyedLimiter keeps one token bucket per key, e.g. per client address.
// Buckets idle for longer than IdleTTL are evicted on access.
type KeyedLimiter struct {
	mu      sync.Mutex
	opts    LimiterOpts
	idleTTL time.Duration
	buckets map[string]*keyedBucket
	now     func() time.Time
}

type keyedBucket struct {
	lim  *Limiter
	seen time.Time
}

// NewKeyedLimiter creates a per-key limiter. idleTTL <= 0 defaults to ten minutes.
func NewKeyedLimiter(opts LimiterOpts, idleTTL time.Duration) *KeyedLimiter {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &KeyedLimiter{
		opts:    opts,
		idleTTL: idleTTL,
		buckets: make(map[string]*keyedBucket),
		now:     time.Now,
	}
}

// Allow takes a token from key's bucket.
func (k *KeyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	now := k.now()
	for id, b := range k.buckets {
		if now.Sub(b.seen) > k.idleTTL {
			delete(k.buckets, id)
		}
	}
	b, ok := k.buckets[key]
	if !ok {
		lim := NewLimiter(k.opts)
		lim.now = k.now
		b = &keyedBucket{lim: lim}
		k.buckets[key] = b
	}
	b.seen = now
	k.mu.Unlock()
	return b.lim.Allow()
}

// Len returns the number of live buckets.
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}
