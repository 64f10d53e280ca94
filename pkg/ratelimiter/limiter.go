package ratelimiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket around golang.org/x/time/rate.
type RateLimiter struct {
	limiter *rate.Limiter
	burst   int
	rps     float64
}

// NewRateLimiter creates a limiter that yields one token every ratePerToken,
// holding at most burst tokens.
func NewRateLimiter(ratePerToken time.Duration, burst int) *RateLimiter {
	if ratePerToken <= 0 {
		ratePerToken = time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(ratePerToken), burst),
		burst:   burst,
		rps:     float64(time.Second) / float64(ratePerToken),
	}
}

func NewRateLimiterFromRPS(rps int, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 1
	}
	return NewRateLimiter(time.Second/time.Duration(rps), burst)
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}

func (rl *RateLimiter) TryAcquire() bool {
	return rl.limiter.Allow()
}

func (rl *RateLimiter) GetStats() (available, capacity int, rateDuration time.Duration) {
	available = int(rl.limiter.Tokens())
	if available < 0 {
		available = 0
	}
	return available, rl.burst, time.Duration(float64(time.Second) / rl.rps)
}

// PooledRateLimiter keeps one bucket per key (an RPC node url, a wallet).
// Buckets untouched for idleTTL are dropped on the next Sweep.
type PooledRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*pooledEntry
	rate     time.Duration
	burst    int
	idleTTL  time.Duration
}

type pooledEntry struct {
	rl       *RateLimiter
	lastSeen time.Time
}

func NewPooledRateLimiter(ratePerToken time.Duration, burst int) *PooledRateLimiter {
	return &PooledRateLimiter{
		limiters: make(map[string]*pooledEntry),
		rate:     ratePerToken,
		burst:    burst,
		idleTTL:  10 * time.Minute,
	}
}

func (p *PooledRateLimiter) get(key string) *RateLimiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.limiters[key]
	if !ok {
		e = &pooledEntry{rl: NewRateLimiter(p.rate, p.burst)}
		p.limiters[key] = e
	}
	e.lastSeen = time.Now()
	return e.rl
}

func (p *PooledRateLimiter) Wait(ctx context.Context, key string) error {
	return p.get(key).Wait(ctx)
}

func (p *PooledRateLimiter) TryAcquire(key string) bool {
	return p.get(key).TryAcquire()
}

// Sweep removes idle buckets and reports how many were dropped.
func (p *PooledRateLimiter) Sweep(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for k, e := range p.limiters {
		if now.Sub(e.lastSeen) > p.idleTTL {
			delete(p.limiters, k)
			n++
		}
	}
	return n
}

func (p *PooledRateLimiter) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.limiters)
}

func (p *PooledRateLimiter) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limiters = make(map[string]*pooledEntry)
}
