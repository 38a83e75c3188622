package middleware

import (
	"sync"

	"golang.org/x/time/rate"
)

// localBurstMaxKeys bounds the per-key limiter map. When exceeded the map is
// reset wholesale: the store-backed limiter behind it remains authoritative,
// this layer only shaves same-process bursts.
const localBurstMaxKeys = 65536

// LocalBurst is a per-key token bucket applied before the shared-store check.
// It exists to absorb hot-loop clients cheaply; it carries no cross-instance
// state and must never be the only limiter.
type LocalBurst struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewLocalBurst creates a [LocalBurst] allowing rps sustained requests per
// key with the given burst ceiling.
func NewLocalBurst(rps float64, burst int) *LocalBurst {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &LocalBurst{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether the key may proceed right now.
func (b *LocalBurst) Allow(key string) bool {
	b.mu.Lock()
	lim, ok := b.limiters[key]
	if !ok {
		if len(b.limiters) >= localBurstMaxKeys {
			b.limiters = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(b.rps, b.burst)
		b.limiters[key] = lim
	}
	b.mu.Unlock()

	return lim.Allow()
}
