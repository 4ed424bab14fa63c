package ratelimiter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/notifyhub/gyre/internal/domain"
)

// ListenerLimiters holds one token bucket per webhook listener, created on
// first use. Burst is set equal to the rate so no extra burst capacity is
// allowed beyond the configured per-second maximum.
type ListenerLimiters struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[domain.Handle]*rate.Limiter
}

// New creates a ListenerLimiters with ratePerSec tokens per second per
// listener. A non-positive rate disables limiting.
func New(ratePerSec int) *ListenerLimiters {
	l := &ListenerLimiters{
		limit:    rate.Inf,
		burst:    1,
		limiters: make(map[domain.Handle]*rate.Limiter),
	}
	if ratePerSec > 0 {
		l.limit = rate.Limit(ratePerSec)
		l.burst = ratePerSec
	}
	return l
}

// Wait blocks until the listener's limiter grants a token.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (ll *ListenerLimiters) Wait(ctx context.Context, h domain.Handle) error {
	return ll.get(h).Wait(ctx)
}

// Allow reports whether a token is available right now, consuming it if so.
func (ll *ListenerLimiters) Allow(h domain.Handle) bool {
	return ll.get(h).Allow()
}

// Forget drops the limiter of a listener that has been unregistered.
func (ll *ListenerLimiters) Forget(h domain.Handle) {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	delete(ll.limiters, h)
}

func (ll *ListenerLimiters) get(h domain.Handle) *rate.Limiter {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	lim, ok := ll.limiters[h]
	if !ok {
		lim = rate.NewLimiter(ll.limit, ll.burst)
		ll.limiters[h] = lim
	}
	return lim
}
