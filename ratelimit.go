package motor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// acceptLimiter throttles new connections per remote address. Idle
// entries are dropped by a background sweep.
type acceptLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idle    time.Duration
	entries map[string]*limiterEntry
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// newAcceptLimiter returns nil when limit is zero; a nil limiter allows
// everything.
func newAcceptLimiter(ctx context.Context, limit rate.Limit, burst int) *acceptLimiter {
	if limit <= 0 {
		return nil
	}
	idle := 10 * time.Minute
	if d := time.Duration(float64(burst) / float64(limit) * float64(time.Second)); d > idle {
		idle = d
	}
	l := &acceptLimiter{
		limit:   limit,
		burst:   burst,
		idle:    idle,
		entries: make(map[string]*limiterEntry),
	}
	go l.sweepLoop(ctx)
	return l
}

func (l *acceptLimiter) sweepLoop(ctx context.Context) {
	t := time.NewTicker(l.idle)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.sweep(now)
		}
	}
}

// allow reports whether a new connection from key may proceed.
func (l *acceptLimiter) allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.seen = now
	l.mu.Unlock()
	return e.lim.AllowN(now, 1)
}

// sweep removes entries not seen since now minus the idle period.
func (l *acceptLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := now.Add(-l.idle)
	for k, e := range l.entries {
		if e.seen.Before(cutoff) {
			delete(l.entries, k)
		}
	}
}

func (l *acceptLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
