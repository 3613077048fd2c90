package httpapi

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterSweepAbove = 1024
)

// userLimiter is a token bucket per user. A nil *userLimiter allows everything.
type userLimiter struct {
	mu      sync.Mutex
	buckets map[string]*userBucket
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

type userBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// newUserLimiter returns nil when perMinute is not positive.
func newUserLimiter(perMinute, burst int) *userLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = perMinute
	}
	return &userLimiter{
		buckets: make(map[string]*userBucket),
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		now:     time.Now,
	}
}

func (l *userLimiter) Allow(userID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[userID]
	if !ok {
		if len(l.buckets) >= limiterSweepAbove {
			l.sweep(now)
		}
		b = &userBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[userID] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

func (l *userLimiter) sweep(now time.Time) {
	for id, b := range l.buckets {
		if now.Sub(b.lastSeen) > limiterIdleTTL {
			delete(l.buckets, id)
		}
	}
}
