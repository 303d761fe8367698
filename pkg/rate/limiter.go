package rate

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultIdleWindow = 10 * time.Minute

// Limiter decides whether an operation attributed to key may proceed.
type Limiter interface {
	Allow(key string) (bool, error)
}

// Unlimited allows every operation.
type Unlimited struct{}

func (Unlimited) Allow(string) (bool, error) {
	return true, nil
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PerKey gives each key its own token bucket. A bucket holds up to one
// second's worth of operations, and never less than one. Buckets unused for
// the idle window are dropped, which is safe since an idle bucket has refilled.
type PerKey struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewPerKey returns a limiter allowing perSecond operations per key, which
// must be positive.
func NewPerKey(perSecond float64) *PerKey {
	burst := int(math.Ceil(perSecond))
	if burst < 1 {
		burst = 1
	}

	idle := defaultIdleWindow
	if refill := time.Duration(float64(burst) / perSecond * float64(time.Second)); refill > idle {
		idle = refill
	}

	return &PerKey{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idle:    idle,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (l *PerKey) Allow(key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	return b.limiter.AllowN(now, 1), nil
}

func (l *PerKey) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idle {
		return
	}
	l.lastSweep = now

	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.idle {
			delete(l.buckets, key)
		}
	}
}
