// Package limiter provides the windowed per-identifier counters that gate
// connection attempts, upload starts, and join attempts, plus a leaky-bucket
// throttle for raw inbound socket events.
package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/beamgate/beamgate/async"
	"github.com/beamgate/beamgate/shared/params"
	"github.com/beamgate/beamgate/shared/timeutils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "limiter")

var rejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "beamgate_limiter_rejections_total",
	Help: "Requests rejected by each named rate limiter.",
}, []string{"limiter"})

// Decision reports the outcome of a single Check call.
type Decision struct {
	Allowed   bool
	Remaining int       // further calls permitted inside the current window
	ResetAt   time.Time // when the current window ends
}

type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter counts events per identifier inside a fixed window. A bucket whose
// window elapsed is lazily replaced on the next Check; a janitor drops
// buckets nobody touches anymore.
type Limiter struct {
	lock    sync.Mutex
	name    string
	window  time.Duration
	max     int
	buckets map[string]*bucket
	now     func() time.Time
}

// New builds a named limiter allowing max events per window for each
// identifier and starts its janitor, which stops with the context.
func New(ctx context.Context, name string, window time.Duration, max int) *Limiter {
	l := &Limiter{
		name:    name,
		window:  window,
		max:     max,
		buckets: make(map[string]*bucket),
		now:     timeutils.Now,
	}
	async.RunEvery(ctx, params.Config().LimiterSweep, l.prune)
	return l
}

// Check records one event for the identifier and decides whether it fits the
// current window.
func (l *Limiter) Check(id string) Decision {
	l.lock.Lock()
	defer l.lock.Unlock()

	now := l.now()
	b, ok := l.buckets[id]
	if !ok || now.After(b.resetAt) {
		b = &bucket{count: 1, resetAt: now.Add(l.window)}
		l.buckets[id] = b
		return Decision{Allowed: true, Remaining: l.max - 1, ResetAt: b.resetAt}
	}
	if b.count < l.max {
		b.count++
		return Decision{Allowed: true, Remaining: l.max - b.count, ResetAt: b.resetAt}
	}
	rejectionsTotal.WithLabelValues(l.name).Inc()
	return Decision{Allowed: false, Remaining: 0, ResetAt: b.resetAt}
}

// prune drops buckets whose window has fully elapsed.
func (l *Limiter) prune() {
	l.lock.Lock()
	defer l.lock.Unlock()

	now := l.now()
	removed := 0
	for id, b := range l.buckets {
		if now.After(b.resetAt) {
			delete(l.buckets, id)
			removed++
		}
	}
	if removed > 0 {
		log.WithFields(logrus.Fields{
			"limiter": l.name,
			"removed": removed,
		}).Debug("Swept expired limiter buckets")
	}
}

// Size returns the number of live buckets.
func (l *Limiter) Size() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.buckets)
}
