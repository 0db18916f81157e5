// Package audit keeps a bounded in-memory trail of operational and security
// events: connections, blocks, suspicious activity, lifecycle milestones.
// The ring holds the most recent entries only; persistence is out of scope.
package audit

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/beamgate/beamgate/shared/params"
	"github.com/beamgate/beamgate/shared/timeutils"
	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "beamgate_audit_events_total",
	Help: "Audit entries recorded, by level.",
}, []string{"level"})

// Level classifies an audit entry.
type Level string

// Audit levels, ordered by severity.
const (
	Info     Level = "INFO"
	Warn     Level = "WARN"
	Error    Level = "ERROR"
	Security Level = "SECURITY"
)

// Entry is one recorded event. Identifier fields are optional and omitted
// from serialized output when empty.
type Entry struct {
	Time       time.Time              `json:"time"`
	Level      Level                  `json:"level"`
	Event      string                 `json:"event"`
	EndpointID string                 `json:"endpointId,omitempty"`
	SessionID  string                 `json:"sessionId,omitempty"`
	IP         string                 `json:"ip,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Log is a fixed-capacity ring of entries. Once full, recording a new entry
// evicts the oldest. Safe for concurrent use.
type Log struct {
	ring *lru.Cache
	seq  uint64
	now  func() time.Time
}

// NewLog builds a ring with the configured capacity.
func NewLog() (*Log, error) {
	ring, err := lru.New(params.Config().AuditCapacity)
	if err != nil {
		return nil, err
	}
	return &Log{ring: ring, now: timeutils.Now}, nil
}

// Record appends an entry, stamping the current time unless the caller
// already set one.
func (l *Log) Record(e Entry) {
	if e.Time.IsZero() {
		e.Time = l.now()
	}
	if e.Level == "" {
		e.Level = Info
	}
	eventsTotal.WithLabelValues(strings.ToLower(string(e.Level))).Inc()
	l.ring.Add(atomic.AddUint64(&l.seq, 1), e)
}

// Last returns up to n entries, most recent first.
func (l *Log) Last(n int) []Entry {
	return l.collect(n, func(Entry) bool { return true })
}

// LastByLevel returns up to n entries of the given level, most recent first.
func (l *Log) LastByLevel(level Level, n int) []Entry {
	return l.collect(n, func(e Entry) bool { return e.Level == level })
}

// SecuritySince returns all security entries recorded at or after t, most
// recent first.
func (l *Log) SecuritySince(t time.Time) []Entry {
	return l.collect(l.ring.Len(), func(e Entry) bool {
		return e.Level == Security && !e.Time.Before(t)
	})
}

func (l *Log) collect(n int, keep func(Entry) bool) []Entry {
	if n <= 0 {
		return nil
	}
	keys := l.ring.Keys() // oldest first
	out := make([]Entry, 0, n)
	for i := len(keys) - 1; i >= 0 && len(out) < n; i-- {
		v, ok := l.ring.Peek(keys[i])
		if !ok {
			continue
		}
		e, ok := v.(Entry)
		if !ok || !keep(e) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// EvictOlderThan removes entries recorded before the cutoff and reports how
// many were dropped.
func (l *Log) EvictOlderThan(cutoff time.Time) int {
	removed := 0
	for _, key := range l.ring.Keys() {
		v, ok := l.ring.Peek(key)
		if !ok {
			continue
		}
		e, ok := v.(Entry)
		if !ok {
			continue
		}
		if e.Time.Before(cutoff) {
			l.ring.Remove(key)
			removed++
			continue
		}
		// Keys come back oldest first, so the first survivor ends the scan.
		break
	}
	return removed
}

// Size returns the number of retained entries.
func (l *Log) Size() int {
	return l.ring.Len()
}
