// Package guard enforces the per-IP abuse protections: connection-flood
// tracking with escalating blocks, a suspicious-activity counter, and the
// concurrent and hourly session ceilings.
package guard

import (
	"sync"
	"time"

	"github.com/beamgate/beamgate/shared/params"
	"github.com/beamgate/beamgate/shared/timeutils"
	"github.com/beamgate/beamgate/signal-server/audit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "guard")

var (
	blockedIPsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beamgate_guard_blocked_ips_total",
		Help: "IPs auto-blocked for connection flooding.",
	})
	suspiciousEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beamgate_guard_suspicious_events_total",
		Help: "Rule-violation events marked suspicious.",
	})
)

// Verdict is the admission decision for one inbound connection.
type Verdict struct {
	Allowed    bool
	Blocked    bool          // a standing or newly-placed block refused the connection
	BlockedFor time.Duration // remaining block time when Blocked
}

type tracker struct {
	count       int
	windowStart time.Time
	blocked     bool
	blockExpiry time.Time
	suspicious  int
}

// Tracker watches connection behavior per IP. Exceeding the soft limit
// rejects individual connections; exceeding the hard limit blocks the IP
// for the configured duration.
type Tracker struct {
	lock     sync.Mutex
	trackers map[string]*tracker
	auditLog *audit.Log
	now      func() time.Time
}

// NewTracker builds an abuse tracker recording security events into the
// given audit log.
func NewTracker(auditLog *audit.Log) *Tracker {
	return &Tracker{
		trackers: make(map[string]*tracker),
		auditLog: auditLog,
		now:      timeutils.Now,
	}
}

// TrackConnect records a connection attempt from the IP and decides whether
// to admit it.
func (t *Tracker) TrackConnect(ip string) Verdict {
	t.lock.Lock()
	defer t.lock.Unlock()

	cfg := params.Config()
	now := t.now()
	tr, ok := t.trackers[ip]
	if !ok {
		t.trackers[ip] = &tracker{count: 1, windowStart: now}
		return Verdict{Allowed: true}
	}

	if tr.blocked {
		if now.Before(tr.blockExpiry) {
			return Verdict{Blocked: true, BlockedFor: tr.blockExpiry.Sub(now)}
		}
		// Block served; start over.
		*tr = tracker{count: 1, windowStart: now}
		return Verdict{Allowed: true}
	}

	if now.Sub(tr.windowStart) > cfg.AbuseWindow {
		tr.count = 1
		tr.windowStart = now
		return Verdict{Allowed: true}
	}

	tr.count++
	if tr.count > cfg.AbuseHardLimit {
		tr.blocked = true
		tr.blockExpiry = now.Add(cfg.BlockDuration)
		blockedIPsTotal.Inc()
		log.WithFields(logrus.Fields{
			"ip":          ip,
			"connections": tr.count,
			"duration":    cfg.BlockDuration,
		}).Error("Connection flood detected, IP blocked")
		t.auditLog.Record(audit.Entry{
			Level: audit.Security,
			Event: "ip-blocked",
			IP:    ip,
			Details: map[string]interface{}{
				"connections":  tr.count,
				"blockMinutes": int(cfg.BlockDuration.Minutes()),
			},
		})
		return Verdict{Blocked: true, BlockedFor: cfg.BlockDuration}
	}
	if tr.count > cfg.AbuseSoftLimit {
		t.markSuspicious(ip, tr, "connection-rate")
		return Verdict{}
	}
	return Verdict{Allowed: true}
}

// TrackDisconnect lowers the connection count for the IP. Blocked trackers
// keep their count so a block is never shortened by churn.
func (t *Tracker) TrackDisconnect(ip string) {
	t.lock.Lock()
	defer t.lock.Unlock()

	tr, ok := t.trackers[ip]
	if !ok || tr.blocked {
		return
	}
	if tr.count > 0 {
		tr.count--
	}
}

// MarkSuspicious counts a rule violation against the IP: malformed ids,
// failed codes, out-of-room signals, limiter breaches.
func (t *Tracker) MarkSuspicious(ip, reason string) {
	t.lock.Lock()
	defer t.lock.Unlock()

	tr, ok := t.trackers[ip]
	if !ok {
		tr = &tracker{windowStart: t.now()}
		t.trackers[ip] = tr
	}
	t.markSuspicious(ip, tr, reason)
}

// markSuspicious is the lock-held path shared by MarkSuspicious and the
// soft-limit rejection.
func (t *Tracker) markSuspicious(ip string, tr *tracker, reason string) {
	tr.suspicious++
	suspiciousEventsTotal.Inc()
	if tr.suspicious >= params.Config().SuspicionThreshold {
		log.WithFields(logrus.Fields{
			"ip":     ip,
			"events": tr.suspicious,
			"reason": reason,
		}).Error("Suspicious activity threshold reached")
		t.auditLog.Record(audit.Entry{
			Level: audit.Security,
			Event: "suspicious-activity",
			IP:    ip,
			Details: map[string]interface{}{
				"events": tr.suspicious,
				"reason": reason,
			},
		})
		return
	}
	log.WithFields(logrus.Fields{
		"ip":     ip,
		"events": tr.suspicious,
		"reason": reason,
	}).Warn("Marked suspicious activity")
}

// IsBlocked reports whether the IP currently has a standing block.
func (t *Tracker) IsBlocked(ip string) bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	tr, ok := t.trackers[ip]
	return ok && tr.blocked && t.now().Before(tr.blockExpiry)
}

// Cleanup drops trackers whose block has been served and idle trackers
// whose window elapsed. Returns how many were removed.
func (t *Tracker) Cleanup() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	cfg := params.Config()
	now := t.now()
	removed := 0
	for ip, tr := range t.trackers {
		served := tr.blocked && !now.Before(tr.blockExpiry)
		idle := !tr.blocked && now.Sub(tr.windowStart) > cfg.AbuseWindow && tr.count <= 0
		if served || idle {
			delete(t.trackers, ip)
			removed++
		}
	}
	if removed > 0 {
		log.WithField("removed", removed).Debug("Swept abuse trackers")
	}
	return removed
}

// Size returns the number of tracked IPs.
func (t *Tracker) Size() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return len(t.trackers)
}
