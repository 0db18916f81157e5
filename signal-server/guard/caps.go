package guard

import (
	"sync"
	"time"

	"github.com/beamgate/beamgate/shared/params"
	"github.com/beamgate/beamgate/shared/timeutils"
	"github.com/pkg/errors"
)

// Cap rejection reasons.
var (
	ErrActiveSessionCap = errors.New("too many concurrent sessions for this address")
	ErrHourlySessionCap = errors.New("hourly session limit reached for this address")
)

type capEntry struct {
	active      int // sessions currently live
	created     int // sessions created inside the rolling window
	windowStart time.Time
}

// SessionCaps enforces the per-IP ceilings on concurrently live sessions
// and on sessions created per rolling hour.
type SessionCaps struct {
	lock    sync.Mutex
	entries map[string]*capEntry
	now     func() time.Time
}

// NewSessionCaps builds an empty cap table.
func NewSessionCaps() *SessionCaps {
	return &SessionCaps{
		entries: make(map[string]*capEntry),
		now:     timeutils.Now,
	}
}

// Check admits one new session for the IP, counting it against both
// ceilings, or returns the ceiling that refused it.
func (c *SessionCaps) Check(ip string) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	cfg := params.Config()
	now := c.now()
	e, ok := c.entries[ip]
	if !ok {
		e = &capEntry{windowStart: now}
		c.entries[ip] = e
	}
	if now.Sub(e.windowStart) > cfg.SessionCapWindow {
		e.created = 0
		e.windowStart = now
	}
	if e.active >= cfg.MaxActiveSessionsPerIP {
		return ErrActiveSessionCap
	}
	if e.created >= cfg.MaxHourlySessionsPerIP {
		return ErrHourlySessionCap
	}
	e.active++
	e.created++
	return nil
}

// Decrement releases one live session for the IP. The creation count is
// untouched so rapid create-and-complete churn still hits the hourly
// ceiling.
func (c *SessionCaps) Decrement(ip string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	e, ok := c.entries[ip]
	if !ok {
		return
	}
	if e.active > 0 {
		e.active--
	}
	if e.active == 0 && c.now().Sub(e.windowStart) > params.Config().SessionCapWindow {
		delete(c.entries, ip)
	}
}

// Active returns the number of live sessions charged to the IP.
func (c *SessionCaps) Active(ip string) int {
	c.lock.Lock()
	defer c.lock.Unlock()

	if e, ok := c.entries[ip]; ok {
		return e.active
	}
	return 0
}

// Cleanup removes entries with no live sessions and an elapsed window.
func (c *SessionCaps) Cleanup() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.now()
	window := params.Config().SessionCapWindow
	removed := 0
	for ip, e := range c.entries {
		if e.active == 0 && now.Sub(e.windowStart) > window {
			delete(c.entries, ip)
			removed++
		}
	}
	return removed
}

// Size returns the number of tracked IPs.
func (c *SessionCaps) Size() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.entries)
}
