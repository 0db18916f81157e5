// Package registry keeps the volatile per-session share state: which
// endpoint is the sender, the minted one-time access code, and whether that
// code has been redeemed. The persistent repository stays authoritative for
// session existence; the registry only answers who may act on a session
// right now.
package registry

import (
	"crypto/subtle"
	mrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/beamgate/beamgate/shared/params"
	"github.com/beamgate/beamgate/shared/rand"
	"github.com/beamgate/beamgate/shared/timeutils"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "registry")

var entriesGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "beamgate_registry_entries",
	Help: "Sessions currently tracked in the share registry.",
})

// Code validation failures, distinct so clients can be told whether to
// re-prompt.
var (
	ErrUnknownSession = errors.New("no active share for this session")
	ErrCodeUsed       = errors.New("access code was already redeemed")
	ErrCodeMismatch   = errors.New("access code does not match")
)

// ErrAlreadyRegistered signals a duplicate Register call for a session id.
var ErrAlreadyRegistered = errors.New("session already has a registered sender")

type entry struct {
	sender    string
	senderIP  string
	code      string
	used      bool
	createdAt time.Time
}

// Purged describes one entry dropped by PurgeOlderThan, carrying what the
// caller needs to release the sender's concurrency slot.
type Purged struct {
	ID       string
	SenderIP string
}

// Registry is the in-memory session-to-sender map. Safe for concurrent use.
type Registry struct {
	lock    sync.RWMutex
	entries map[string]*entry
	rand    *mrand.Rand
	now     func() time.Time
}

// New builds an empty registry with a cryptographically seeded code
// generator.
func New() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		rand:    rand.NewGenerator(),
		now:     timeutils.Now,
	}
}

// Register records the sender for a new session and mints its one-time
// access code.
func (r *Registry) Register(id, senderEndpoint, senderIP string) (string, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.entries[id]; ok {
		return "", ErrAlreadyRegistered
	}
	code := r.mintCode()
	r.entries[id] = &entry{
		sender:    senderEndpoint,
		senderIP:  senderIP,
		code:      code,
		createdAt: r.now(),
	}
	entriesGauge.Set(float64(len(r.entries)))
	return code, nil
}

// mintCode draws uniformly from the configured alphabet. The alphabet's
// 32-symbol size keeps modulo selection exact.
func (r *Registry) mintCode() string {
	cfg := params.Config()
	b := make([]byte, cfg.OneTimeCodeLen)
	for i := range b {
		b[i] = cfg.CodeAlphabet[r.rand.Intn(len(cfg.CodeAlphabet))]
	}
	return string(b)
}

// Sender returns the registered sender endpoint for the session.
func (r *Registry) Sender(id string) (string, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if e, ok := r.entries[id]; ok {
		return e.sender, true
	}
	return "", false
}

// SenderIP returns the IP the session's sender connected from.
func (r *Registry) SenderIP(id string) (string, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if e, ok := r.entries[id]; ok {
		return e.senderIP, true
	}
	return "", false
}

// IsSender reports whether the endpoint is the registered sender of the
// session. This is the authorization check for sender-privileged actions.
func (r *Registry) IsSender(id, endpoint string) bool {
	r.lock.RLock()
	defer r.lock.RUnlock()

	e, ok := r.entries[id]
	return ok && e.sender == endpoint
}

// ValidateCode redeems the session's one-time code. The input is
// case-folded before comparison. On success the code is permanently marked
// used; every later attempt fails with ErrCodeUsed.
func (r *Registry) ValidateCode(id, code string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return ErrUnknownSession
	}
	if e.used {
		return ErrCodeUsed
	}
	supplied := strings.ToUpper(strings.TrimSpace(code))
	if subtle.ConstantTimeCompare([]byte(e.code), []byte(supplied)) != 1 {
		return ErrCodeMismatch
	}
	e.used = true
	return nil
}

// Remove drops the session's entry if present.
func (r *Registry) Remove(id string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.entries, id)
	entriesGauge.Set(float64(len(r.entries)))
}

// ForEndpoint lists the session ids whose registered sender is the given
// endpoint.
func (r *Registry) ForEndpoint(endpoint string) []string {
	r.lock.RLock()
	defer r.lock.RUnlock()

	var ids []string
	for id, e := range r.entries {
		if e.sender == endpoint {
			ids = append(ids, id)
		}
	}
	return ids
}

// PurgeOlderThan removes entries older than maxAge and returns what was
// dropped.
func (r *Registry) PurgeOlderThan(maxAge time.Duration) []Purged {
	r.lock.Lock()
	defer r.lock.Unlock()

	cutoff := r.now().Add(-maxAge)
	var purged []Purged
	for id, e := range r.entries {
		if e.createdAt.Before(cutoff) {
			purged = append(purged, Purged{ID: id, SenderIP: e.senderIP})
			delete(r.entries, id)
		}
	}
	if len(purged) > 0 {
		entriesGauge.Set(float64(len(r.entries)))
		log.WithField("purged", len(purged)).Debug("Dropped expired share registrations")
	}
	return purged
}

// Size returns the number of registered sessions.
func (r *Registry) Size() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.entries)
}
