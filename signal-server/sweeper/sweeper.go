// Package sweeper removes aged state across the signal server: expired
// session rows, stale registry entries, idle abuse trackers, and old audit
// entries. One slow ticker runs the full pass; a faster ticker keeps the
// abuse guard from holding expired blocks between full passes.
package sweeper

import (
	"context"
	"time"

	"github.com/beamgate/beamgate/async"
	"github.com/beamgate/beamgate/shared/params"
	"github.com/beamgate/beamgate/shared/timeutils"
	"github.com/beamgate/beamgate/signal-server/audit"
	"github.com/beamgate/beamgate/signal-server/db"
	"github.com/beamgate/beamgate/signal-server/guard"
	"github.com/beamgate/beamgate/signal-server/registry"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "sweeper")

// Config collects the stores the sweeper purges.
type Config struct {
	Database db.Database
	Registry *registry.Registry
	Guard    *guard.Tracker
	Caps     *guard.SessionCaps
	AuditLog *audit.Log
}

// Service runs the periodic cleanup passes.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config
	now    func() time.Time
}

// NewService instantiates the sweeper.
func NewService(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		now:    timeutils.Now,
	}
}

// Start schedules the cleanup tickers.
func (s *Service) Start() {
	cfg := params.Config()
	log.WithFields(logrus.Fields{
		"sweepInterval": cfg.SweepInterval,
		"guardInterval": cfg.GuardSweepInterval,
	}).Info("Starting service")
	async.RunEvery(s.ctx, cfg.SweepInterval, s.Sweep)
	async.RunEvery(s.ctx, cfg.GuardSweepInterval, s.sweepGuard)
}

// Stop cancels the tickers.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status always returns nil. A sweep failure is logged and retried on the
// next tick rather than marking the node unhealthy.
func (s *Service) Status() error {
	return nil
}

// Sweep runs one full cleanup pass.
func (s *Service) Sweep() {
	cfg := params.Config()
	now := s.now()

	expired, err := s.cfg.Database.DeleteSessionsOlderThan(
		s.ctx,
		now.Add(-cfg.SessionMaxAge),
		db.StatusWaiting,
		db.StatusCompleted,
	)
	if err != nil {
		log.WithError(err).Error("Could not delete expired session rows")
	}

	// Rows stranded in ACTIVE by a crashed peer or an unclean shutdown never
	// see a terminal event, so a second unfiltered pass reaps them once they
	// are twice the session age.
	stranded, err := s.cfg.Database.DeleteSessionsOlderThan(s.ctx, now.Add(-2*cfg.SessionMaxAge))
	if err != nil {
		log.WithError(err).Error("Could not delete stranded session rows")
	}

	purged := s.cfg.Registry.PurgeOlderThan(cfg.SessionMaxAge)
	for _, p := range purged {
		s.cfg.Caps.Decrement(p.SenderIP)
	}

	blocks := s.cfg.Guard.Cleanup()
	slots := s.cfg.Caps.Cleanup()
	evicted := s.cfg.AuditLog.EvictOlderThan(now.Add(-cfg.AuditRetention))

	sweepsTotal.Inc()
	sweptSessionsTotal.Add(float64(expired + stranded))
	log.WithFields(logrus.Fields{
		"expiredSessions":  expired,
		"strandedSessions": stranded,
		"purgedCodes":      len(purged),
		"guardEntries":     blocks,
		"capSlots":         slots,
		"auditEntries":     evicted,
	}).Debug("Sweep finished")
}

func (s *Service) sweepGuard() {
	if removed := s.cfg.Guard.Cleanup(); removed > 0 {
		log.WithField("entries", removed).Debug("Cleared expired abuse state")
	}
}
