// Package node defines the signal server node, wiring the session
// repository, abuse protections, signaling core, websocket gateway, sweeper,
// and monitoring into one process. It handles the lifecycle of the entire
// system and registers services to a service registry.
package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/beamgate/beamgate/crypto/envelope"
	"github.com/beamgate/beamgate/monitoring/backup"
	"github.com/beamgate/beamgate/monitoring/prometheus"
	"github.com/beamgate/beamgate/runtime"
	"github.com/beamgate/beamgate/runtime/prereqs"
	"github.com/beamgate/beamgate/shared/cmd"
	"github.com/beamgate/beamgate/shared/params"
	"github.com/beamgate/beamgate/shared/version"
	"github.com/beamgate/beamgate/signal-server/audit"
	"github.com/beamgate/beamgate/signal-server/db"
	"github.com/beamgate/beamgate/signal-server/flags"
	"github.com/beamgate/beamgate/signal-server/gateway"
	"github.com/beamgate/beamgate/signal-server/guard"
	"github.com/beamgate/beamgate/signal-server/ice"
	"github.com/beamgate/beamgate/signal-server/limiter"
	"github.com/beamgate/beamgate/signal-server/registry"
	"github.com/beamgate/beamgate/signal-server/signaling"
	"github.com/beamgate/beamgate/signal-server/sweeper"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var log = logrus.WithField("prefix", "node")

// Recognized values of the environment flag.
const (
	developmentEnv = "development"
	productionEnv  = "production"
)

// SignalNode holds the services running a signal server. It handles the
// lifecycle of the entire system and registers services to a service
// registry.
type SignalNode struct {
	cliCtx        *cli.Context
	ctx           context.Context
	cancel        context.CancelFunc
	lock          sync.RWMutex
	services      *runtime.ServiceRegistry
	stop          chan struct{} // Channel to wait for termination notifications.
	db            db.Database
	sealer        *envelope.Sealer
	auditLog      *audit.Log
	tracker       *guard.Tracker
	caps          *guard.SessionCaps
	registry      *registry.Registry
	hub           *gateway.Hub
	minter        *ice.Minter
	uploadLimiter *limiter.Limiter
	joinLimiter   *limiter.Limiter
	connLimiter   *limiter.Limiter
	throttle      *limiter.SocketThrottle
}

// New creates a new node instance, sets up configuration options,
// and registers every required service.
func New(cliCtx *cli.Context) (*SignalNode, error) {
	if err := validateConfig(cliCtx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(cliCtx.Context)
	node := &SignalNode{
		cliCtx:   cliCtx,
		ctx:      ctx,
		cancel:   cancel,
		services: runtime.NewServiceRegistry(),
		stop:     make(chan struct{}),
	}

	prereqs.WarnIfPlatformNotSupported(ctx)

	if err := node.startDB(cliCtx); err != nil {
		cancel()
		return nil, err
	}

	if err := node.startComponents(cliCtx); err != nil {
		cancel()
		return nil, err
	}

	if err := node.registerSignalingService(); err != nil {
		cancel()
		return nil, err
	}

	if err := node.registerGatewayService(cliCtx); err != nil {
		cancel()
		return nil, err
	}

	if err := node.registerSweeperService(); err != nil {
		cancel()
		return nil, err
	}

	if !cliCtx.Bool(cmd.DisableMonitoringFlag.Name) {
		if err := node.registerPrometheusService(cliCtx); err != nil {
			cancel()
			return nil, err
		}
	}

	return node, nil
}

func validateConfig(cliCtx *cli.Context) error {
	if cliCtx.String(cmd.DataDirFlag.Name) == "" {
		return errors.New("no data directory configured, set --datadir or DATABASE_URL")
	}
	if port := cliCtx.Int(flags.PortFlag.Name); port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %d", port)
	}
	env := cliCtx.String(flags.EnvironmentFlag.Name)
	if env != developmentEnv && env != productionEnv {
		return fmt.Errorf("unknown environment %q, expected %s or %s", env, developmentEnv, productionEnv)
	}
	if env == productionEnv && cliCtx.String(flags.MetadataEncryptionKeyFlag.Name) == "" {
		return errors.New("metadata encryption key is required in production")
	}
	if cliCtx.String(flags.TurnSecretFlag.Name) == "" && cliCtx.String(flags.TurnServerFlag.Name) != "" {
		log.Warn("Relay server configured without a secret, answering ICE requests with STUN only")
	}
	return nil
}

// Start the node and kick off every registered service.
func (n *SignalNode) Start() {
	n.lock.Lock()

	log.WithFields(logrus.Fields{
		"version": version.GetVersion(),
	}).Info("Starting signal server node")

	n.services.StartAll()

	stop := n.stop
	n.lock.Unlock()

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		// Hung teardown must not keep the process alive past the grace
		// period.
		time.AfterFunc(params.Config().ShutdownGracePeriod, func() {
			log.Error("Graceful shutdown deadline exceeded, exiting")
			os.Exit(1)
		})
		go n.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic")
			}
		}
		panic("Panic closing the signal server node")
	}()

	// Wait for stop channel to be closed.
	<-stop
}

// Close handles graceful shutdown of the system.
func (n *SignalNode) Close() {
	n.lock.Lock()
	defer n.lock.Unlock()

	log.Info("Stopping signal server node")
	n.services.StopAll()
	if err := n.db.Close(); err != nil {
		log.Errorf("Failed to close database: %v", err)
	}
	n.cancel()
	close(n.stop)
}

func (n *SignalNode) startDB(cliCtx *cli.Context) error {
	baseDir := cliCtx.String(cmd.DataDirFlag.Name)
	clearDB := cliCtx.Bool(cmd.ClearDB.Name)
	forceClearDB := cliCtx.Bool(cmd.ForceClearDB.Name)

	log.WithField("databasePath", baseDir).Info("Checking DB")

	d, err := db.NewDB(baseDir)
	if err != nil {
		return err
	}
	clearDBConfirmed := false
	if clearDB && !forceClearDB {
		actionText := "This will delete your session database stored in your data directory. " +
			"Your database backups will not be removed - do you want to proceed? (Y/N)"
		deniedText := "Database will not be deleted. No changes have been made."
		clearDBConfirmed, err = cmd.ConfirmAction(actionText, deniedText)
		if err != nil {
			return err
		}
	}
	if clearDBConfirmed || forceClearDB {
		log.Warning("Removing database")
		if err := d.Close(); err != nil {
			return errors.Wrap(err, "could not close db prior to clearing")
		}
		if err := d.ClearDB(); err != nil {
			return errors.Wrap(err, "could not clear database")
		}
		d, err = db.NewDB(baseDir)
		if err != nil {
			return errors.Wrap(err, "could not create new database")
		}
	}
	n.db = d
	return nil
}

func (n *SignalNode) startComponents(cliCtx *cli.Context) error {
	production := cliCtx.String(flags.EnvironmentFlag.Name) == productionEnv
	sealer, err := envelope.New(cliCtx.String(flags.MetadataEncryptionKeyFlag.Name), production)
	if err != nil {
		return errors.Wrap(err, "could not initialize metadata encryption")
	}
	auditLog, err := audit.NewLog()
	if err != nil {
		return errors.Wrap(err, "could not initialize audit log")
	}

	cfg := params.Config()
	n.sealer = sealer
	n.auditLog = auditLog
	n.tracker = guard.NewTracker(auditLog)
	n.caps = guard.NewSessionCaps()
	n.registry = registry.New()
	n.hub = gateway.NewHub()
	n.minter = ice.NewMinter(
		cliCtx.String(flags.TurnServerFlag.Name),
		cliCtx.String(flags.TurnSecretFlag.Name),
		cliCtx.Bool(flags.TurnsEnabledFlag.Name),
	)
	n.uploadLimiter = limiter.New(n.ctx, "upload-init", cfg.UploadInitWindow, cfg.UploadInitLimit)
	n.joinLimiter = limiter.New(n.ctx, "join-room", cfg.JoinRoomWindow, cfg.JoinRoomLimit)
	n.connLimiter = limiter.New(n.ctx, "connection", cfg.ConnectionWindow, cfg.ConnectionLimit)
	n.throttle = limiter.NewSocketThrottle()
	return nil
}

func (n *SignalNode) registerSignalingService() error {
	svc := signaling.NewService(n.ctx, &signaling.Config{
		Database:      n.db,
		Sealer:        n.sealer,
		Registry:      n.registry,
		Guard:         n.tracker,
		Caps:          n.caps,
		UploadLimiter: n.uploadLimiter,
		JoinLimiter:   n.joinLimiter,
		AuditLog:      n.auditLog,
		Sink:          n.hub,
	})
	return n.services.RegisterService(svc)
}

func (n *SignalNode) registerGatewayService(cliCtx *cli.Context) error {
	var sigSvc *signaling.Service
	if err := n.services.FetchService(&sigSvc); err != nil {
		return err
	}
	svc := gateway.NewService(n.ctx, &gateway.Config{
		Host:          cliCtx.String(flags.HostFlag.Name),
		Port:          cliCtx.Int(flags.PortFlag.Name),
		AllowedOrigin: cliCtx.String(flags.ClientOriginFlag.Name),
		Hub:           n.hub,
		Dispatcher:    sigSvc,
		Guard:         n.tracker,
		ConnLimiter:   n.connLimiter,
		Throttle:      n.throttle,
		Minter:        n.minter,
	})
	return n.services.RegisterService(svc)
}

func (n *SignalNode) registerSweeperService() error {
	svc := sweeper.NewService(n.ctx, &sweeper.Config{
		Database: n.db,
		Registry: n.registry,
		Guard:    n.tracker,
		Caps:     n.caps,
		AuditLog: n.auditLog,
	})
	return n.services.RegisterService(svc)
}

func (n *SignalNode) registerPrometheusService(cliCtx *cli.Context) error {
	additionalHandlers := []prometheus.Handler{
		{Path: "/audit", Handler: audit.QueryHandler(n.auditLog)},
	}
	if cliCtx.IsSet(cmd.EnableBackupWebhookFlag.Name) {
		additionalHandlers = append(
			additionalHandlers,
			prometheus.Handler{
				Path:    "/db/backup",
				Handler: backup.Handler(n.db, cliCtx.String(cmd.BackupWebhookOutputDir.Name)),
			},
		)
	}

	service := prometheus.NewService(
		fmt.Sprintf("%s:%d", cliCtx.String(cmd.MonitoringHostFlag.Name), cliCtx.Int(flags.MonitoringPortFlag.Name)),
		n.services,
		additionalHandlers...,
	)
	hook := prometheus.NewLogrusCollector()
	logrus.AddHook(hook)
	return n.services.RegisterService(service)
}
