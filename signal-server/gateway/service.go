// Package gateway is the client-facing edge of the daemon: it terminates
// the websocket event channel, enforces the connection-level admission
// rules, and serves the small HTTP API. Inbound events are handed to a
// Dispatcher in arrival order per connection; outbound events flow back
// through the Hub, which the signaling core drives without knowing anything
// about sockets.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/beamgate/beamgate/runtime"
	"github.com/beamgate/beamgate/signal-server/guard"
	"github.com/beamgate/beamgate/signal-server/ice"
	"github.com/beamgate/beamgate/signal-server/limiter"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logrus.WithField("prefix", "gateway")

var _ runtime.Service = (*Service)(nil)

// Dispatcher consumes the connection lifecycle and the inbound events of
// accepted endpoints. Calls for one endpoint arrive in connection order.
type Dispatcher interface {
	HandleConnect(endpointID, ip string)
	HandleMessage(endpointID, event string, payload json.RawMessage)
	HandleDisconnect(endpointID string)
}

// Config options for the gateway service.
type Config struct {
	Host          string
	Port          int
	AllowedOrigin string
	Hub           *Hub
	Dispatcher    Dispatcher
	Guard         *guard.Tracker
	ConnLimiter   *limiter.Limiter
	Throttle      *limiter.SocketThrottle
	Minter        *ice.Minter
}

// Service serves the websocket endpoint and the HTTP API.
type Service struct {
	ctx          context.Context
	cancel       context.CancelFunc
	cfg          *Config
	server       *http.Server
	upgrader     websocket.Upgrader
	startFailure error
}

// NewService instantiates a gateway from its configuration.
func NewService(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	s := &Service{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Start begins listening. Failures surface through Status rather than
// aborting the process, matching the registry's fire-and-forget startup.
func (s *Service) Start() {
	address := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{
		Addr:              address,
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.WithField("address", address).Info("Starting gateway")
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Error("Failed to listen and serve")
			s.startFailure = err
		}
	}()
}

// Stop closes the live endpoint connections in parallel, then shuts the
// listener down.
func (s *Service) Stop() error {
	defer s.cancel()
	log.Info("Stopping gateway")

	g, _ := errgroup.WithContext(s.ctx)
	for _, c := range s.cfg.Hub.snapshot() {
		c := c
		g.Go(func() error {
			deadline := time.Now().Add(time.Second)
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
			return c.conn.Close()
		})
	}
	if err := g.Wait(); err != nil {
		log.WithError(err).Debug("Some connections closed uncleanly")
	}

	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				log.Warn("Existing connections terminated")
				return nil
			}
			return err
		}
	}
	return nil
}

// Status of the gateway. Returns the listen error when startup failed.
func (s *Service) Status() error {
	return s.startFailure
}

func (s *Service) handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/ice-servers", s.iceServersHandler).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.socketHandler)
	return securityHeaders(s.corsMiddleware(r))
}

func (s *Service) corsMiddleware(h http.Handler) http.Handler {
	var origins []string
	if s.cfg.AllowedOrigin != "" {
		origins = []string{s.cfg.AllowedOrigin}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowCredentials: true,
		MaxAge:           600,
		AllowedHeaders:   []string{"*"},
	})
	return c.Handler(h)
}

// checkOrigin admits browser upgrades from the configured client origin.
// Requests without an Origin header are non-browser clients and pass.
func (s *Service) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.cfg.AllowedOrigin == "" {
		return true
	}
	return strings.TrimSuffix(origin, "/") == strings.TrimSuffix(s.cfg.AllowedOrigin, "/")
}

// iceServersHandler answers with the connectivity-establishment list,
// minting fresh relay credentials per request.
func (s *Service) iceServersHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	resp := struct {
		IceServers []ice.Server `json:"iceServers"`
	}{
		IceServers: s.cfg.Minter.Servers(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithError(err).Error("Could not encode ice servers response")
	}
}
