package gateway

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/beamgate/beamgate/signal-server/signaling"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single outbound write, including control frames.
	writeWait = 10 * time.Second
	// pongWait is how long a silent connection may live between pongs.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxFrameBytes caps one inbound frame. Signaling payloads are a few
	// kilobytes; anything near this size is abuse.
	maxFrameBytes = 512 << 10
	// sendQueueSize is the per-endpoint outbound buffer. A consumer that
	// falls further behind loses events instead of stalling the fabric.
	sendQueueSize = 64
)

// socketHandler admits or rejects the connection, then runs its pumps. The
// abuse tracker rules first so blocked addresses never reach the limiter.
func (s *Service) socketHandler(w http.ResponseWriter, r *http.Request) {
	ip := remoteIP(r)

	verdict := s.cfg.Guard.TrackConnect(ip)
	if verdict.Blocked {
		socketRejectionsTotal.WithLabelValues("blocked").Inc()
		mins := int64(math.Ceil(verdict.BlockedFor.Minutes()))
		if mins < 1 {
			mins = 1
		}
		s.rejectSocket(w, r, fmt.Sprintf("Too many connection attempts. Blocked for %d minutes", mins))
		return
	}
	if !verdict.Allowed {
		socketRejectionsTotal.WithLabelValues("soft_limit").Inc()
		s.rejectSocket(w, r, "Too many connections. Please slow down")
		return
	}
	if d := s.cfg.ConnLimiter.Check(ip); !d.Allowed {
		socketRejectionsTotal.WithLabelValues("rate_limited").Inc()
		s.cfg.Guard.MarkSuspicious(ip, "connection-rate-limit")
		secs := int64(math.Ceil(time.Until(d.ResetAt).Seconds()))
		if secs < 1 {
			secs = 1
		}
		s.rejectSocket(w, r, fmt.Sprintf("Too many connections. Try again in %d seconds", secs))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("Could not upgrade connection")
		return
	}
	c := &client{
		id:   uuid.New().String(),
		ip:   ip,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}
	s.cfg.Hub.add(c)
	s.cfg.Dispatcher.HandleConnect(c.id, c.ip)
	go s.writePump(c)
	s.readPump(c)
}

// readPump delivers inbound frames to the dispatcher in arrival order. It
// owns disconnect processing: whatever ends the read loop, the endpoint is
// torn down exactly once.
func (s *Service) readPump(c *client) {
	defer func() {
		s.cfg.Dispatcher.HandleDisconnect(c.id)
		s.cfg.Hub.remove(c.id)
		if err := c.conn.Close(); err != nil {
			log.WithError(err).Debug("Could not close connection")
		}
	}()
	c.conn.SetReadLimit(maxFrameBytes)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.WithError(err).WithField("endpoint", c.id).Debug("Socket closed unexpectedly")
			}
			return
		}
		if !s.cfg.Throttle.Allow(c.id) {
			framesDroppedTotal.WithLabelValues("throttle").Inc()
			continue
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
			framesDroppedTotal.WithLabelValues("malformed").Inc()
			s.cfg.Guard.MarkSuspicious(c.ip, "malformed-frame")
			continue
		}
		s.cfg.Dispatcher.HandleMessage(c.id, f.Event, f.Data)
	}
}

// writePump drains the endpoint's queue onto the wire and keeps the
// connection alive with pings. It is the only writer for the connection.
func (s *Service) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		// Unblocks the read side if the write side dies first.
		if err := c.conn.Close(); err != nil {
			log.WithError(err).Debug("Could not close connection")
		}
	}()
	for {
		select {
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// rejectSocket completes the upgrade just long enough to deliver a
// best-effort error event, then drops the connection.
func (s *Service) rejectSocket(w http.ResponseWriter, r *http.Request, message string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.WithError(err).Debug("Could not close rejected connection")
		}
	}()
	raw, err := marshalFrame(signaling.EventError, &signaling.ErrorEvent{Message: message})
	if err != nil {
		return
	}
	deadline := time.Now().Add(writeWait)
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, raw)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "rejected"), deadline)
}

// remoteIP extracts the client address, preferring the forwarding headers
// set by the fronting proxy.
func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	if real := r.Header.Get("X-Real-Ip"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
