// Package signaling implements the server-side core of a browser-to-browser
// file handoff: session lifecycle, one-time access codes, and the opaque
// relay of connection negotiation payloads between exactly two endpoints.
package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/beamgate/beamgate/async"
	"github.com/beamgate/beamgate/crypto/envelope"
	"github.com/beamgate/beamgate/shared/messagehandler"
	"github.com/beamgate/beamgate/shared/params"
	"github.com/beamgate/beamgate/shared/timeutils"
	"github.com/beamgate/beamgate/signal-server/audit"
	"github.com/beamgate/beamgate/signal-server/db"
	"github.com/beamgate/beamgate/signal-server/guard"
	"github.com/beamgate/beamgate/signal-server/limiter"
	"github.com/beamgate/beamgate/signal-server/registry"
	"github.com/beamgate/beamgate/signal-server/validation"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "signaling")

// Client-facing error messages. Internal failure details never leak into
// these.
const (
	msgInvalidCode       = "Invalid code"
	msgCodeUsed          = "Code already used"
	msgNotFound          = "Session not found"
	msgAlreadyDownloaded = "File already downloaded"
	msgSenderOffline     = "Sender is no longer connected"
	msgInternal          = "Internal server error"
	msgPeerGone          = "peer disconnected"
)

// Cancel reasons are echoed to the peer, so their length is bounded.
const maxCancelReasonLen = 200

var (
	errInputNotEventData = errors.New("input data does not match expected event payload")
	errSenderOffline     = errors.New("no registered sender for session")
)

// uploadContext carries the precomputed pieces of a new share into the
// uploadInit transition.
type uploadContext struct {
	endpointID string
	ip         string
	code       string
	warnings   []string
	size       int64
}

// joinContext carries a code redemption attempt into the joinRoom
// transition.
type joinContext struct {
	endpointID string
	ip         string
	code       string
	row        *db.Session
}

// closeContext carries cancel and completion requests into their terminal
// transitions.
type closeContext struct {
	endpointID string
	ip         string
	reason     string
}

// senderLostContext marks the disconnection of a session's sender.
type senderLostContext struct {
	endpointID string
	ip         string
}

// Config collects the collaborating components the signaling service drives.
type Config struct {
	Database      db.Database
	Sealer        *envelope.Sealer
	Registry      *registry.Registry
	Guard         *guard.Tracker
	Caps          *guard.SessionCaps
	UploadLimiter *limiter.Limiter
	JoinLimiter   *limiter.Limiter
	AuditLog      *audit.Log
	Sink          Sink
}

// Service processes inbound endpoint events against per-session state
// machines. Events for one session id apply strictly one at a time; there
// is no cross-session ordering.
type Service struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *Config
	mux      *Multiplexer
	router   *Router
	machines *stateMachineManager
	now      func() time.Time
}

// NewService instantiates the signaling core and attaches its lifecycle
// transition handlers.
func NewService(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	s := &Service{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		mux:      NewMultiplexer(),
		machines: newStateMachineManager(),
		now:      timeutils.Now,
	}
	s.router = NewRouter(s.mux, cfg.Sink)
	s.machines.addEventHandler(eventUploadInit, stateNone, s.onUploadInit)
	s.machines.addEventHandler(eventJoinRoom, stateWaiting, s.onJoinRoom)
	s.machines.addEventHandler(eventCancelTransfer, stateWaiting, s.onCancelTransfer)
	s.machines.addEventHandler(eventCancelTransfer, stateActive, s.onCancelTransfer)
	s.machines.addEventHandler(eventTransferComplete, stateWaiting, s.onTransferComplete)
	s.machines.addEventHandler(eventTransferComplete, stateActive, s.onTransferComplete)
	s.machines.addEventHandler(eventSenderLost, stateWaiting, s.onSenderLostWaiting)
	s.machines.addEventHandler(eventSenderLost, stateActive, s.onSenderLostActive)
	return s
}

// Start launches the background janitor that forgets machines for sessions
// past their maximum age.
func (s *Service) Start() {
	log.Info("Starting signaling service")
	async.RunEvery(s.ctx, params.Config().SweepInterval, func() {
		if removed := s.machines.prune(params.Config().SessionMaxAge); removed > 0 {
			log.WithField("machines", removed).Debug("Pruned finished session machines")
		}
	})
}

// Stop halts event processing and background pruning.
func (s *Service) Stop() error {
	defer s.cancel()
	log.Info("Stopping signaling service")
	return nil
}

// Status always returns nil.
func (s *Service) Status() error {
	return nil
}

// HandleConnect registers an accepted endpoint connection. Gating (abuse
// guard, connection limiter) happens before this point, at the transport.
func (s *Service) HandleConnect(endpointID, ip string) {
	s.mux.Connect(endpointID, ip)
	connectedEndpoints.Inc()
	s.cfg.AuditLog.Record(audit.Entry{
		Event:      "endpoint-connected",
		EndpointID: endpointID,
		IP:         ip,
	})
	log.WithFields(logrus.Fields{
		"endpoint": endpointID,
		"ip":       ip,
	}).Debug("Endpoint connected")
}

// HandleDisconnect unwinds everything attached to a departing endpoint:
// room memberships, peer notifications, and sender-side session recovery.
// Multiplexer state is torn down before the abuse guard's disconnect hook
// runs.
func (s *Service) HandleDisconnect(endpointID string) {
	ip, sessions, ok := s.mux.Disconnect(endpointID)
	if !ok {
		return
	}
	connectedEndpoints.Dec()
	for _, id := range sessions {
		for _, peer := range s.mux.Peers(id, endpointID) {
			s.cfg.Sink.Emit(peer, EventTransferCancelled, &TransferCancelled{Reason: msgPeerGone})
		}
		if !s.cfg.Registry.IsSender(id, endpointID) {
			continue
		}
		fsm, found := s.machines.findStateMachine(id)
		if !found {
			continue
		}
		if err := s.machines.trigger(eventSenderLost, fsm, &senderLostContext{endpointID: endpointID, ip: ip}); err != nil {
			log.WithError(err).WithField("session", id).Debug("Could not process sender loss")
			continue
		}
		if fsm.currentState() == stateTerminated {
			s.machines.removeStateMachine(id)
		}
	}
	s.cfg.Guard.TrackDisconnect(ip)
	s.cfg.AuditLog.Record(audit.Entry{
		Event:      "endpoint-disconnected",
		EndpointID: endpointID,
		IP:         ip,
	})
	log.WithFields(logrus.Fields{
		"endpoint": endpointID,
		"ip":       ip,
	}).Debug("Endpoint disconnected")
}

// HandleMessage dispatches one inbound event inside the panic boundary.
// A recovered panic surfaces as an internal error to the origin endpoint,
// except on the relay path, which never signals failures.
func (s *Service) HandleMessage(endpointID, event string, payload json.RawMessage) {
	err := messagehandler.SafelyHandleEvent(func() error {
		s.dispatch(endpointID, event, payload)
		return nil
	}, event)
	if errors.Is(err, messagehandler.ErrHandlerPanicked) && event != EventSignal {
		s.sendError(endpointID, msgInternal, false)
	}
}

func (s *Service) dispatch(endpointID, event string, payload json.RawMessage) {
	switch event {
	case EventUploadInit:
		s.handleUploadInit(endpointID, payload)
	case EventJoinRoom:
		s.handleJoinRoom(endpointID, payload)
	case EventSignal:
		s.handleSignal(endpointID, payload)
	case EventCancelTransfer:
		s.handleCancelTransfer(endpointID, payload)
	case EventTransferComplete:
		s.handleTransferComplete(endpointID, payload)
	default:
		log.WithField("event", event).Debug("Ignoring unknown event")
	}
}

func (s *Service) handleUploadInit(endpointID string, raw json.RawMessage) {
	ip, ok := s.mux.IP(endpointID)
	if !ok {
		return
	}
	var req UploadInitRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.sendError(endpointID, err.Error(), false)
		return
	}
	if d := s.cfg.UploadLimiter.Check(endpointID); !d.Allowed {
		s.cfg.Guard.MarkSuspicious(ip, "upload-rate-limit")
		s.sendError(endpointID, rateLimitedMessage(s.now(), d.ResetAt), false)
		return
	}
	nameRes := validation.FileName(req.FileName)
	if !nameRes.Valid {
		s.sendError(endpointID, nameRes.Err.Error(), false)
		return
	}
	sizeRes := validation.FileSize(int64(req.FileSize))
	if !sizeRes.Valid {
		s.sendError(endpointID, sizeRes.Err.Error(), false)
		return
	}
	typeRes := validation.MimeType(req.FileType)
	if !typeRes.Valid {
		s.sendError(endpointID, typeRes.Err.Error(), false)
		return
	}
	if err := s.cfg.Caps.Check(ip); err != nil {
		s.sendError(endpointID, err.Error(), false)
		return
	}
	// The cap slot is held from here on; give it back unless the session is
	// fully created.
	created := false
	defer func() {
		if !created {
			s.cfg.Caps.Decrement(ip)
		}
	}()

	encName, err := s.cfg.Sealer.Encrypt(nameRes.Sanitized)
	if err != nil {
		log.WithError(err).Error("Could not encrypt file name")
		s.sendError(endpointID, msgInternal, false)
		return
	}
	encType, err := s.cfg.Sealer.Encrypt(typeRes.Sanitized)
	if err != nil {
		log.WithError(err).Error("Could not encrypt file type")
		s.sendError(endpointID, msgInternal, false)
		return
	}
	id, err := s.cfg.Database.CreateSession(s.ctx, encName, int64(req.FileSize), encType, req.FileHash, "")
	if err != nil {
		log.WithError(err).Error("Could not persist session")
		s.sendError(endpointID, msgInternal, false)
		return
	}
	code, err := s.cfg.Registry.Register(id, endpointID, ip)
	if err != nil {
		log.WithError(err).WithField("session", id).Error("Could not register sender")
		if delErr := s.cfg.Database.DeleteSession(s.ctx, id); delErr != nil {
			log.WithError(delErr).WithField("session", id).Error("Could not delete orphaned session")
		}
		s.sendError(endpointID, msgInternal, false)
		return
	}

	var warnings []string
	if nameRes.Warning != "" {
		warnings = append(warnings, nameRes.Warning)
	} else if typeRes.Warning != "" {
		warnings = append(warnings, typeRes.Warning)
	}
	fsm := s.machines.machineFor(id, stateNone)
	data := &uploadContext{
		endpointID: endpointID,
		ip:         ip,
		code:       code,
		warnings:   warnings,
		size:       int64(req.FileSize),
	}
	if err := s.machines.trigger(eventUploadInit, fsm, data); err != nil {
		log.WithError(err).WithField("session", id).Error("Could not initialize session")
		s.cfg.Registry.Remove(id)
		if delErr := s.cfg.Database.DeleteSession(s.ctx, id); delErr != nil {
			log.WithError(delErr).WithField("session", id).Error("Could not delete orphaned session")
		}
		s.sendError(endpointID, msgInternal, false)
		return
	}
	created = true
}

func (s *Service) handleJoinRoom(endpointID string, raw json.RawMessage) {
	ip, ok := s.mux.IP(endpointID)
	if !ok {
		return
	}
	var req JoinRoomRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.sendError(endpointID, err.Error(), false)
		return
	}
	if d := s.cfg.JoinLimiter.Check(endpointID); !d.Allowed {
		s.cfg.Guard.MarkSuspicious(ip, "join-rate-limit")
		s.sendError(endpointID, rateLimitedMessage(s.now(), d.ResetAt), false)
		return
	}
	idRes := validation.SessionID(req.FileID)
	if !idRes.Valid {
		s.cfg.Guard.MarkSuspicious(ip, "invalid-session-id")
		s.sendError(endpointID, idRes.Err.Error(), false)
		return
	}
	id := idRes.Sanitized
	row, err := s.cfg.Database.Session(s.ctx, id)
	if err != nil {
		log.WithError(err).WithField("session", id).Error("Could not look up session")
		s.sendError(endpointID, msgInternal, false)
		return
	}
	if row == nil {
		s.sendError(endpointID, msgNotFound, false)
		return
	}
	if row.Status == db.StatusCompleted {
		s.sendError(endpointID, msgAlreadyDownloaded, false)
		return
	}
	fsm := s.machines.machineFor(id, machineState(row.Status))
	err = s.machines.trigger(eventJoinRoom, fsm, &joinContext{
		endpointID: endpointID,
		ip:         ip,
		code:       req.Code,
		row:        row,
	})
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, errForbiddenTransition), errors.Is(err, registry.ErrCodeUsed):
		// Another receiver already redeemed the code.
		s.cfg.Guard.MarkSuspicious(ip, "invalid-code")
		s.sendError(endpointID, msgCodeUsed, true)
	case errors.Is(err, registry.ErrCodeMismatch):
		s.cfg.Guard.MarkSuspicious(ip, "invalid-code")
		s.sendError(endpointID, msgInvalidCode, true)
	case errors.Is(err, errSenderOffline), errors.Is(err, registry.ErrUnknownSession):
		s.sendError(endpointID, msgSenderOffline, false)
	default:
		log.WithError(err).WithField("session", id).Error("Could not join session")
		s.sendError(endpointID, msgInternal, false)
	}
}

func (s *Service) handleSignal(endpointID string, raw json.RawMessage) {
	var req SignalRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.flagMisuse(endpointID, "", EventSignal, "malformed-payload")
		return
	}
	idRes := validation.SessionID(req.FileID)
	if !idRes.Valid {
		s.flagMisuse(endpointID, "", EventSignal, "invalid-session-id")
		return
	}
	if err := s.router.Relay(idRes.Sanitized, endpointID, req.Target, req.Data); err != nil {
		s.flagMisuse(endpointID, idRes.Sanitized, EventSignal, relayDropReason(err))
	}
}

func (s *Service) handleCancelTransfer(endpointID string, raw json.RawMessage) {
	var req CancelTransferRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.flagMisuse(endpointID, "", EventCancelTransfer, "malformed-payload")
		return
	}
	idRes := validation.SessionID(req.FileID)
	if !idRes.Valid {
		s.flagMisuse(endpointID, "", EventCancelTransfer, "invalid-session-id")
		return
	}
	id := idRes.Sanitized
	if !s.mux.InRoom(id, endpointID) {
		s.flagMisuse(endpointID, id, EventCancelTransfer, "source-not-in-room")
		return
	}
	fsm, found := s.machines.findStateMachine(id)
	if !found {
		return
	}
	ip, _ := s.mux.IP(endpointID)
	reason := req.Reason
	if len(reason) > maxCancelReasonLen {
		reason = reason[:maxCancelReasonLen]
	}
	err := s.machines.trigger(eventCancelTransfer, fsm, &closeContext{
		endpointID: endpointID,
		ip:         ip,
		reason:     reason,
	})
	if err != nil {
		log.WithError(err).WithField("session", id).Debug("Could not cancel session")
		return
	}
	s.machines.removeStateMachine(id)
}

func (s *Service) handleTransferComplete(endpointID string, raw json.RawMessage) {
	var req TransferCompleteRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.flagMisuse(endpointID, "", EventTransferComplete, "malformed-payload")
		return
	}
	idRes := validation.SessionID(req.FileID)
	if !idRes.Valid {
		s.flagMisuse(endpointID, "", EventTransferComplete, "invalid-session-id")
		return
	}
	id := idRes.Sanitized
	if !s.mux.InRoom(id, endpointID) {
		s.flagMisuse(endpointID, id, EventTransferComplete, "source-not-in-room")
		return
	}
	fsm, found := s.machines.findStateMachine(id)
	if !found {
		return
	}
	ip, _ := s.mux.IP(endpointID)
	err := s.machines.trigger(eventTransferComplete, fsm, &closeContext{
		endpointID: endpointID,
		ip:         ip,
	})
	if err != nil {
		log.WithError(err).WithField("session", id).Debug("Could not complete session")
		return
	}
	s.machines.removeStateMachine(id)
}

// onUploadInit seats the sender in the new session's room and hands back the
// share handle with its one-time code.
func (s *Service) onUploadInit(m *stateMachine, data interface{}) (stateID, error) {
	uc, ok := data.(*uploadContext)
	if !ok {
		return m.state, errInputNotEventData
	}
	if err := s.mux.Join(m.id, uc.endpointID); err != nil {
		return m.state, err
	}
	s.cfg.Sink.Emit(uc.endpointID, EventUploadCreated, &UploadCreated{
		FileID:      m.id,
		OneTimeCode: uc.code,
		Warnings:    uc.warnings,
	})
	s.cfg.AuditLog.Record(audit.Entry{
		Event:      "session-created",
		EndpointID: uc.endpointID,
		SessionID:  m.id,
		IP:         uc.ip,
		Details:    map[string]interface{}{"fileSize": uc.size},
	})
	sessionsCreatedTotal.Inc()
	log.WithFields(logrus.Fields{
		"session":  m.id,
		"endpoint": uc.endpointID,
		"size":     humanize.Bytes(uint64(uc.size)),
	}).Info("Session created")
	return stateWaiting, nil
}

// onJoinRoom redeems the access code, activates the session, and introduces
// the two endpoints to each other.
func (s *Service) onJoinRoom(m *stateMachine, data interface{}) (stateID, error) {
	jc, ok := data.(*joinContext)
	if !ok {
		return m.state, errInputNotEventData
	}
	sender, ok := s.cfg.Registry.Sender(m.id)
	if !ok {
		return m.state, errSenderOffline
	}
	if err := s.cfg.Registry.ValidateCode(m.id, jc.code); err != nil {
		return m.state, err
	}
	if err := s.cfg.Database.SetSessionStatus(s.ctx, m.id, db.StatusActive); err != nil {
		return m.state, errors.Wrap(err, "could not activate session")
	}
	if err := s.mux.Join(m.id, jc.endpointID); err != nil {
		return m.state, err
	}
	s.cfg.Sink.Emit(jc.endpointID, EventFileMeta, s.fileMeta(jc.row))
	s.cfg.Sink.Emit(sender, EventReceiverJoined, &ReceiverJoined{ReceiverID: jc.endpointID})
	s.cfg.AuditLog.Record(audit.Entry{
		Event:      "receiver-joined",
		EndpointID: jc.endpointID,
		SessionID:  m.id,
		IP:         jc.ip,
	})
	receiverJoinsTotal.Inc()
	log.WithFields(logrus.Fields{
		"session":  m.id,
		"endpoint": jc.endpointID,
	}).Info("Receiver joined session")
	return stateActive, nil
}

// onCancelTransfer tells the peer the session is over and removes every
// trace of it.
func (s *Service) onCancelTransfer(m *stateMachine, data interface{}) (stateID, error) {
	cc, ok := data.(*closeContext)
	if !ok {
		return m.state, errInputNotEventData
	}
	for _, peer := range s.mux.Peers(m.id, cc.endpointID) {
		s.cfg.Sink.Emit(peer, EventTransferCancelled, &TransferCancelled{Reason: cc.reason})
	}
	s.teardown(m.id)
	s.cfg.AuditLog.Record(audit.Entry{
		Event:      "transfer-cancelled",
		EndpointID: cc.endpointID,
		SessionID:  m.id,
		IP:         cc.ip,
		Details:    map[string]interface{}{"reason": cc.reason},
	})
	sessionsCancelledTotal.Inc()
	log.WithFields(logrus.Fields{
		"session":  m.id,
		"endpoint": cc.endpointID,
	}).Info("Session cancelled")
	return stateTerminated, nil
}

// onTransferComplete removes a finished session so its id can never be
// joined again.
func (s *Service) onTransferComplete(m *stateMachine, data interface{}) (stateID, error) {
	cc, ok := data.(*closeContext)
	if !ok {
		return m.state, errInputNotEventData
	}
	s.teardown(m.id)
	s.cfg.AuditLog.Record(audit.Entry{
		Event:      "transfer-complete",
		EndpointID: cc.endpointID,
		SessionID:  m.id,
		IP:         cc.ip,
	})
	sessionsCompletedTotal.Inc()
	log.WithField("session", m.id).Info("Transfer complete")
	return stateCompleted, nil
}

// onSenderLostActive resets an in-progress session back to waiting when its
// sender drops, keeping the registry entry so the row stays attributable.
func (s *Service) onSenderLostActive(m *stateMachine, data interface{}) (stateID, error) {
	if _, ok := data.(*senderLostContext); !ok {
		return m.state, errInputNotEventData
	}
	if err := s.cfg.Database.SetSessionStatus(s.ctx, m.id, db.StatusWaiting); err != nil {
		log.WithError(err).WithField("session", m.id).Error("Could not reset session to waiting")
	}
	log.WithField("session", m.id).Debug("Sender lost, session reset to waiting")
	return stateWaiting, nil
}

// onSenderLostWaiting drops the registry entry for an unserviceable share.
// The repository row stays behind for the sweeper.
func (s *Service) onSenderLostWaiting(m *stateMachine, data interface{}) (stateID, error) {
	if _, ok := data.(*senderLostContext); !ok {
		return m.state, errInputNotEventData
	}
	if senderIP, ok := s.cfg.Registry.SenderIP(m.id); ok {
		s.cfg.Caps.Decrement(senderIP)
	}
	s.cfg.Registry.Remove(m.id)
	log.WithField("session", m.id).Debug("Sender lost before handoff, share dropped")
	return stateTerminated, nil
}

// teardown removes every trace of a finished session: the cap slot held by
// the sender's IP, the registry entry, the repository row, and the room.
func (s *Service) teardown(id string) {
	if senderIP, ok := s.cfg.Registry.SenderIP(id); ok {
		s.cfg.Caps.Decrement(senderIP)
	}
	s.cfg.Registry.Remove(id)
	if err := s.cfg.Database.DeleteSession(s.ctx, id); err != nil {
		log.WithError(err).WithField("session", id).Error("Could not delete session")
	}
	s.mux.CloseRoom(id)
}

// fileMeta rebuilds the client-facing description of the offered file from
// a repository row, including the danger re-screening of its decrypted
// metadata.
func (s *Service) fileMeta(row *db.Session) *FileMeta {
	name := s.cfg.Sealer.Decrypt(row.EncryptedName)
	mime := s.cfg.Sealer.Decrypt(row.EncryptedType)
	meta := &FileMeta{
		FileName: name,
		FileSize: Int64String(row.Size),
		FileType: mime,
		FileHash: row.FileHash,
	}
	nameRes := validation.FileName(name)
	typeRes := validation.MimeType(mime)
	if nameRes.Dangerous || typeRes.Dangerous {
		meta.IsDangerous = true
		if nameRes.Warning != "" {
			meta.Warnings = append(meta.Warnings, nameRes.Warning)
		} else if typeRes.Warning != "" {
			meta.Warnings = append(meta.Warnings, typeRes.Warning)
		}
	}
	return meta
}

// flagMisuse records a silently dropped event: the sender's IP gains a
// suspicious mark and the audit log a security entry, while the source
// endpoint learns nothing.
func (s *Service) flagMisuse(endpointID, sessionID, event, reason string) {
	ip, _ := s.mux.IP(endpointID)
	s.cfg.Guard.MarkSuspicious(ip, reason)
	s.cfg.AuditLog.Record(audit.Entry{
		Level:      audit.Security,
		Event:      "event-dropped",
		EndpointID: endpointID,
		SessionID:  sessionID,
		IP:         ip,
		Details:    map[string]interface{}{"event": event, "reason": reason},
	})
	log.WithFields(logrus.Fields{
		"endpoint": endpointID,
		"event":    event,
		"reason":   reason,
	}).Debug("Dropped endpoint event")
}

func (s *Service) sendError(endpointID, message string, invalidCode bool) {
	s.cfg.Sink.Emit(endpointID, EventError, &ErrorEvent{
		Message:     message,
		InvalidCode: invalidCode,
	})
}

// machineState maps a persisted status onto the lifecycle state a machine
// should resume from.
func machineState(status db.Status) stateID {
	switch status {
	case db.StatusWaiting:
		return stateWaiting
	case db.StatusActive:
		return stateActive
	case db.StatusCompleted:
		return stateCompleted
	}
	return stateNone
}

// relayDropReason labels a relay failure for suspicion tracking and audit.
func relayDropReason(err error) string {
	switch {
	case errors.Is(err, errSourceNotInRoom):
		return "source-not-in-room"
	case errors.Is(err, errTargetNotConnected):
		return "target-not-connected"
	case errors.Is(err, errTargetNotInRoom):
		return "target-not-in-room"
	}
	return "relay-failed"
}

func rateLimitedMessage(now, resetAt time.Time) string {
	secs := int64(math.Ceil(resetAt.Sub(now).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("Too many requests. Try again in %d seconds", secs)
}
