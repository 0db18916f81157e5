package signaling

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/beamgate/beamgate/crypto/envelope"
	"github.com/beamgate/beamgate/signal-server/audit"
	"github.com/beamgate/beamgate/signal-server/db"
	dbtest "github.com/beamgate/beamgate/signal-server/db/testing"
	"github.com/beamgate/beamgate/signal-server/guard"
	"github.com/beamgate/beamgate/signal-server/limiter"
	"github.com/beamgate/beamgate/signal-server/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var oneTimeCodePattern = regexp.MustCompile(`^[ABCDEFGHJKLMNPQRSTUVWXYZ23456789]{6}$`)

type serviceFixture struct {
	svc    *Service
	sink   *recordingSink
	db     db.Database
	sealer *envelope.Sealer
	reg    *registry.Registry
	caps   *guard.SessionCaps
	audits *audit.Log
}

func setupService(t *testing.T) *serviceFixture {
	return setupServiceWithLimits(t, 5, 20)
}

func setupServiceWithLimits(t *testing.T, uploadMax, joinMax int) *serviceFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	database := dbtest.SetupDB(t)
	sealer, err := envelope.New(strings.Repeat("ab", 32), false)
	require.NoError(t, err)
	audits, err := audit.NewLog()
	require.NoError(t, err)
	reg := registry.New()
	caps := guard.NewSessionCaps()
	sink := &recordingSink{}
	svc := NewService(ctx, &Config{
		Database:      database,
		Sealer:        sealer,
		Registry:      reg,
		Guard:         guard.NewTracker(audits),
		Caps:          caps,
		UploadLimiter: limiter.New(ctx, "upload-init", 300*time.Second, uploadMax),
		JoinLimiter:   limiter.New(ctx, "join-room", 60*time.Second, joinMax),
		AuditLog:      audits,
		Sink:          sink,
	})
	return &serviceFixture{
		svc:    svc,
		sink:   sink,
		db:     database,
		sealer: sealer,
		reg:    reg,
		caps:   caps,
		audits: audits,
	}
}

func (f *serviceFixture) send(t *testing.T, endpoint, event string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	f.svc.HandleMessage(endpoint, event, raw)
}

// createSession runs upload-init for the given sender and returns the
// upload-created acknowledgement.
func (f *serviceFixture) createSession(t *testing.T, sender string, req *UploadInitRequest) *UploadCreated {
	t.Helper()
	f.send(t, sender, EventUploadInit, req)
	last := f.sink.lastFor(t, sender)
	require.Equal(t, EventUploadCreated, last.event, "upload-init was rejected: %+v", last.payload)
	created, ok := last.payload.(*UploadCreated)
	require.True(t, ok)
	return created
}

func photoUpload() *UploadInitRequest {
	return &UploadInitRequest{
		FileName: "photo.jpg",
		FileSize: 10240,
		FileType: "image/jpeg",
	}
}

func TestService_HappyPath(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	f.svc.HandleConnect("e1", "198.51.100.1")
	f.svc.HandleConnect("e2", "198.51.100.2")

	created := f.createSession(t, "e1", photoUpload())
	require.NotEmpty(t, created.FileID)
	assert.Regexp(t, oneTimeCodePattern, created.OneTimeCode)
	assert.Empty(t, created.Warnings)

	row, err := f.db.Session(ctx, created.FileID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, db.StatusWaiting, row.Status)
	assert.NotEqual(t, "photo.jpg", row.EncryptedName, "plaintext name must never be persisted")
	assert.NotEqual(t, "image/jpeg", row.EncryptedType)
	assert.Equal(t, "photo.jpg", f.sealer.Decrypt(row.EncryptedName))
	assert.Equal(t, "image/jpeg", f.sealer.Decrypt(row.EncryptedType))

	f.send(t, "e2", EventJoinRoom, &JoinRoomRequest{FileID: created.FileID, Code: created.OneTimeCode})

	meta, ok := f.sink.lastFor(t, "e2").payload.(*FileMeta)
	require.True(t, ok, "receiver should get file-meta")
	assert.Equal(t, "photo.jpg", meta.FileName)
	assert.Equal(t, Int64String(10240), meta.FileSize)
	assert.Equal(t, "image/jpeg", meta.FileType)
	assert.False(t, meta.IsDangerous)

	joined, ok := f.sink.lastFor(t, "e1").payload.(*ReceiverJoined)
	require.True(t, ok, "sender should learn about the receiver")
	assert.Equal(t, "e2", joined.ReceiverID)

	row, err = f.db.Session(ctx, created.FileID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, db.StatusActive, row.Status)

	offer := json.RawMessage(`{"type":"offer","sdp":"X"}`)
	f.send(t, "e1", EventSignal, &SignalRequest{Target: "e2", Data: offer, FileID: created.FileID})
	fwd, ok := f.sink.lastFor(t, "e2").payload.(*SignalForward)
	require.True(t, ok)
	assert.Equal(t, "e1", fwd.From)
	assert.JSONEq(t, string(offer), string(fwd.Data))

	f.send(t, "e2", EventTransferComplete, &TransferCompleteRequest{FileID: created.FileID})
	row, err = f.db.Session(ctx, created.FileID)
	require.NoError(t, err)
	assert.Nil(t, row, "completed sessions are deleted")
	_, stillRegistered := f.reg.Sender(created.FileID)
	assert.False(t, stillRegistered)
	assert.Equal(t, 0, f.caps.Active("198.51.100.1"), "sender cap slot must be released")
	assert.Equal(t, 0, f.svc.machines.numMachines())
}

func TestService_WrongCodeLeavesCodeUsable(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	f.svc.HandleConnect("e1", "198.51.100.1")
	f.svc.HandleConnect("e2", "198.51.100.2")
	created := f.createSession(t, "e1", photoUpload())

	f.send(t, "e2", EventJoinRoom, &JoinRoomRequest{FileID: created.FileID, Code: "WRONG1"})
	errEvent, ok := f.sink.lastFor(t, "e2").payload.(*ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, msgInvalidCode, errEvent.Message)
	assert.True(t, errEvent.InvalidCode)

	row, err := f.db.Session(ctx, created.FileID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, db.StatusWaiting, row.Status, "failed join must not activate the session")

	// The code was not burned; a retry with the right code succeeds.
	f.send(t, "e2", EventJoinRoom, &JoinRoomRequest{FileID: created.FileID, Code: created.OneTimeCode})
	_, ok = f.sink.lastFor(t, "e2").payload.(*FileMeta)
	assert.True(t, ok)
}

func TestService_CodeReplayRejected(t *testing.T) {
	f := setupService(t)
	f.svc.HandleConnect("e1", "198.51.100.1")
	f.svc.HandleConnect("e2", "198.51.100.2")
	f.svc.HandleConnect("e3", "198.51.100.3")
	created := f.createSession(t, "e1", photoUpload())

	f.send(t, "e2", EventJoinRoom, &JoinRoomRequest{FileID: created.FileID, Code: created.OneTimeCode})
	require.IsType(t, &FileMeta{}, f.sink.lastFor(t, "e2").payload)

	f.send(t, "e3", EventJoinRoom, &JoinRoomRequest{FileID: created.FileID, Code: created.OneTimeCode})
	errEvent, ok := f.sink.lastFor(t, "e3").payload.(*ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, msgCodeUsed, errEvent.Message)
	assert.True(t, errEvent.InvalidCode)
	assert.False(t, f.svc.mux.InRoom(created.FileID, "e3"))
}

func TestService_OffRoomSignalSilentlyDropped(t *testing.T) {
	f := setupService(t)
	f.svc.HandleConnect("e1", "198.51.100.1")
	f.svc.HandleConnect("e3", "198.51.100.3")
	created := f.createSession(t, "e1", photoUpload())

	f.sink.reset()
	f.audits.EvictOlderThan(time.Now().Add(time.Hour))
	f.send(t, "e3", EventSignal, &SignalRequest{
		Target: "e1",
		Data:   json.RawMessage(`{"candidate":"x"}`),
		FileID: created.FileID,
	})

	assert.Empty(t, f.sink.all(), "nobody may observe a dropped relay")
	security := f.audits.LastByLevel(audit.Security, 10)
	require.Len(t, security, 1)
	assert.Equal(t, "event-dropped", security[0].Event)
	assert.Equal(t, "e3", security[0].EndpointID)
	assert.Equal(t, "198.51.100.3", security[0].IP)
}

func TestService_DangerousFileCarriesWarnings(t *testing.T) {
	f := setupService(t)
	f.svc.HandleConnect("e1", "198.51.100.1")
	f.svc.HandleConnect("e2", "198.51.100.2")

	created := f.createSession(t, "e1", &UploadInitRequest{
		FileName: "setup.exe",
		FileSize: 1024,
		FileType: "application/octet-stream",
	})
	require.Len(t, created.Warnings, 1)

	f.send(t, "e2", EventJoinRoom, &JoinRoomRequest{FileID: created.FileID, Code: created.OneTimeCode})
	meta, ok := f.sink.lastFor(t, "e2").payload.(*FileMeta)
	require.True(t, ok)
	assert.True(t, meta.IsDangerous)
	assert.Equal(t, created.Warnings, meta.Warnings)
}

func TestService_UploadInitRateLimited(t *testing.T) {
	f := setupServiceWithLimits(t, 3, 20)
	f.svc.HandleConnect("e1", "198.51.100.1")

	for i := 0; i < 3; i++ {
		f.createSession(t, "e1", photoUpload())
	}
	f.send(t, "e1", EventUploadInit, photoUpload())
	errEvent, ok := f.sink.lastFor(t, "e1").payload.(*ErrorEvent)
	require.True(t, ok)
	assert.Contains(t, errEvent.Message, "Too many requests. Try again in")
}

func TestService_ActiveSessionCap(t *testing.T) {
	f := setupServiceWithLimits(t, 100, 20)
	f.svc.HandleConnect("e1", "198.51.100.1")

	for i := 0; i < 10; i++ {
		f.createSession(t, "e1", photoUpload())
	}
	f.send(t, "e1", EventUploadInit, photoUpload())
	errEvent, ok := f.sink.lastFor(t, "e1").payload.(*ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, guard.ErrActiveSessionCap.Error(), errEvent.Message)
	assert.Equal(t, 10, f.caps.Active("198.51.100.1"))
}

func TestService_HourlySessionCap(t *testing.T) {
	f := setupServiceWithLimits(t, 100, 20)
	f.svc.HandleConnect("e1", "198.51.100.1")

	// Completing each session frees its concurrency slot but still burns an
	// hourly creation.
	for i := 0; i < 20; i++ {
		created := f.createSession(t, "e1", photoUpload())
		f.send(t, "e1", EventTransferComplete, &TransferCompleteRequest{FileID: created.FileID})
	}
	require.Equal(t, 0, f.caps.Active("198.51.100.1"))

	f.send(t, "e1", EventUploadInit, photoUpload())
	errEvent, ok := f.sink.lastFor(t, "e1").payload.(*ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, guard.ErrHourlySessionCap.Error(), errEvent.Message)
}

func TestService_JoinErrors(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	f.svc.HandleConnect("e1", "198.51.100.1")
	f.svc.HandleConnect("e2", "198.51.100.2")
	created := f.createSession(t, "e1", photoUpload())

	t.Run("malformed session id", func(t *testing.T) {
		f.send(t, "e2", EventJoinRoom, &JoinRoomRequest{FileID: "not-a-uuid", Code: "ABCDEF"})
		errEvent, ok := f.sink.lastFor(t, "e2").payload.(*ErrorEvent)
		require.True(t, ok)
		assert.Contains(t, errEvent.Message, "not a valid identifier")
		assert.False(t, errEvent.InvalidCode)
	})

	t.Run("unknown session", func(t *testing.T) {
		f.send(t, "e2", EventJoinRoom, &JoinRoomRequest{
			FileID: "3b241101-e2bb-4255-8caf-4136c566a962",
			Code:   "ABCDEF",
		})
		errEvent, ok := f.sink.lastFor(t, "e2").payload.(*ErrorEvent)
		require.True(t, ok)
		assert.Equal(t, msgNotFound, errEvent.Message)
	})

	t.Run("already downloaded", func(t *testing.T) {
		require.NoError(t, f.db.SetSessionStatus(ctx, created.FileID, db.StatusCompleted))
		f.send(t, "e2", EventJoinRoom, &JoinRoomRequest{FileID: created.FileID, Code: created.OneTimeCode})
		errEvent, ok := f.sink.lastFor(t, "e2").payload.(*ErrorEvent)
		require.True(t, ok)
		assert.Equal(t, msgAlreadyDownloaded, errEvent.Message)
	})
}

func TestService_JoinAfterSenderGone(t *testing.T) {
	f := setupService(t)
	f.svc.HandleConnect("e1", "198.51.100.1")
	f.svc.HandleConnect("e2", "198.51.100.2")
	created := f.createSession(t, "e1", photoUpload())

	f.svc.HandleDisconnect("e1")
	assert.Equal(t, 0, f.caps.Active("198.51.100.1"), "waiting share is unserviceable, slot returns")

	f.send(t, "e2", EventJoinRoom, &JoinRoomRequest{FileID: created.FileID, Code: created.OneTimeCode})
	errEvent, ok := f.sink.lastFor(t, "e2").payload.(*ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, msgSenderOffline, errEvent.Message)
}

func TestService_CancelNotifiesPeerAndDeletes(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	f.svc.HandleConnect("e1", "198.51.100.1")
	f.svc.HandleConnect("e2", "198.51.100.2")
	created := f.createSession(t, "e1", photoUpload())
	f.send(t, "e2", EventJoinRoom, &JoinRoomRequest{FileID: created.FileID, Code: created.OneTimeCode})

	f.send(t, "e1", EventCancelTransfer, &CancelTransferRequest{FileID: created.FileID, Reason: "changed my mind"})
	cancelled, ok := f.sink.lastFor(t, "e2").payload.(*TransferCancelled)
	require.True(t, ok)
	assert.Equal(t, "changed my mind", cancelled.Reason)

	row, err := f.db.Session(ctx, created.FileID)
	require.NoError(t, err)
	assert.Nil(t, row)
	assert.Equal(t, 0, f.caps.Active("198.51.100.1"))
	assert.Equal(t, 0, f.svc.machines.numMachines())
	assert.False(t, f.svc.mux.InRoom(created.FileID, "e2"))
}

func TestService_CompletedSessionCannotBeRejoined(t *testing.T) {
	f := setupService(t)
	f.svc.HandleConnect("e1", "198.51.100.1")
	f.svc.HandleConnect("e2", "198.51.100.2")
	created := f.createSession(t, "e1", photoUpload())
	f.send(t, "e2", EventJoinRoom, &JoinRoomRequest{FileID: created.FileID, Code: created.OneTimeCode})
	f.send(t, "e2", EventTransferComplete, &TransferCompleteRequest{FileID: created.FileID})

	f.svc.HandleConnect("e3", "198.51.100.3")
	f.send(t, "e3", EventJoinRoom, &JoinRoomRequest{FileID: created.FileID, Code: created.OneTimeCode})
	errEvent, ok := f.sink.lastFor(t, "e3").payload.(*ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, msgNotFound, errEvent.Message)
}

func TestService_SenderDisconnectResetsActiveSession(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	f.svc.HandleConnect("e1", "198.51.100.1")
	f.svc.HandleConnect("e2", "198.51.100.2")
	created := f.createSession(t, "e1", photoUpload())
	f.send(t, "e2", EventJoinRoom, &JoinRoomRequest{FileID: created.FileID, Code: created.OneTimeCode})

	f.svc.HandleDisconnect("e1")

	cancelled, ok := f.sink.lastFor(t, "e2").payload.(*TransferCancelled)
	require.True(t, ok)
	assert.Equal(t, msgPeerGone, cancelled.Reason)

	row, err := f.db.Session(ctx, created.FileID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, db.StatusWaiting, row.Status, "active sessions fall back to waiting when the sender drops")
	assert.True(t, f.reg.IsSender(created.FileID, "e1"), "registry entry is kept for the reset row")
}

func TestService_ReceiverDisconnectKeepsSessionActive(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	f.svc.HandleConnect("e1", "198.51.100.1")
	f.svc.HandleConnect("e2", "198.51.100.2")
	created := f.createSession(t, "e1", photoUpload())
	f.send(t, "e2", EventJoinRoom, &JoinRoomRequest{FileID: created.FileID, Code: created.OneTimeCode})

	f.svc.HandleDisconnect("e2")

	cancelled, ok := f.sink.lastFor(t, "e1").payload.(*TransferCancelled)
	require.True(t, ok)
	assert.Equal(t, msgPeerGone, cancelled.Reason)

	row, err := f.db.Session(ctx, created.FileID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, db.StatusActive, row.Status)
}

func TestService_InvalidUploadRejected(t *testing.T) {
	f := setupService(t)
	f.svc.HandleConnect("e1", "198.51.100.1")

	tests := []struct {
		name    string
		req     *UploadInitRequest
		wantMsg string
	}{
		{
			"unusable file name",
			&UploadInitRequest{FileName: "..", FileSize: 10, FileType: "text/plain"},
			"no usable characters",
		},
		{
			"empty file",
			&UploadInitRequest{FileName: "a.txt", FileSize: 0, FileType: "text/plain"},
			"greater than zero",
		},
		{
			"missing mime type",
			&UploadInitRequest{FileName: "a.txt", FileSize: 10, FileType: ""},
			"must not be empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.send(t, "e1", EventUploadInit, tt.req)
			errEvent, ok := f.sink.lastFor(t, "e1").payload.(*ErrorEvent)
			require.True(t, ok)
			assert.Contains(t, errEvent.Message, tt.wantMsg)
		})
	}
	assert.Equal(t, 0, f.reg.Size(), "rejected uploads must not register senders")
	assert.Equal(t, 0, f.caps.Active("198.51.100.1"), "rejected uploads must not hold cap slots")
}

func TestService_UnknownEventIgnored(t *testing.T) {
	f := setupService(t)
	f.svc.HandleConnect("e1", "198.51.100.1")
	f.sink.reset()

	f.svc.HandleMessage("e1", "make-coffee", json.RawMessage(`{}`))
	assert.Empty(t, f.sink.all())
}
