package signaling

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Inbound event names (endpoint to server).
const (
	EventUploadInit       = "upload-init"
	EventJoinRoom         = "join-room"
	EventSignal           = "signal"
	EventCancelTransfer   = "cancel-transfer"
	EventTransferComplete = "transfer-complete"
)

// Outbound event names (server to endpoint).
const (
	EventUploadCreated     = "upload-created"
	EventReceiverJoined    = "receiver-joined"
	EventFileMeta          = "file-meta"
	EventTransferCancelled = "transfer-cancelled"
	EventError             = "error"
)

// Int64String is a 64-bit integer that tolerates arriving as either a JSON
// number or a numeric string, and always marshals as a string so precision
// survives JavaScript peers.
type Int64String int64

// UnmarshalJSON implements json.Unmarshaler.
func (v *Int64String) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return errors.New("file size is not a 64-bit integer")
	}
	*v = Int64String(n)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (v Int64String) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatInt(int64(v), 10))), nil
}

// UploadInitRequest announces a new share and its file metadata.
type UploadInitRequest struct {
	FileName string      `json:"fileName"`
	FileSize Int64String `json:"fileSize"`
	FileType string      `json:"fileType"`
	FileHash string      `json:"fileHash,omitempty"`
}

// JoinRoomRequest redeems an access code for a session.
type JoinRoomRequest struct {
	FileID string `json:"fileId"`
	Code   string `json:"code"`
}

// SignalRequest carries an opaque negotiation payload toward a room peer.
// Data is never parsed server-side.
type SignalRequest struct {
	Target string          `json:"target"`
	Data   json.RawMessage `json:"data"`
	FileID string          `json:"fileId"`
}

// CancelTransferRequest aborts a session from either side.
type CancelTransferRequest struct {
	FileID string `json:"fileId"`
	Reason string `json:"reason"`
}

// TransferCompleteRequest reports a finished download.
type TransferCompleteRequest struct {
	FileID string `json:"fileId"`
}

// UploadCreated acknowledges upload-init with the share handle and its
// one-time access code.
type UploadCreated struct {
	FileID      string   `json:"fileId"`
	OneTimeCode string   `json:"oneTimeCode"`
	Warnings    []string `json:"warnings,omitempty"`
}

// ReceiverJoined tells the sender its counterpart arrived.
type ReceiverJoined struct {
	ReceiverID string `json:"receiverId"`
}

// FileMeta describes the offered file to a joining receiver, with metadata
// already decrypted.
type FileMeta struct {
	FileName    string      `json:"fileName"`
	FileSize    Int64String `json:"fileSize"`
	FileType    string      `json:"fileType"`
	FileHash    string      `json:"fileHash,omitempty"`
	IsDangerous bool        `json:"isDangerous,omitempty"`
	Warnings    []string    `json:"warnings,omitempty"`
}

// SignalForward is the relayed form of SignalRequest, stamped with the
// source endpoint.
type SignalForward struct {
	From string          `json:"from"`
	Data json.RawMessage `json:"data"`
}

// TransferCancelled notifies the remaining peer that a session ended early.
type TransferCancelled struct {
	Reason string `json:"reason"`
}

// ErrorEvent is the uniform failure reply. InvalidCode marks access-code
// failures so clients can re-prompt instead of giving up.
type ErrorEvent struct {
	Message     string `json:"message"`
	InvalidCode bool   `json:"invalidCode,omitempty"`
}
