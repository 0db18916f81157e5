// Package iface defines the session repository contract used by the
// signal-server node, also containing the persistent row type and a scoped
// read-only view of the store.
package iface

import (
	"context"
	"io"
	"time"
)

// Status is the lifecycle state of a persisted session.
type Status string

// Session lifecycle states.
const (
	StatusWaiting   Status = "WAITING"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
)

// Session is the durable metadata row for one share. Name and type are
// stored sealed; no plaintext metadata ever persists.
type Session struct {
	ID            string    `json:"id"`
	EncryptedName string    `json:"encryptedFileName"`
	EncryptedType string    `json:"encryptedFileType"`
	Size          int64     `json:"fileSize"`
	FileHash      string    `json:"fileHash,omitempty"`
	CodeHash      string    `json:"codeHash,omitempty"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ReadOnlyDatabase defines read access to session rows.
type ReadOnlyDatabase interface {
	// Session returns the row for id, or nil when the id is unknown or
	// was deleted.
	Session(ctx context.Context, id string) (*Session, error)
}

// Database is the full repository contract. Implementations assign ids and
// creation timestamps; callers never choose them.
type Database interface {
	ReadOnlyDatabase
	io.Closer
	CreateSession(ctx context.Context, encName string, size int64, encType, fileHash, codeHash string) (string, error)
	SetSessionStatus(ctx context.Context, id string, status Status) error
	DeleteSession(ctx context.Context, id string) error
	DeleteSessionsOlderThan(ctx context.Context, cutoff time.Time, statuses ...Status) (int, error)
	DatabasePath() string
	ClearDB() error
	Backup(ctx context.Context, outputDir string, permissionOverride bool) error
}
