// Package db defines the session repository the signal-server node runs
// against. The node only speaks to the iface.Database contract; the kv
// package supplies the BoltDB implementation.
package db

import (
	"github.com/beamgate/beamgate/signal-server/db/iface"
	"github.com/beamgate/beamgate/signal-server/db/kv"
)

// ReadOnlyDatabase exposes read access to session rows.
type ReadOnlyDatabase = iface.ReadOnlyDatabase

// Database is the full repository contract.
type Database = iface.Database

// Session is the persistent metadata row for one share.
type Session = iface.Session

// Status is the lifecycle state of a persisted session.
type Status = iface.Status

// Session lifecycle states.
const (
	StatusWaiting   = iface.StatusWaiting
	StatusActive    = iface.StatusActive
	StatusCompleted = iface.StatusCompleted
)

// Repository errors callers can match on.
var (
	ErrNotFound          = kv.ErrNotFound
	ErrIllegalTransition = kv.ErrIllegalTransition
	ErrConstraint        = kv.ErrConstraint
)

// NewDB initializes a new session repository at the given directory path.
func NewDB(dirPath string) (Database, error) {
	return kv.NewKVStore(dirPath)
}
