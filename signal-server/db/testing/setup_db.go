// Package testing spins up a real bolt-backed session repository for unit
// tests throughout the repo.
package testing

import (
	"testing"

	"github.com/beamgate/beamgate/signal-server/db"
	"github.com/beamgate/beamgate/signal-server/db/kv"
)

// SetupDB instantiates and returns a database backed by a key value store.
func SetupDB(t testing.TB) db.Database {
	s, err := kv.NewKVStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Fatalf("failed to close database: %v", err)
		}
	})
	return s
}
