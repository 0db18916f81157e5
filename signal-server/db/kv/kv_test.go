package kv

import (
	"testing"
	"time"
)

// setupDB instantiates a store on a throwaway directory.
func setupDB(t testing.TB) *Store {
	s, err := NewKVStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to instantiate DB: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Fatalf("Failed to close database: %v", err)
		}
	})
	return s
}

// freezeClock pins the store's clock and returns a handle to move it.
func freezeClock(s *Store) *time.Time {
	current := time.Unix(1700000000, 0)
	s.now = func() time.Time { return current }
	return &current
}
