package audit

import (
	"testing"
	"time"

	"github.com/beamgate/beamgate/shared/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_MostRecentFirst(t *testing.T) {
	log, err := NewLog()
	require.NoError(t, err)

	log.Record(Entry{Event: "first"})
	log.Record(Entry{Event: "second"})
	log.Record(Entry{Event: "third"})

	got := log.Last(2)
	require.Equal(t, 2, len(got))
	assert.Equal(t, "third", got[0].Event)
	assert.Equal(t, "second", got[1].Event)
	assert.Equal(t, Info, got[0].Level, "level should default to INFO")
}

func TestRecord_CapacityEvictsOldest(t *testing.T) {
	cfg := params.Config().Copy()
	cfg.AuditCapacity = 3
	params.OverrideSignalConfig(cfg)
	defer params.UseDefaultConfig()

	log, err := NewLog()
	require.NoError(t, err)

	for _, event := range []string{"a", "b", "c", "d"} {
		log.Record(Entry{Event: event})
	}

	require.Equal(t, 3, log.Size())
	got := log.Last(10)
	require.Equal(t, 3, len(got))
	assert.Equal(t, "d", got[0].Event)
	assert.Equal(t, "b", got[2].Event)
}

func TestLastByLevel(t *testing.T) {
	log, err := NewLog()
	require.NoError(t, err)

	log.Record(Entry{Level: Info, Event: "connected"})
	log.Record(Entry{Level: Security, Event: "ip-blocked", IP: "198.51.100.7"})
	log.Record(Entry{Level: Warn, Event: "rate-limited"})
	log.Record(Entry{Level: Security, Event: "suspicious-threshold"})

	got := log.LastByLevel(Security, 10)
	require.Equal(t, 2, len(got))
	assert.Equal(t, "suspicious-threshold", got[0].Event)
	assert.Equal(t, "ip-blocked", got[1].Event)
}

func TestSecuritySince(t *testing.T) {
	log, err := NewLog()
	require.NoError(t, err)
	current := time.Unix(1700000000, 0)
	log.now = func() time.Time { return current }

	log.Record(Entry{Level: Security, Event: "old"})
	current = current.Add(time.Hour)
	log.Record(Entry{Level: Security, Event: "recent"})
	log.Record(Entry{Level: Info, Event: "ignored"})

	got := log.SecuritySince(time.Unix(1700000000, 0).Add(30 * time.Minute))
	require.Equal(t, 1, len(got))
	assert.Equal(t, "recent", got[0].Event)
}

func TestEvictOlderThan(t *testing.T) {
	log, err := NewLog()
	require.NoError(t, err)
	current := time.Unix(1700000000, 0)
	log.now = func() time.Time { return current }

	log.Record(Entry{Event: "stale-1"})
	log.Record(Entry{Event: "stale-2"})
	current = current.Add(8 * 24 * time.Hour)
	log.Record(Entry{Event: "fresh"})

	removed := log.EvictOlderThan(current.Add(-7 * 24 * time.Hour))
	assert.Equal(t, 2, removed)
	require.Equal(t, 1, log.Size())
	assert.Equal(t, "fresh", log.Last(1)[0].Event)
}
