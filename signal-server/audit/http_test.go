package audit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queryAudit(t *testing.T, l *Log, target string) (*httptest.ResponseRecorder, []Entry) {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	QueryHandler(l)(rec, req)
	var entries []Entry
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	}
	return rec, entries
}

func TestQueryHandler_Recent(t *testing.T) {
	l, err := NewLog()
	require.NoError(t, err)
	l.Record(Entry{Event: "connection", IP: "198.51.100.1"})
	l.Record(Entry{Event: "block", Level: Warn})

	rec, entries := queryAudit(t, l, "/audit")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Len(t, entries, 2)
	// Most recent first.
	assert.Equal(t, "block", entries[0].Event)
	assert.Equal(t, "connection", entries[1].Event)
}

func TestQueryHandler_LevelFilter(t *testing.T) {
	l, err := NewLog()
	require.NoError(t, err)
	l.Record(Entry{Event: "ok"})
	l.Record(Entry{Event: "blocked", Level: Security})

	rec, entries := queryAudit(t, l, "/audit?level=security")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, entries, 1)
	assert.Equal(t, "blocked", entries[0].Event)

	rec, _ = queryAudit(t, l, "/audit?level=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryHandler_SecuritySince(t *testing.T) {
	l, err := NewLog()
	require.NoError(t, err)
	base := time.Now().UTC()
	l.Record(Entry{Event: "old", Level: Security, Time: base.Add(-2 * time.Hour)})
	l.Record(Entry{Event: "recent", Level: Security, Time: base})

	since := base.Add(-time.Hour).Format(time.RFC3339)
	rec, entries := queryAudit(t, l, "/audit?level=SECURITY&since="+since)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, entries, 1)
	assert.Equal(t, "recent", entries[0].Event)

	rec, _ = queryAudit(t, l, "/audit?level=SECURITY&since=not-a-time")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryHandler_CountValidation(t *testing.T) {
	l, err := NewLog()
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		l.Record(Entry{Event: "e"})
	}

	rec, entries := queryAudit(t, l, "/audit?n=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, entries, 2)

	rec, _ = queryAudit(t, l, "/audit?n=-3")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = queryAudit(t, l, "/audit?n=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryHandler_EmptyLogReturnsEmptyArray(t *testing.T) {
	l, err := NewLog()
	require.NoError(t, err)

	rec, entries := queryAudit(t, l, "/audit")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, entries)
	assert.Len(t, entries, 0)
	assert.Equal(t, "[]\n", rec.Body.String())
}
