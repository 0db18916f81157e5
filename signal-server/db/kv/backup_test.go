package kv

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func TestBackup_DefaultDirectory(t *testing.T) {
	s := setupDB(t)
	id, err := s.CreateSession(context.Background(), "aa:bb:cc", 2048, "dd:ee:ff", "", "")
	require.NoError(t, err)

	require.NoError(t, s.Backup(context.Background(), "", false))

	matches, err := filepath.Glob(path.Join(s.databasePath, backupsDirectoryName, "beamgate_sessiondb_*.backup"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	// The copy opens standalone and holds the row.
	copyDB, err := bolt.Open(matches[0], 0600, &bolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, copyDB.Close())
	}()
	require.NoError(t, copyDB.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(sessionsBucket)
		require.NotNil(t, bkt)
		assert.NotNil(t, bkt.Get([]byte(id)))
		return nil
	}))
}

func TestBackup_CustomDirectory(t *testing.T) {
	s := setupDB(t)
	_, err := s.CreateSession(context.Background(), "aa:bb:cc", 2048, "dd:ee:ff", "", "")
	require.NoError(t, err)

	outputDir := path.Join(t.TempDir(), "session-backups")
	require.NoError(t, s.Backup(context.Background(), outputDir, false))

	matches, err := filepath.Glob(path.Join(outputDir, "beamgate_sessiondb_*.backup"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	info, err := os.Stat(outputDir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}
