package kv

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	bolt "go.etcd.io/bbolt"
)

const backupsDirectoryName = "backups"

// Backup copies every bucket into a fresh bolt file under outputDir, or
// under <datadir>/backups when outputDir is empty.
// Example: $DATADIR/backups/beamgate_sessiondb_1029019.backup
func (s *Store) Backup(_ context.Context, outputDir string, permissionOverride bool) error {
	backupsDir := path.Join(s.databasePath, backupsDirectoryName)
	if outputDir != "" {
		backupsDir = outputDir
	}
	// Backups hold sealed metadata only, but the directory still defaults to
	// owner-only access.
	perms := os.FileMode(0700)
	if permissionOverride {
		perms = 0755
	}
	if err := os.MkdirAll(backupsDir, perms); err != nil {
		return err
	}
	backupPath := path.Join(backupsDir, fmt.Sprintf("beamgate_sessiondb_%d.backup", s.now().Unix()))
	log.WithField("backup", backupPath).Info("Writing backup database")

	copyDB, err := bolt.Open(backupPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return err
	}
	defer func() {
		if err := copyDB.Close(); err != nil {
			log.WithError(err).Error("Failed to close backup database")
		}
	}()

	return s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			log.Debugf("Copying bucket %s with %d keys", name, b.Stats().KeyN)
			return copyDB.Update(func(tx2 *bolt.Tx) error {
				b2, err := tx2.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				return b.ForEach(b2.Put)
			})
		})
	})
}
