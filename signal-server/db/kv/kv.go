// Package kv implements the session repository on BoltDB, the embedded
// key-value store, with an expiring read cache in front of it.
package kv

import (
	"os"
	"path"
	"time"

	"github.com/beamgate/beamgate/shared/timeutils"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prysmaticlabs/prombbolt"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var log = logrus.WithField("prefix", "db")

const (
	databaseFileName = "beamgate.db"

	// Rows are small and short-lived; a few minutes of caching absorbs the
	// repeated reads the signaling path makes around join and relay.
	sessionCacheExpiry = 5 * time.Minute
	sessionCachePurge  = 10 * time.Minute
)

// Store implements the session repository on a single Bolt bucket.
type Store struct {
	db           *bolt.DB
	databasePath string
	sessionCache *cache.Cache
	now          func() time.Time
}

// NewKVStore opens (or creates) the database under dirPath, prepares the
// buckets, and registers the store's metrics collector.
func NewKVStore(dirPath string) (*Store, error) {
	if err := os.MkdirAll(dirPath, 0700); err != nil {
		return nil, err
	}
	datafile := path.Join(dirPath, databaseFileName)
	boltDB, err := bolt.Open(datafile, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, errors.New("cannot obtain database lock, database may be in use by another process")
		}
		return nil, err
	}

	kv := &Store{
		db:           boltDB,
		databasePath: dirPath,
		sessionCache: cache.New(sessionCacheExpiry, sessionCachePurge),
		now:          timeutils.Now,
	}

	if err := kv.db.Update(func(tx *bolt.Tx) error {
		return createBuckets(tx, sessionsBucket)
	}); err != nil {
		return nil, err
	}
	if err := prometheus.Register(createBoltCollector(kv.db)); err != nil {
		log.WithError(err).Debug("Could not register database metrics collector")
	}
	return kv, nil
}

// ClearDB removes the previously stored database in the data directory.
func (s *Store) ClearDB() error {
	if _, err := os.Stat(s.databasePath); os.IsNotExist(err) {
		return nil
	}
	prometheus.Unregister(createBoltCollector(s.db))
	return os.Remove(path.Join(s.databasePath, databaseFileName))
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	prometheus.Unregister(createBoltCollector(s.db))
	return s.db.Close()
}

// DatabasePath at which this database writes files.
func (s *Store) DatabasePath() string {
	return s.databasePath
}

func createBuckets(tx *bolt.Tx, buckets ...[]byte) error {
	for _, bucket := range buckets {
		if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
			return err
		}
	}
	return nil
}

// createBoltCollector returns a prometheus collector specifically configured for boltdb.
func createBoltCollector(db *bolt.DB) prometheus.Collector {
	return prombbolt.New("boltDB", db)
}
