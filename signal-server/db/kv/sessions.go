package kv

import (
	"context"
	"encoding/json"
	"time"

	"github.com/beamgate/beamgate/signal-server/db/iface"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// Repository errors callers can match on.
var (
	ErrNotFound          = errors.New("session not found")
	ErrIllegalTransition = errors.New("cannot move a completed session back to active")
	ErrConstraint        = errors.New("session row violates constraints")
)

// CreateSession assigns a fresh id, stamps the creation time, stores the
// row in WAITING, and returns the id.
func (s *Store) CreateSession(_ context.Context, encName string, size int64, encType, fileHash, codeHash string) (string, error) {
	if encName == "" || encType == "" {
		return "", errors.Wrap(ErrConstraint, "empty sealed metadata field")
	}
	if size <= 0 {
		return "", errors.Wrap(ErrConstraint, "non-positive size")
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", errors.Wrap(err, "could not generate session id")
	}
	session := iface.Session{
		ID:            id.String(),
		EncryptedName: encName,
		EncryptedType: encType,
		Size:          size,
		FileHash:      fileHash,
		CodeHash:      codeHash,
		Status:        iface.StatusWaiting,
		CreatedAt:     s.now().UTC(),
	}
	enc, err := json.Marshal(session)
	if err != nil {
		return "", errors.Wrap(err, "could not encode session row")
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put([]byte(session.ID), enc)
	})
	if err != nil {
		return "", err
	}
	s.sessionCache.SetDefault(session.ID, session)
	return session.ID, nil
}

// Session retrieves the row for id, or nil when the id is unknown or was
// deleted.
func (s *Store) Session(_ context.Context, id string) (*iface.Session, error) {
	if v, ok := s.sessionCache.Get(id); ok {
		if session, ok := v.(iface.Session); ok {
			cp := session
			return &cp, nil
		}
	}
	var session *iface.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		enc := tx.Bucket(sessionsBucket).Get([]byte(id))
		if len(enc) == 0 {
			return nil
		}
		decoded := &iface.Session{}
		if err := json.Unmarshal(enc, decoded); err != nil {
			return errors.Wrap(err, "could not decode session row")
		}
		session = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	if session != nil {
		s.sessionCache.SetDefault(id, *session)
	}
	return session, nil
}

// SetSessionStatus moves the row to the given status. Setting the current
// status again is a no-op; moving a COMPLETED row back to ACTIVE is
// rejected.
func (s *Store) SetSessionStatus(_ context.Context, id string, status iface.Status) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(sessionsBucket)
		enc := bkt.Get([]byte(id))
		if len(enc) == 0 {
			return ErrNotFound
		}
		session := &iface.Session{}
		if err := json.Unmarshal(enc, session); err != nil {
			return errors.Wrap(err, "could not decode session row")
		}
		if session.Status == status {
			return nil
		}
		if session.Status == iface.StatusCompleted && status == iface.StatusActive {
			return ErrIllegalTransition
		}
		session.Status = status
		updated, err := json.Marshal(session)
		if err != nil {
			return errors.Wrap(err, "could not encode session row")
		}
		if err := bkt.Put([]byte(id), updated); err != nil {
			return err
		}
		s.sessionCache.SetDefault(id, *session)
		return nil
	})
	return err
}

// DeleteSession removes the row for id. Deleting an absent row is not an
// error.
func (s *Store) DeleteSession(_ context.Context, id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(id))
	})
	if err != nil {
		return err
	}
	s.sessionCache.Delete(id)
	return nil
}

// DeleteSessionsOlderThan removes rows created before the cutoff. With no
// statuses given every aged row goes; otherwise only rows in one of the
// given states are touched. Returns how many rows were removed.
func (s *Store) DeleteSessionsOlderThan(_ context.Context, cutoff time.Time, statuses ...iface.Status) (int, error) {
	wanted := make(map[iface.Status]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}
	var deleted []string
	err := s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(sessionsBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			session := &iface.Session{}
			if err := json.Unmarshal(v, session); err != nil {
				return errors.Wrap(err, "could not decode session row")
			}
			if !session.CreatedAt.Before(cutoff) {
				continue
			}
			if len(wanted) > 0 && !wanted[session.Status] {
				continue
			}
			if err := c.Delete(); err != nil {
				return err
			}
			deleted = append(deleted, session.ID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, id := range deleted {
		s.sessionCache.Delete(id)
	}
	if len(deleted) > 0 {
		log.WithField("sessions", len(deleted)).Info("Deleted expired session rows")
	}
	return len(deleted), nil
}
