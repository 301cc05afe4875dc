package sessionstore

import (
	"fmt"
	"net/url"
	"time"

	bolt "github.com/boltdb/bolt"

	"provision-saga/internal/application/checkout"
)

const (
	sessionBucket = "session"
	urlBucket     = "url_state"
)

// BoltStore keeps a checkout session on disk: the snapshot token and the URL state, under one name.
// It implements both checkout.SessionStore and checkout.URLState, so a CLI survives restarts the way
// a browser tab survives a reload.
type BoltStore struct {
	db   *bolt.DB
	name []byte
}

// Open opens (or creates) the session file at path and scopes the store to the named session.
func Open(path, name string) (*BoltStore, error) {
	if name == "" {
		name = "default"
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open session file %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range []string{sessionBucket, urlBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session buckets: %w", err)
	}

	return &BoltStore{db: db, name: []byte(name)}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Load() (string, error) {
	var token string
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(sessionBucket)).Get(s.name)
		if v == nil {
			return checkout.ErrNoSession
		}
		token = string(v)
		return nil
	})
	return token, err
}

func (s *BoltStore) Save(token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(sessionBucket)).Put(s.name, []byte(token))
	})
}

func (s *BoltStore) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(sessionBucket)).Delete(s.name)
	})
}

func (s *BoltStore) Query() (url.Values, error) {
	q := url.Values{}
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(urlBucket)).Get(s.name)
		if v == nil {
			return nil
		}
		parsed, err := url.ParseQuery(string(v))
		if err != nil {
			return fmt.Errorf("stored url state is corrupt: %w", err)
		}
		q = parsed
		return nil
	})
	return q, err
}

func (s *BoltStore) Replace(q url.Values) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(urlBucket))
		if len(q) == 0 {
			return b.Delete(s.name)
		}
		return b.Put(s.name, []byte(q.Encode()))
	})
}

var (
	_ checkout.SessionStore = (*BoltStore)(nil)
	_ checkout.URLState     = (*BoltStore)(nil)
)
