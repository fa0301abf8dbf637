// Package history keeps a persistent record of finished build sessions in a
// bbolt database.
package history

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSessions = []byte("sessions")

// Entry is one finished build session.
type Entry struct {
	ID         string    `json:"id"`
	Command    string    `json:"command"`
	Script     string    `json:"script"`
	DistDir    string    `json:"distDir"`
	State      string    `json:"state"`
	ExitCode   int       `json:"exitCode"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Succeeded reports whether the session ended in the succeeded state.
func (e Entry) Succeeded() bool {
	return e.State == "succeeded"
}

// Duration is the wall-clock time of the session.
func (e Entry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// Store is a bbolt-backed history. It is safe for concurrent use.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sessions bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// key orders entries by start time; the ID keeps keys unique.
func key(e Entry) []byte {
	k := make([]byte, 8, 8+len(e.ID))
	binary.BigEndian.PutUint64(k, uint64(e.StartedAt.UnixNano()))
	return append(k, e.ID...)
}

// Record stores e, replacing an entry with the same start time and ID.
func (s *Store) Record(e Entry) error {
	if e.ID == "" {
		return errors.New("history entry without id")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Put(key(e), data)
	})
}

// List returns up to limit entries, newest first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]Entry, error) {
	var entries []Entry
	err := s.scan(func(e Entry) bool {
		entries = append(entries, e)
		return limit <= 0 || len(entries) < limit
	})
	return entries, err
}

// Last returns the newest entry, or the newest successful one when
// succeededOnly is set. ok is false when there is none.
func (s *Store) Last(succeededOnly bool) (entry Entry, ok bool, err error) {
	err = s.scan(func(e Entry) bool {
		if succeededOnly && !e.Succeeded() {
			return true
		}
		entry, ok = e, true
		return false
	})
	return entry, ok, err
}

// scan visits entries newest first until fn returns false.
func (s *Store) scan(fn func(Entry) bool) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSessions).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode history entry: %w", err)
			}
			if !fn(e) {
				return nil
			}
		}
		return nil
	})
}
