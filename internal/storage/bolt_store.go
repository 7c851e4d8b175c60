package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"stageq/internal/config"
	"stageq/internal/runner"
)

const (
	BucketRuns = "runs"
)

var ErrNotFound = errors.New("run not found")

// Record is one stored run. Keys are run IDs (UUIDv7), so bucket order is
// start order.
type Record struct {
	Report *runner.Report `json:"report"`
	Config *config.Config `json:"config,omitempty"`
}

type Store struct {
	db   *bbolt.DB
	path string
}

// DefaultPath is ~/.stageq/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".stageq", "history.db"), nil
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(rec Record) error {
	if rec.Report == nil || rec.Report.ID == "" {
		return errors.New("record has no run id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(BucketRuns)).Put([]byte(rec.Report.ID), data)
	})
}

// List returns up to limit records, newest first. limit <= 0 means all.
// Records that no longer decode are skipped.
func (s *Store) List(limit int) ([]Record, error) {
	var items []Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketRuns)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil || rec.Report == nil {
				continue
			}
			items = append(items, rec)
			if limit > 0 && len(items) == limit {
				break
			}
		}
		return nil
	})
	return items, err
}

func (s *Store) Get(id string) (*Record, error) {
	var rec Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(BucketRuns)).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketRuns))
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return b.Delete([]byte(id))
	})
}

// Recorder returns an OnRunComplete hook that saves every finished run.
// Save failures go to onErr.
func (s *Store) Recorder(cfg *config.Config, onErr func(error)) func(*runner.Report) {
	return func(rep *runner.Report) {
		if err := s.Save(Record{Report: rep, Config: cfg}); err != nil && onErr != nil {
			onErr(err)
		}
	}
}
