// Package history keeps a persistent record of job runs in a bbolt file.
// Runs are keyed by an auto-incrementing sequence so iteration order is
// insertion order, and values are CBOR encoded.
package history

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/guojianbin/TinyCron/internal/notify"
)

const runsBucket = "runs"

// Status is the outcome of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Run is one recorded job run.
type Run struct {
	ID          uint64    `cbor:"1,keyasint" yaml:"id"`
	JobID       string    `cbor:"2,keyasint" yaml:"job_id"`
	Description string    `cbor:"3,keyasint,omitempty" yaml:"description,omitempty"`
	Schedule    string    `cbor:"4,keyasint" yaml:"schedule"`
	Status      Status    `cbor:"5,keyasint" yaml:"status"`
	StartedAt   time.Time `cbor:"6,keyasint" yaml:"started_at"`
	DurationMs  int64     `cbor:"7,keyasint" yaml:"duration_ms"`
	ExitCode    *int      `cbor:"8,keyasint,omitempty" yaml:"exit_code,omitempty"`
	Error       string    `cbor:"9,keyasint,omitempty" yaml:"error,omitempty"`
}

// Store provides persistent storage for runs.
type Store struct {
	db    *bolt.DB
	limit int
}

// Open opens or creates the history database at path. limit caps the
// number of runs kept when recording through Publish; 0 keeps everything.
func Open(path string, limit int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(runsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history bucket: %w", err)
	}

	return &Store{db: db, limit: limit}, nil
}

// OpenReadOnly opens an existing database without taking the write lock,
// so the CLI can read history while the daemon runs.
func OpenReadOnly(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout:  1 * time.Second,
		ReadOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Record appends r, assigning r.ID.
func (s *Store) Record(r *Run) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(runsBucket))

		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		r.ID = id

		data, err := marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode run: %w", err)
		}

		return b.Put(itob(id), data)
	})
}

// Recent returns up to limit runs, newest first. limit <= 0 means all.
func (s *Store) Recent(limit int) ([]*Run, error) {
	return s.scan(limit, func(*Run) bool { return true })
}

// ForJob returns up to limit runs of one job, newest first.
func (s *Store) ForJob(jobID string, limit int) ([]*Run, error) {
	return s.scan(limit, func(r *Run) bool { return r.JobID == jobID })
}

func (s *Store) scan(limit int, keep func(*Run) bool) ([]*Run, error) {
	var runs []*Run

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(runsBucket))
		if b == nil {
			return nil
		}
		c := b.Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			var r Run
			if err := unmarshal(v, &r); err != nil {
				continue
			}
			if keep(&r) {
				runs = append(runs, &r)
			}
		}
		return nil
	})

	return runs, err
}

// Count returns the number of stored runs.
func (s *Store) Count() (int, error) {
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(runsBucket))
		if b == nil {
			return nil
		}
		count = b.Stats().KeyN
		return nil
	})
	return count, err
}

// Prune deletes the oldest runs so at most keep remain. It returns the
// number removed.
func (s *Store) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(runsBucket))
		excess := b.Stats().KeyN - keep
		if excess <= 0 {
			return nil
		}

		// Collect first; deleting under a cursor skips keys.
		stale := make([][]byte, 0, excess)
		c := b.Cursor()
		for k, _ := c.First(); k != nil && len(stale) < excess; k, _ = c.Next() {
			stale = append(stale, k)
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Publish records terminal job events and ignores everything else.
func (s *Store) Publish(_ context.Context, ev notify.Event) error {
	status, ok := statusFor(ev.Type)
	if !ok {
		return nil
	}

	startedAt := ev.StartedAt
	if startedAt.IsZero() {
		startedAt = ev.Time
	}
	err := s.Record(&Run{
		JobID:       ev.JobID,
		Description: ev.Description,
		Schedule:    ev.Schedule,
		Status:      status,
		StartedAt:   startedAt.UTC(),
		DurationMs:  ev.DurationMs,
		ExitCode:    ev.ExitCode,
		Error:       ev.Error,
	})
	if err != nil {
		return err
	}

	if s.limit > 0 {
		if _, err := s.Prune(s.limit); err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
	}
	return nil
}

func statusFor(t notify.EventType) (Status, bool) {
	switch t {
	case notify.JobCompleted:
		return StatusCompleted, true
	case notify.JobFailed:
		return StatusFailed, true
	case notify.JobSkipped:
		return StatusSkipped, true
	}
	return "", false
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Shutdown implements shutdown.Shutdowner.
func (s *Store) Shutdown(context.Context) error {
	return s.Close()
}

// itob converts uint64 to big-endian bytes for ordered keys
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
