package failures

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pebble "github.com/cockroachdb/pebble"

	"mediaqueue/models"
)

// FailureRecord describes a job that exhausted its attempt budget.
type FailureRecord struct {
	ID         string                `json:"id"`
	Owner      string                `json:"owner"`
	OutputName string                `json:"output_name"`
	Timestamp  time.Time             `json:"timestamp"`
	Attempts   int                   `json:"attempts"`
	Error      string                `json:"error"`
	Options    models.ConvertOptions `json:"options"`
}

// Store keeps failure records in pebble keyed by job ID.
type Store struct {
	db *pebble.DB
}

// Open opens the failure store at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open failure store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a terminal failure of job.
func (s *Store) Record(job *models.ConversionJob, attempts int, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	record := FailureRecord{
		ID:         job.Options.ID,
		Owner:      job.Options.Owner,
		OutputName: job.Options.OutputName,
		Timestamp:  time.Now(),
		Attempts:   attempts,
		Error:      msg,
		Options:    job.Options,
	}
	return s.Put(record)
}

// Put writes record under its ID.
func (s *Store) Put(record FailureRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal failure record: %w", err)
	}
	return s.db.Set([]byte(record.ID), data, pebble.Sync)
}

// Get retrieves a failure record by job ID. A missing record returns nil, nil.
func (s *Store) Get(id string) (*FailureRecord, error) {
	data, closer, err := s.db.Get([]byte(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get failure: %w", err)
	}
	defer closer.Close()

	var record FailureRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failure record: %w", err)
	}
	return &record, nil
}

func (s *Store) Delete(id string) error {
	return s.db.Delete([]byte(id), pebble.Sync)
}

// List returns all failure records (for admin purposes)
func (s *Store) List() ([]FailureRecord, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	failures := []FailureRecord{}
	for iter.First(); iter.Valid(); iter.Next() {
		var record FailureRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue // Skip invalid records
		}
		failures = append(failures, record)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iteration error: %w", err)
	}
	return failures, nil
}

// CleanupOldRecords removes failure records older than maxAge and returns
// how many were deleted.
func (s *Store) CleanupOldRecords(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}

	var keysToDelete [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		var record FailureRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue
		}
		if record.Timestamp.Before(cutoff) {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			keysToDelete = append(keysToDelete, key)
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}

	for i, key := range keysToDelete {
		if err := s.db.Delete(key, pebble.Sync); err != nil {
			return i, fmt.Errorf("failed to delete old failure record: %w", err)
		}
	}
	return len(keysToDelete), nil
}
