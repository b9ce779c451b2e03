package taskqueue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"mediaqueue/models"
)

// Journal is a pebble-backed record of submitted jobs that have not reached
// a terminal state. Keys sort in submission order.
type Journal struct {
	db       *pebble.DB
	dataFile string

	mu   sync.Mutex
	last int64
}

// Entry is one journaled job.
type Entry struct {
	Key string
	Job *models.ConversionJob
}

// OpenJournal opens (or creates) a pebble DB at dataFile.
func OpenJournal(dataFile string) (*Journal, error) {
	db, err := pebble.Open(dataFile, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", dataFile, err)
	}
	return &Journal{db: db, dataFile: dataFile}, nil
}

// nextKey returns a strictly increasing, zero-padded timestamp key.
func (j *Journal) nextKey(id string) string {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now().UnixNano()
	if now <= j.last {
		now = j.last + 1
	}
	j.last = now
	return fmt.Sprintf("%020d-%s", now, id)
}

// Add stores job and returns its key.
func (j *Journal) Add(job *models.ConversionJob) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to encode job: %w", err)
	}
	key := j.nextKey(job.Options.ID)
	if err := j.db.Set([]byte(key), data, pebble.Sync); err != nil {
		return "", err
	}
	return key, nil
}

// Delete removes the key from the journal.
func (j *Journal) Delete(key string) error {
	return j.db.Delete([]byte(key), pebble.Sync)
}

// Pending returns every journaled job in submission order. Undecodable
// entries are returned with a nil Job so callers can discard them.
func (j *Journal) Pending() ([]Entry, error) {
	iter, err := j.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var entries []Entry
	for iter.First(); iter.Valid(); iter.Next() {
		e := Entry{Key: string(iter.Key())}
		var job models.ConversionJob
		if err := json.Unmarshal(iter.Value(), &job); err == nil {
			e.Job = &job
		}
		entries = append(entries, e)
	}
	return entries, iter.Error()
}

func (j *Journal) Close() error {
	return j.db.Close()
}
