package main

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"mediaqueue/models"
	"mediaqueue/taskqueue"
)

func TestShutdownLetsInFlightJobFinish(t *testing.T) {
	journal, err := taskqueue.OpenJournal(filepath.Join(t.TempDir(), "q.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer journal.Close()

	finished := make(chan error, 1)
	pool := taskqueue.NewPool(1, func(ctx context.Context, job *models.ConversionJob) error {
		select {
		case <-time.After(300 * time.Millisecond):
			finished <- nil
			return nil
		case <-ctx.Done():
			finished <- ctx.Err()
			return ctx.Err()
		}
	}, taskqueue.WithJournal(journal))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	pool.Submit(&models.ConversionJob{
		Buffer:       []byte("x"),
		OriginalMime: "image/png",
		UploadKind:   models.UploadMedia,
		Options:      models.ConvertOptions{ID: "a", OutputName: "a", OutputFormat: "webp", Owner: "alice"},
	})
	deadline := time.Now().Add(5 * time.Second)
	for pool.InFlight() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("job never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	shutdown(&http.Server{}, pool, time.Minute, cancel)

	if err := <-finished; err != nil {
		t.Errorf("in-flight job was interrupted: %v", err)
	}
	if entries, _ := journal.Pending(); len(entries) != 0 {
		t.Errorf("journal still holds %d entries", len(entries))
	}
}
