package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mediaqueue/models"
)

func testJob(id string) *models.ConversionJob {
	return &models.ConversionJob{
		Buffer:       []byte(id),
		OriginalMime: "image/png",
		UploadKind:   models.UploadMedia,
		Options:      models.ConvertOptions{ID: id, OutputName: id, OutputFormat: "webp", Owner: "alice"},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPoolFIFOOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	p := NewPool(1, func(_ context.Context, job *models.ConversionJob) error {
		mu.Lock()
		order = append(order, job.Options.ID)
		mu.Unlock()
		return nil
	})

	for i := 0; i < 5; i++ {
		p.Submit(testJob(fmt.Sprintf("j%d", i)))
	}
	if d := p.QueueDepth(); d != 5 {
		t.Fatalf("QueueDepth = %d, want 5", d)
	}
	p.Start(context.Background())
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	})
	p.Shutdown(context.Background())

	for i, id := range order {
		if want := fmt.Sprintf("j%d", i); id != want {
			t.Fatalf("order = %v", order)
		}
	}
}

func TestPoolNeverExceedsWorkerCount(t *testing.T) {
	const workers, jobs = 3, 12
	var active, peak, done int32
	p := NewPool(workers, func(context.Context, *models.ConversionJob) error {
		n := atomic.AddInt32(&active, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		atomic.AddInt32(&done, 1)
		return nil
	})
	p.Start(context.Background())
	for i := 0; i < jobs; i++ {
		p.Submit(testJob(fmt.Sprintf("j%d", i)))
	}
	waitFor(t, func() bool { return atomic.LoadInt32(&done) == jobs })
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if peak > workers {
		t.Errorf("peak concurrency = %d, want <= %d", peak, workers)
	}
	if peak < 2 {
		t.Errorf("peak concurrency = %d, workers did not run in parallel", peak)
	}
}

func TestPoolDefaultSize(t *testing.T) {
	if p := NewPool(0, nil); p.Size() != DefaultWorkers {
		t.Errorf("size = %d", p.Size())
	}
}

func TestShutdownStopsAdmissionAndKeepsBacklog(t *testing.T) {
	journal, err := OpenJournal(filepath.Join(t.TempDir(), "ConvertQueue.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer journal.Close()

	release := make(chan struct{})
	started := make(chan string, 10)
	var handled int32
	p := NewPool(1, func(_ context.Context, job *models.ConversionJob) error {
		started <- job.Options.ID
		<-release
		atomic.AddInt32(&handled, 1)
		return nil
	}, WithJournal(journal))
	p.Start(context.Background())

	for _, id := range []string{"a", "b", "c"} {
		p.Submit(testJob(id))
	}
	if id := <-started; id != "a" {
		t.Fatalf("first job = %s", id)
	}

	shutdown := make(chan error, 1)
	go func() { shutdown <- p.Shutdown(context.Background()) }()
	waitFor(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.closed
	})
	if err := p.Enqueue(testJob("late")); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Enqueue after shutdown = %v", err)
	}

	close(release)
	if err := <-shutdown; err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if handled != 1 {
		t.Errorf("handled %d jobs, want only the in-flight one", handled)
	}

	entries, err := journal.Pending()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Job.Options.ID != "b" || entries[1].Job.Options.ID != "c" {
		t.Fatalf("journal = %+v", entries)
	}

	// A fresh pool replays the backlog in order.
	var mu sync.Mutex
	var replayed []string
	next := NewPool(1, func(_ context.Context, job *models.ConversionJob) error {
		mu.Lock()
		replayed = append(replayed, job.Options.ID)
		mu.Unlock()
		return nil
	}, WithJournal(journal))
	n, err := next.Recover()
	if err != nil || n != 2 {
		t.Fatalf("Recover = %d, %v", n, err)
	}
	next.Start(context.Background())
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(replayed) == 2
	})
	next.Shutdown(context.Background())
	if replayed[0] != "b" || replayed[1] != "c" {
		t.Errorf("replayed = %v", replayed)
	}
	waitFor(t, func() bool {
		left, _ := journal.Pending()
		return len(left) == 0
	})
}

func TestShutdownHonorsContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	p := NewPool(1, func(context.Context, *models.ConversionJob) error {
		<-release
		return nil
	})
	p.Start(context.Background())
	p.Submit(testJob("slow"))
	waitFor(t, func() bool { return p.InFlight() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown err = %v", err)
	}
}

func TestInterruptedJobStaysJournaled(t *testing.T) {
	journal, err := OpenJournal(filepath.Join(t.TempDir(), "q.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer journal.Close()

	var calls int32
	p := NewPool(1, func(context.Context, *models.ConversionJob) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("interrupted")
	}, WithJournal(journal))
	p.Start(context.Background())
	p.Submit(testJob("x"))
	waitFor(t, func() bool { return atomic.LoadInt32(&calls) == 1 && p.InFlight() == 0 })
	p.Shutdown(context.Background())

	if entries, _ := journal.Pending(); len(entries) != 1 {
		t.Errorf("journal entries = %d, want 1", len(entries))
	}
}

func TestPanickingHandlerDoesNotKillWorker(t *testing.T) {
	var calls int32
	p := NewPool(1, func(_ context.Context, job *models.ConversionJob) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("boom")
		}
		return nil
	})
	p.Start(context.Background())
	p.Submit(testJob("a"))
	p.Submit(testJob("b"))
	waitFor(t, func() bool { return atomic.LoadInt32(&calls) == 2 })
	p.Shutdown(context.Background())
}

func TestJournalKeysAreOrdered(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "q.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	var keys []string
	for i := 0; i < 50; i++ {
		k, err := j.Add(testJob(fmt.Sprintf("%02d", 49-i)))
		if err != nil {
			t.Fatal(err)
		}
		keys = append(keys, k)
	}
	entries, _ := j.Pending()
	if len(entries) != 50 {
		t.Fatalf("entries = %d", len(entries))
	}
	for i, e := range entries {
		if e.Key != keys[i] {
			t.Fatalf("entry %d key = %s, want %s", i, e.Key, keys[i])
		}
		if string(e.Job.Buffer) != e.Job.Options.ID {
			t.Errorf("buffer not round-tripped for %s", e.Key)
		}
	}
	if err := j.Delete(keys[0]); err != nil {
		t.Fatal(err)
	}
	if entries, _ := j.Pending(); len(entries) != 49 {
		t.Errorf("entries after delete = %d", len(entries))
	}
}

// slowHandler finishes after d unless its context ends first.
func slowHandler(d time.Duration, outcomes chan<- string) Handler {
	return func(ctx context.Context, job *models.ConversionJob) error {
		select {
		case <-time.After(d):
			outcomes <- job.Options.ID + ":done"
			return nil
		case <-ctx.Done():
			outcomes <- job.Options.ID + ":interrupted"
			return ctx.Err()
		}
	}
}

func TestDrainLetsRunningJobFinish(t *testing.T) {
	journal, err := OpenJournal(filepath.Join(t.TempDir(), "q.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer journal.Close()

	outcomes := make(chan string, 1)
	p := NewPool(1, slowHandler(300*time.Millisecond, outcomes), WithJournal(journal))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	p.Submit(testJob("a"))
	waitFor(t, func() bool { return p.InFlight() == 1 })

	if err := p.Drain(5*time.Second, cancel); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got := <-outcomes; got != "a:done" {
		t.Errorf("outcome = %s, want the running job to finish", got)
	}
	if err := p.Enqueue(testJob("late")); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue after drain = %v", err)
	}
	if entries, _ := journal.Pending(); len(entries) != 0 {
		t.Errorf("journal entries = %d, want 0", len(entries))
	}
}

func TestDrainInterruptsAfterWindow(t *testing.T) {
	journal, err := OpenJournal(filepath.Join(t.TempDir(), "q.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer journal.Close()

	outcomes := make(chan string, 1)
	p := NewPool(1, slowHandler(time.Hour, outcomes), WithJournal(journal))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	p.Submit(testJob("a"))
	waitFor(t, func() bool { return p.InFlight() == 1 })

	if err := p.Drain(50*time.Millisecond, cancel); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Drain err = %v", err)
	}
	if got := <-outcomes; got != "a:interrupted" {
		t.Errorf("outcome = %s", got)
	}
	if p.InFlight() != 0 {
		t.Error("Drain returned while a worker was still running")
	}
	if entries, _ := journal.Pending(); len(entries) != 1 {
		t.Errorf("journal entries = %d, want the interrupted job kept", len(entries))
	}
}

func TestEnqueueDoesNotModifyCallerJob(t *testing.T) {
	got := make(chan *models.ConversionJob, 1)
	p := NewPool(1, func(_ context.Context, job *models.ConversionJob) error {
		got <- job
		return nil
	})
	p.Start(context.Background())
	defer p.Shutdown(context.Background())

	job := testJob("a")
	if err := p.Enqueue(job); err != nil {
		t.Fatal(err)
	}
	handled := <-got
	if !job.SubmittedAt.IsZero() {
		t.Error("Enqueue wrote SubmittedAt on the submitted job")
	}
	if handled.SubmittedAt.IsZero() {
		t.Error("queued job has no submission time")
	}
	if handled.Options.ID != "a" {
		t.Errorf("handled job = %s", handled.Options.ID)
	}
}

func TestConcurrentEnqueueKeepsJournalOrder(t *testing.T) {
	journal, err := OpenJournal(filepath.Join(t.TempDir(), "q.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer journal.Close()

	p := NewPool(1, func(context.Context, *models.ConversionJob) error { return nil }, WithJournal(journal))
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := p.Enqueue(testJob(fmt.Sprintf("job-%02d", i))); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	entries, err := journal.Pending()
	if err != nil {
		t.Fatal(err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(entries) != len(p.queue) {
		t.Fatalf("journal has %d entries, queue has %d", len(entries), len(p.queue))
	}
	for i, e := range p.queue {
		if e.key != entries[i].Key {
			t.Fatalf("queue position %d holds %s, journal replays %s", i, e.key, entries[i].Key)
		}
	}
}
