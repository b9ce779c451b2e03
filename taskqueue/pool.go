// Package taskqueue runs conversion jobs on a fixed number of workers in
// strict submission order.
package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mediaqueue/logger"
	"mediaqueue/models"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 2

var ErrQueueClosed = errors.New("queue closed")

// Handler processes one job to completion. It returns a non-nil error only
// when the job was interrupted and must be replayed on the next start.
type Handler func(ctx context.Context, job *models.ConversionJob) error

type Option func(*Pool)

// WithJournal persists submissions so they survive a restart.
func WithJournal(j *Journal) Option {
	return func(p *Pool) { p.journal = j }
}

type entry struct {
	key string
	job *models.ConversionJob
}

// Pool is an unbounded FIFO queue drained by a fixed set of workers.
type Pool struct {
	size    int
	handler Handler
	journal *Journal

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []entry
	inFlight int
	closed   bool
	started  bool

	wg   sync.WaitGroup
	done chan struct{}
}

func NewPool(size int, handler Handler, opts ...Option) *Pool {
	if size <= 0 {
		size = DefaultWorkers
	}
	p := &Pool{size: size, handler: handler, done: make(chan struct{})}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. ctx is handed to every job; cancelling it
// interrupts running conversions.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.wg.Add(p.size)
	for i := 0; i < p.size; i++ {
		go p.worker(ctx, i+1)
	}
	go func() {
		p.wg.Wait()
		close(p.done)
	}()
	logger.Infof("Started %d conversion workers", p.size)
}

// Submit enqueues job without blocking. Failures are logged; the caller
// observes outcomes through the record store.
func (p *Pool) Submit(job *models.ConversionJob) {
	if err := p.Enqueue(job); err != nil {
		id := ""
		if job != nil {
			id = job.Options.ID
		}
		logger.Errorf("Failed to submit job %s: %v", id, err)
	}
}

// Enqueue is Submit with the error returned. The journal key and the queue
// position are taken under one lock so replay order matches dequeue order.
// A zero SubmittedAt is stamped on a copy; the caller's job is not modified.
func (p *Pool) Enqueue(job *models.ConversionJob) error {
	if job == nil {
		return errors.New("nil job")
	}
	if job.SubmittedAt.IsZero() {
		stamped := *job
		stamped.SubmittedAt = time.Now()
		job = &stamped
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrQueueClosed
	}
	var key string
	if p.journal != nil {
		var err error
		if key, err = p.journal.Add(job); err != nil {
			return fmt.Errorf("failed to journal job: %w", err)
		}
	}
	p.queue = append(p.queue, entry{key: key, job: job})
	p.cond.Signal()
	return nil
}

func (p *Pool) push(e entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrQueueClosed
	}
	p.queue = append(p.queue, e)
	p.cond.Signal()
	return nil
}

// Recover re-queues journaled jobs in their original order. Call it once,
// before the first Submit.
func (p *Pool) Recover() (int, error) {
	if p.journal == nil {
		return 0, nil
	}
	entries, err := p.journal.Pending()
	if err != nil {
		return 0, fmt.Errorf("failed to read journal: %w", err)
	}
	n := 0
	for _, e := range entries {
		if e.Job == nil {
			logger.Warnf("Discarding undecodable journal entry %s", e.Key)
			p.journal.Delete(e.Key)
			continue
		}
		if err := p.push(entry{key: e.Key, job: e.Job}); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		logger.Infof("Recovered %d pending jobs from journal", n)
	}
	return n, nil
}

// QueueDepth is the number of jobs waiting for a worker.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// InFlight is the number of jobs currently held by workers.
func (p *Pool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

func (p *Pool) Size() int { return p.size }

// Shutdown stops admission and waits for running jobs to finish. Jobs still
// queued remain in the journal. It returns ctx.Err() if ctx ends first.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	started := p.started
	left := len(p.queue)
	p.cond.Broadcast()
	p.mu.Unlock()

	if left > 0 {
		logger.Infof("Queue closed with %d jobs waiting", left)
	}
	if !started {
		return nil
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain stops admission and gives running jobs up to timeout to finish; zero
// waits without limit. If the window ends first, interrupt is called to
// cancel the jobs' context, which leaves them journaled for the next start,
// and Drain waits for the workers to return before reporting the timeout.
func (p *Pool) Drain(timeout time.Duration, interrupt context.CancelFunc) error {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err := p.Shutdown(ctx)
	if err == nil {
		return nil
	}

	logger.Warnf("Drain window of %s elapsed with %d jobs running, interrupting them", timeout, p.InFlight())
	if interrupt != nil {
		interrupt()
	}
	<-p.done
	return err
}

func (p *Pool) worker(ctx context.Context, n int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		e := p.queue[0]
		p.queue[0] = entry{}
		p.queue = p.queue[1:]
		p.inFlight++
		p.mu.Unlock()

		p.run(ctx, n, e)

		p.mu.Lock()
		p.inFlight--
		p.mu.Unlock()
	}
}

func (p *Pool) run(ctx context.Context, worker int, e entry) {
	defer func() {
		if r := recover(); r != nil {
			// The job handler turns conversion panics into failures; reaching
			// here means the handler itself is broken.
			logger.Errorf("Worker %d: job %s panicked: %v", worker, e.job.Options.ID, r)
			p.forget(e)
		}
	}()

	if err := p.handler(ctx, e.job); err != nil {
		logger.Warnf("Worker %d: job %s kept for recovery: %v", worker, e.job.Options.ID, err)
		return
	}
	p.forget(e)
}

func (p *Pool) forget(e entry) {
	if p.journal == nil || e.key == "" {
		return
	}
	if err := p.journal.Delete(e.key); err != nil {
		logger.Errorf("Failed to remove job %s from journal: %v", e.job.Options.ID, err)
	}
}
