package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediaqueue/logger"
	"mediaqueue/metrics"
	"mediaqueue/models"
	"mediaqueue/records"
	"mediaqueue/success"
)

// ErrInterrupted is returned by Handle when shutdown stopped a job before it
// reached a terminal status; the job stays journaled for the next start.
var ErrInterrupted = errors.New("job interrupted")

type SuccessRecorder interface {
	Put(record success.SuccessRecord) error
}

type FailureRecorder interface {
	Record(job *models.ConversionJob, attempts int, cause error) error
}

type Mirrorer interface {
	MirrorFile(ctx context.Context, owner, filePath string) error
}

// Processor is the queue handler: validate, run attempts, publish the outcome.
type Processor struct {
	Retry   *RetryController
	Sync    *Synchronizer
	Tracker *Tracker

	// Optional collaborators.
	Success  SuccessRecorder
	Failures FailureRecorder
	Mirror   Mirrorer
	Metrics  *metrics.Metrics
	Report   func(job *models.ConversionJob, attempts int, err error)
}

// NewProcessor wires retry hooks into tracker and the record store.
func NewProcessor(retry *RetryController, store records.Store, tracker *Tracker, m *metrics.Metrics) *Processor {
	if tracker == nil {
		tracker = NewTracker()
	}
	p := &Processor{
		Retry:   retry,
		Sync:    NewSynchronizer(store, tracker),
		Tracker: tracker,
		Metrics: m,
	}
	retry.OnAttempt = func(id string, attempt int, err error) {
		m.Attempt(err == nil)
		if err != nil {
			tracker.SetError(id, err)
			tracker.SetProgress(id, 0)
		}
		tracker.SetAttempt(id, attempt)
	}
	retry.OnProgress = tracker.SetProgress
	return p
}

// Handle processes one job to a terminal status. Validation failures drop
// the job without any status update.
func (p *Processor) Handle(ctx context.Context, job *models.ConversionJob) error {
	if err := Validate(job); err != nil {
		logger.Errorf("Dropping job: %v", err)
		p.Metrics.Dropped()
		return nil
	}

	id := job.Options.ID
	p.Tracker.Add(id, job.Options.Owner)
	if !p.Sync.Processing(id) {
		return nil
	}
	p.Metrics.JobStarted()
	logger.Infof("Processing job %s: %s (%s -> %s)", id, job.Options.OutputName, job.OriginalMime, job.Options.OutputFormat)

	out := p.run(ctx, job)
	switch {
	case out.Interrupted:
		p.Metrics.JobFinished("interrupted", out.Elapsed.Seconds())
		logger.Warnf("Job %s interrupted after %d attempts: %v", id, out.Attempts, out.Err)
		return fmt.Errorf("%w: %s", ErrInterrupted, id)
	case out.Err != nil:
		p.fail(job, out)
	default:
		p.complete(ctx, job, out)
	}
	return nil
}

// run converts a panic escaping the retry loop into a failed outcome so the
// job still reaches a terminal status.
func (p *Processor) run(ctx context.Context, job *models.ConversionJob) (out Outcome) {
	start := time.Now()
	defer func() {
		if v := recover(); v != nil {
			logger.Errorf("Job %s panicked: %v", job.Options.ID, v)
			out = Outcome{Format: job.Options.OutputFormat, Elapsed: time.Since(start), Err: fmt.Errorf("%w: %v", ErrAttemptPanicked, v)}
		}
	}()
	return p.Retry.Run(ctx, job)
}

func (p *Processor) complete(ctx context.Context, job *models.ConversionJob, out Outcome) {
	id := job.Options.ID
	p.Sync.Completed(id, out.OutputPath)
	p.Metrics.JobFinished(string(models.StatusCompleted), out.Elapsed.Seconds())

	if p.Success != nil {
		err := p.Success.Put(success.SuccessRecord{
			ID:         id,
			Owner:      job.Options.Owner,
			OutputPath: out.OutputPath,
			Format:     out.Format,
			Attempts:   out.Attempts,
			Duration:   out.Duration,
			Elapsed:    out.Elapsed,
			Timestamp:  time.Now(),
		})
		if err != nil {
			logger.Errorf("Failed to store success record for %s: %v", id, err)
		}
	}

	if p.Mirror != nil {
		if err := p.Mirror.MirrorFile(ctx, job.Options.Owner, out.OutputPath); err != nil {
			logger.Warnf("Job %s completed but mirroring was incomplete: %v", id, err)
		}
	}
}

func (p *Processor) fail(job *models.ConversionJob, out Outcome) {
	id := job.Options.ID
	p.Tracker.SetError(id, out.Err)
	p.Sync.Failed(id)
	p.Metrics.JobFinished(string(models.StatusFailed), out.Elapsed.Seconds())

	if p.Failures != nil {
		if err := p.Failures.Record(job, out.Attempts, out.Err); err != nil {
			logger.Errorf("Failed to store failure for %s: %v", id, err)
		}
	}
	if p.Report != nil {
		p.Report(job, out.Attempts, out.Err)
	}
}
