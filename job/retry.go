package job

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"time"

	"mediaqueue/encoder"
	"mediaqueue/logger"
	"mediaqueue/models"
	"mediaqueue/probe"
)

// DefaultMaxRetries is the retry budget after the first attempt.
const DefaultMaxRetries = 5

// ErrAttemptPanicked wraps a panic recovered from a conversion attempt.
var ErrAttemptPanicked = errors.New("conversion attempt panicked")

// Negotiator picks the output width of an attempt.
type Negotiator interface {
	Negotiate(ctx context.Context, path string, requestedWidth, requestedHeight int) (int, bool)
}

// Outcome is the single result of running a job through its attempt budget.
type Outcome struct {
	Attempts   int
	OutputPath string
	Format     string
	Duration   time.Duration // source media duration reported by the engine
	Elapsed    time.Duration
	Err        error
	// Interrupted is set when the parent context ended the run early; the
	// job has not reached a terminal status.
	Interrupted bool
}

// RetryController runs a job until one attempt succeeds or the budget is
// spent. Attempts follow each other immediately.
type RetryController struct {
	Engines        *encoder.Registry
	Negotiator     Negotiator
	TempPath       string
	MediaPath      string
	MaxRetries     int
	AttemptTimeout time.Duration // zero disables the per-attempt deadline

	// OnAttempt and OnProgress are optional hooks for tracking.
	OnAttempt  func(id string, attempt int, err error)
	OnProgress func(id string, percent float64)
}

// Run executes job. It never returns more than one Outcome per call and
// leaves no temp artifact behind.
func (r *RetryController) Run(ctx context.Context, job *models.ConversionJob) Outcome {
	start := time.Now()
	opts := job.Options

	engine, ok := r.Engines.Get(opts.OutputFormat)
	if !ok {
		return Outcome{
			Format:  opts.OutputFormat,
			Elapsed: time.Since(start),
			Err:     fmt.Errorf("%w: %s", encoder.ErrEncoderNotFound, opts.OutputFormat),
		}
	}

	outputPath := r.outputPath(job)
	maxAttempts := r.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Outcome{Attempts: attempt - 1, Format: opts.OutputFormat, Elapsed: time.Since(start), Err: err, Interrupted: true}
		}

		res := r.attempt(ctx, engine, job, outputPath, attempt)
		if r.OnAttempt != nil {
			r.OnAttempt(opts.ID, attempt, res.Err)
		}
		if res.Err == nil {
			logger.Infof("File converted successfully: %s %.2f seconds", outputPath, res.Elapsed.Seconds())
			return Outcome{
				Attempts:   attempt,
				OutputPath: outputPath,
				Format:     opts.OutputFormat,
				Duration:   res.Duration,
				Elapsed:    time.Since(start),
			}
		}

		lastErr = res.Err
		if ctx.Err() != nil {
			return Outcome{Attempts: attempt, Format: opts.OutputFormat, Elapsed: time.Since(start), Err: lastErr, Interrupted: true}
		}
		if attempt < maxAttempts {
			logger.Warnf("Error converting file, retrying file conversion: %s retry: %d/%d", opts.OutputName, attempt, r.MaxRetries)
		}
		logger.Errorf("Attempt %d for %s failed: %v", attempt, opts.OutputName, res.Err)
	}

	logger.Errorf("Error converting file after %d retries: %s", r.MaxRetries, opts.OutputName)
	return Outcome{
		Attempts: maxAttempts,
		Format:   opts.OutputFormat,
		Elapsed:  time.Since(start),
		Err:      lastErr,
	}
}

// attempt stages a fresh artifact, negotiates the size, converts and always
// removes the artifact before returning.
// A panic in the engine or negotiator counts as a failed attempt.
func (r *RetryController) attempt(ctx context.Context, engine encoder.Engine, job *models.ConversionJob, outputPath string, n int) (res encoder.Result) {
	defer func() {
		if v := recover(); v != nil {
			logger.Errorf("Attempt %d for %s panicked: %v\n%s", n, job.Options.OutputName, v, debug.Stack())
			res = encoder.Result{Err: fmt.Errorf("%w: %v", ErrAttemptPanicked, v)}
		}
	}()
	opts := job.Options
	artifact, err := encoder.StageArtifact(r.TempPath, opts.OutputName, n, job.Buffer)
	if err != nil {
		return encoder.Result{Err: err}
	}
	defer encoder.RemoveArtifact(artifact)

	if r.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.AttemptTimeout)
		defer cancel()
	}

	spec := models.OutputSpec{
		OutputPath:    outputPath,
		Format:        opts.OutputFormat,
		OriginalMime:  job.OriginalMime,
		OutputOptions: opts.OutputOptions,
	}
	if opts.OutputFormat != "copy" {
		width, _ := r.Negotiator.Negotiate(ctx, artifact, opts.Width, opts.Height)
		spec.Width = width
		spec.Size = probe.SizeString(width)
	}

	res = engine.Convert(ctx, artifact, spec, encoder.Observer{
		OnProgress: func(p float64) {
			if r.OnProgress != nil {
				r.OnProgress(opts.ID, p)
			}
		},
	})
	if res.Err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.Err = fmt.Errorf("attempt %d exceeded %s: %w", n, r.AttemptTimeout, res.Err)
	}
	return res
}

// outputPath resolves <media root>/<owner>/<output name>.<extension>.
func (r *RetryController) outputPath(job *models.ConversionJob) string {
	owner := filepath.Base(filepath.Clean("/" + job.Options.Owner))
	name := filepath.Base(job.Options.OutputName)
	return filepath.Join(r.MediaPath, owner, name+"."+outputExtension(job))
}

func outputExtension(job *models.ConversionJob) string {
	if job.Options.OutputFormat != "copy" {
		return job.Options.OutputFormat
	}
	if mt, ok := models.LookupMediaType(job.OriginalMime); ok {
		return mt.OutputExtension()
	}
	return "bin"
}
