package encoder

import (
	"context"
	"errors"
	"os/exec"
	"sort"
	"sync"
	"time"

	"mediaqueue/logger"
	"mediaqueue/models"
)

// ErrEncoderNotFound is returned when no engine is registered for a format.
var ErrEncoderNotFound = errors.New("encoder not found")

// Observer receives lifecycle events of a running conversion. Both hooks
// are optional.
type Observer struct {
	OnDuration func(time.Duration)
	OnProgress func(percent float64)
}

func (o Observer) duration(d time.Duration) {
	if o.OnDuration != nil {
		o.OnDuration(d)
	}
}

func (o Observer) progress(p float64) {
	if o.OnProgress != nil {
		o.OnProgress(p)
	}
}

// Result is the terminal outcome of one conversion.
type Result struct {
	Duration time.Duration // source media duration, zero when unknown
	Elapsed  time.Duration
	Err      error
}

// Engine converts the file at input into spec.OutputPath. Implementations
// must leave no partial output behind when they return an error.
type Engine interface {
	Convert(ctx context.Context, input string, spec models.OutputSpec, obs Observer) Result
}

// Registry maps an output format onto the engine producing it.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Engine)}
}

// Register adds or replaces the engine for format.
func (r *Registry) Register(format string, e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[format] = e
}

// RegisterCommand adds e only if the command it runs exists, logging status.
func (r *Registry) RegisterCommand(format, cmdName string, e Engine) bool {
	if _, err := exec.LookPath(cmdName); err != nil {
		logger.Warnf("encoder [%s] skipped: command '%s' not found in PATH", format, cmdName)
		return false
	}
	r.Register(format, e)
	logger.Debugf("encoder [%s] registered (command: %s)", format, cmdName)
	return true
}

// Get looks up the engine for format.
func (r *Registry) Get(format string) (Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[format]
	return e, ok
}

// Formats lists registered formats, sorted.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.engines))
	for f := range r.engines {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// TranscodedFormats are the outputs produced by ffmpeg.
var TranscodedFormats = []string{"webp", "mp4"}

// RegisterDefaults registers ffmpeg for every transcoded format and the copy
// engine for pass-through types. It reports whether ffmpeg was found.
func RegisterDefaults(r *Registry, ffmpegBinary string) bool {
	ff := &FFmpeg{Binary: ffmpegBinary}
	found := true
	for _, format := range TranscodedFormats {
		if !r.RegisterCommand(format, ffmpegBinary, ff) {
			found = false
		}
	}
	r.Register("copy", Copy{})
	logger.Debugf("encoder [copy] registered (no command required)")
	return found
}
