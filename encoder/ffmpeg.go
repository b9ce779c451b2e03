package encoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mediaqueue/logger"
	"mediaqueue/models"
)

// stderrTail bounds how many stderr lines are kept for error messages.
const stderrTail = 20

// FFmpeg runs the ffmpeg binary for every transcoded format.
type FFmpeg struct {
	Binary string
}

func (f *FFmpeg) binary() string {
	if f.Binary == "" {
		return "ffmpeg"
	}
	return f.Binary
}

func (f *FFmpeg) Convert(ctx context.Context, input string, spec models.OutputSpec, obs Observer) Result {
	start := time.Now()
	res := f.run(ctx, input, spec, obs)
	res.Elapsed = time.Since(start)
	if res.Err != nil {
		removePartial(spec.OutputPath)
	}
	return res
}

func (f *FFmpeg) run(ctx context.Context, input string, spec models.OutputSpec, obs Observer) Result {
	args, err := BuildArgs(input, spec)
	if err != nil {
		return Result{Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(spec.OutputPath), 0755); err != nil {
		return Result{Err: fmt.Errorf("failed to create output directory: %w", err)}
	}

	cmd := exec.CommandContext(ctx, f.binary(), args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{Err: err}
	}

	logger.Debugf("ffmpeg %s", strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return Result{Err: fmt.Errorf("failed to start ffmpeg: %w", err)}
	}

	// Duration arrives on stderr and progress on stdout; the tracker is only
	// touched under mu.
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		tail    []string
		tracker = newProgressTracker(filepath.Base(spec.OutputPath), obs)
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanLines(stdout, func(line string) {
			mu.Lock()
			tracker.line(line)
			mu.Unlock()
		})
	}()
	go func() {
		defer wg.Done()
		scanLines(stderr, func(line string) {
			mu.Lock()
			defer mu.Unlock()
			if d, ok := ParseDuration(line); ok {
				tracker.setDuration(d)
			}
			tail = append(tail, line)
			if len(tail) > stderrTail {
				tail = tail[1:]
			}
		})
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	mu.Lock()
	defer mu.Unlock()
	if waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{Duration: tracker.duration, Err: fmt.Errorf("ffmpeg interrupted: %w", ctxErr)}
		}
		return Result{Duration: tracker.duration, Err: fmt.Errorf("ffmpeg failed: %w: %s", waitErr, strings.Join(tail, "\n"))}
	}

	if fi, err := os.Stat(spec.OutputPath); err != nil {
		return Result{Duration: tracker.duration, Err: fmt.Errorf("ffmpeg produced no output: %w", err)}
	} else if fi.Size() == 0 {
		return Result{Duration: tracker.duration, Err: errors.New("ffmpeg produced an empty output file")}
	}
	tracker.report(100)
	return Result{Duration: tracker.duration}
}

func scanLines(r io.Reader, fn func(string)) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		fn(sc.Text())
	}
	// Drain so the process never blocks on a full pipe.
	io.Copy(io.Discard, r)
}
