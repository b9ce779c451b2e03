package encoder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"mediaqueue/logger"
	"mediaqueue/models"
)

// Copy stores the staged file unchanged. It serves MIME types that the
// transcoder does not touch (audio, documents, fonts, svg).
type Copy struct{}

func (Copy) Convert(ctx context.Context, input string, spec models.OutputSpec, _ Observer) Result {
	start := time.Now()
	if err := copyFile(ctx, input, spec.OutputPath); err != nil {
		removePartial(spec.OutputPath)
		return Result{Elapsed: time.Since(start), Err: err}
	}
	logger.Debugf("copied original file from %s to %s", input, spec.OutputPath)
	return Result{Elapsed: time.Since(start)}
}

func copyFile(ctx context.Context, input, output string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := os.Open(input)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	dst, err := os.Create(output)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// removePartial deletes whatever a failed conversion left at path.
func removePartial(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Errorf("Failed to remove partial output %s: %v", path, err)
	}
}
