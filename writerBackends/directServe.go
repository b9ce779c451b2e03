package writerbackends

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"mediaqueue/logger"
)

// UploadToDirectServe writes content under baseDir/folder/filename, which is
// served as static files by the HTTP server.
func UploadToDirectServe(ctx context.Context, accessInfo map[string]string, reader io.Reader) error {
	baseDir := accessInfo["baseDir"]
	folder := filepath.Base(filepath.Clean("/" + accessInfo["folder"]))
	filename := filepath.Base(accessInfo["filename"])
	if baseDir == "" || filename == "." || filename == "/" {
		return fmt.Errorf("missing required accessInfo keys: baseDir, filename")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fullDir := filepath.Join(baseDir, folder)
	fullPath := filepath.Join(fullDir, filename)
	if err := os.MkdirAll(fullDir, 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", fullPath, err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		return fmt.Errorf("failed to write to file %s: %w", fullPath, err)
	}
	if err := file.Close(); err != nil {
		return err
	}

	logger.Infof("Successfully saved file '%s' to '%s'", filename, fullPath)
	return nil
}
