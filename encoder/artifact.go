package encoder

import (
	"fmt"
	"os"
	"path/filepath"

	"mediaqueue/logger"
	"mediaqueue/utils"
)

// StageArtifact writes buf to a fresh file under dir named
// "<name>.<attempt>.<random hex>" so concurrent attempts never collide.
func StageArtifact(dir, name string, attempt int, buf []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	suffix, err := utils.GenerateRandomHex(6)
	if err != nil {
		return "", fmt.Errorf("failed to generate artifact name: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.%d.%s", filepath.Base(name), attempt, suffix))
	if err := os.WriteFile(path, buf, 0600); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write temp artifact: %w", err)
	}
	return path, nil
}

// RemoveArtifact deletes a staged file. A missing file is not an error.
func RemoveArtifact(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Errorf("Failed to delete temp artifact %s: %v", path, err)
		return err
	}
	return nil
}
