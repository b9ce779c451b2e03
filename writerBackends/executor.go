// Package writerbackends copies finished outputs to secondary storage.
package writerbackends

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"mediaqueue/config"
	"mediaqueue/logger"
)

// UploadFunc writes the content of reader to one backend. accessInfo holds
// the stored credentials plus "folder" and "filename".
type UploadFunc func(ctx context.Context, accessInfo map[string]string, reader io.Reader) error

// CredentialSource looks up stored backend credentials by key.
type CredentialSource interface {
	Get(key string) (map[string]string, error)
}

var uploaders = map[string]UploadFunc{
	"directServe": UploadToDirectServe,
	"s3":          UploadToS3WithCreds,
	"gcs":         UploadToGCSWithJSON,
	"sftp":        UploadToSFTPWithCreds,
}

// Mirror copies completed outputs to every configured target.
type Mirror struct {
	targets  []config.MirrorTarget
	creds    CredentialSource
	serveDir string
	upload   map[string]UploadFunc
}

func NewMirror(targets []config.MirrorTarget, creds CredentialSource, serveDir string) *Mirror {
	m := &Mirror{targets: targets, creds: creds, serveDir: serveDir, upload: make(map[string]UploadFunc)}
	for k, fn := range uploaders {
		m.upload[k] = fn
	}
	return m
}

// SetUploader replaces the upload function of a backend type.
func (m *Mirror) SetUploader(backendType string, fn UploadFunc) {
	m.upload[backendType] = fn
}

// Enabled reports whether any target is configured.
func (m *Mirror) Enabled() bool {
	return m != nil && len(m.targets) > 0
}

// MirrorFile writes the file at filePath to every target under owner's
// folder. Each failure is logged; the joined error is returned.
func (m *Mirror) MirrorFile(ctx context.Context, owner, filePath string) error {
	if !m.Enabled() {
		return nil
	}
	var errs []error
	for _, target := range m.targets {
		if err := m.write(ctx, target, owner, filePath); err != nil {
			logger.Errorf("Failed to mirror %s to %s: %v", filePath, target.Type, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Mirror) write(ctx context.Context, target config.MirrorTarget, owner, filePath string) error {
	fn, ok := m.upload[target.Type]
	if !ok {
		return fmt.Errorf("unknown backend type: %s", target.Type)
	}
	accessInfo, err := m.accessInfo(target, owner, filepath.Base(filePath))
	if err != nil {
		return err
	}

	reader, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer reader.Close()

	if err := fn(ctx, accessInfo, reader); err != nil {
		return fmt.Errorf("failed to upload to %s: %w", target.Type, err)
	}
	return nil
}

// accessInfo merges stored credentials with per-file addressing.
func (m *Mirror) accessInfo(target config.MirrorTarget, folder, filename string) (map[string]string, error) {
	accessInfo := make(map[string]string)
	if target.CredentialsKey != "" {
		if m.creds == nil {
			return nil, fmt.Errorf("no credentials store for %s", target.Type)
		}
		creds, err := m.creds.Get(target.CredentialsKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load credentials %s: %w", target.CredentialsKey, err)
		}
		for k, v := range creds {
			accessInfo[k] = v
		}
	}
	accessInfo["filename"] = filename
	accessInfo["folder"] = folder

	objectKey := path.Join(strings.Trim(accessInfo["prefix"], "/"), folder, filename)
	switch target.Type {
	case "directServe":
		accessInfo["baseDir"] = m.serveDir
	case "s3":
		accessInfo["key"] = objectKey
	case "gcs":
		accessInfo["object"] = objectKey
	case "sftp":
		accessInfo["remotePath"] = path.Join(accessInfo["remoteDir"], folder, filename)
	}
	return accessInfo, nil
}
