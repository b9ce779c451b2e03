// Package records persists per-upload metadata: status, visibility,
// content hash and distribution identifier.
package records

import (
	"time"

	"mediaqueue/models"
)

// Store is what the conversion pipeline needs from the record store. Every
// update reports success as a bool; callers log and carry on.
type Store interface {
	UpdateStatus(id string, status models.Status) bool
	UpdateVisibility(id string, visible bool) bool
	// UpdateHash computes the content hash of the file at path and stores it.
	UpdateHash(id, path string) bool
	// UpdateDistributionID computes the distribution identifier of the file
	// at path and stores it.
	UpdateDistributionID(id, path string) bool
}

// Record is one row of the mediafiles table.
type Record struct {
	ID           string            `json:"id"`
	Owner        string            `json:"owner"`
	Filename     string            `json:"filename"`
	OriginalMime string            `json:"original_mime"`
	UploadKind   models.UploadKind `json:"upload_kind"`
	Status       models.Status     `json:"status"`
	Hash         string            `json:"hash,omitempty"`
	Magnet       string            `json:"magnet,omitempty"`
	Visible      bool              `json:"visible"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
