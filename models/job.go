package models

import (
	"fmt"
	"time"
)

// UploadKind is the category an upload was submitted under.
type UploadKind string

const (
	UploadAvatar UploadKind = "avatar"
	UploadBanner UploadKind = "banner"
	UploadMedia  UploadKind = "media"
)

// UploadKinds lists every accepted upload category.
var UploadKinds = []UploadKind{UploadAvatar, UploadBanner, UploadMedia}

// ParseUploadKind maps a form value onto an UploadKind.
func ParseUploadKind(s string) (UploadKind, error) {
	for _, k := range UploadKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown upload kind %q", s)
}

// Status is the persisted lifecycle state of a conversion job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a legal lifecycle step.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// ConvertOptions carries everything the intake decided about the output.
type ConvertOptions struct {
	ID            string `json:"id" validate:"required"`
	OutputName    string `json:"output_name" validate:"required"`
	Width         int    `json:"width" validate:"gte=0"`
	Height        int    `json:"height" validate:"gte=0"`
	OutputFormat  string `json:"output_format" validate:"required"`
	Owner         string `json:"owner" validate:"required"`
	OutputOptions string `json:"output_options,omitempty"` // passed verbatim to the encoder
}

// ConversionJob is one unit of work submitted to the queue. It is not
// mutated after Submit.
type ConversionJob struct {
	Buffer       []byte         `json:"buffer" validate:"required,min=1"`
	OriginalMime string         `json:"original_mime" validate:"required"`
	UploadKind   UploadKind     `json:"upload_kind" validate:"required,oneof=avatar banner media"`
	Options      ConvertOptions `json:"options"`
	SubmittedAt  time.Time      `json:"submitted_at"`
}

// OutputSpec is the per-attempt description of what the encoder must produce.
type OutputSpec struct {
	OutputPath    string
	Size          string // "<width>x?" with the height left to the encoder
	Width         int
	Format        string
	OriginalMime  string
	OutputOptions string
}
