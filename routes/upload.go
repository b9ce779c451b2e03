package routes

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"mediaqueue/logger"
	"mediaqueue/models"
	"mediaqueue/records"
)

// MaxUploadBytes bounds the request body of an upload.
const MaxUploadBytes = 200 << 20

// UploadResponse is returned once a job is queued.
type UploadResponse struct {
	ID         string        `json:"id"`
	Status     models.Status `json:"status"`
	Format     string        `json:"format"`
	OutputName string        `json:"output_name"`
	QueueDepth int           `json:"queue_depth"`
}

// UploadHandler accepts a multipart "file" and queues its conversion.
// Optional form fields: "uploadtype" (avatar, banner, media) and "filename".
func (s *Server) UploadHandler(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeJSONError(w, "Failed to parse multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, `missing file: form field key should be "file"`, http.StatusBadRequest)
		return
	}
	defer file.Close()

	kind := models.UploadMedia
	if v := r.FormValue("uploadtype"); v != "" {
		if kind, err = models.ParseUploadKind(v); err != nil {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSONError(w, "Failed to read file data", http.StatusInternalServerError)
		return
	}
	if len(data) == 0 {
		writeJSONError(w, "empty file", http.StatusBadRequest)
		return
	}

	mime := mimetype.Detect(data).String()
	mediaType, ok := models.LookupMediaType(mime)
	if !ok {
		writeJSONError(w, "unsupported file type: "+mime, http.StatusUnsupportedMediaType)
		return
	}

	id := uuid.NewString()
	size := s.Settings.TransformSize(string(kind))
	conv := &models.ConversionJob{
		Buffer:       data,
		OriginalMime: mediaType.OriginalMime,
		UploadKind:   kind,
		SubmittedAt:  time.Now(),
		Options: models.ConvertOptions{
			ID:            id,
			OutputName:    id,
			Width:         size.Width,
			Height:        size.Height,
			OutputFormat:  mediaType.OutputFormat(),
			Owner:         owner,
			OutputOptions: s.outputOptions(mediaType),
		},
	}

	filename := r.FormValue("filename")
	if filename == "" {
		filename = header.Filename
	}
	err = s.Records.Create(records.Record{
		ID:           id,
		Owner:        owner,
		Filename:     filepath.Base(filename),
		OriginalMime: mediaType.OriginalMime,
		UploadKind:   kind,
		Status:       models.StatusPending,
	})
	if err != nil {
		logger.Errorf("Failed to create record for upload from %s: %v", owner, err)
		writeJSONError(w, "Failed to register upload", http.StatusInternalServerError)
		return
	}

	if s.Tracker != nil {
		s.Tracker.Add(id, owner)
	}
	s.Queue.Submit(conv)
	logger.Infof("Queued %s from %s: %s -> %s (%d bytes)", id, owner, mime, conv.Options.OutputFormat, len(data))

	writeJSON(w, http.StatusAccepted, UploadResponse{
		ID:         id,
		Status:     models.StatusPending,
		Format:     conv.Options.OutputFormat,
		OutputName: id + "." + mediaType.OutputExtension(),
		QueueDepth: s.Queue.QueueDepth(),
	})
}

// outputOptions picks the configured encoder directives for a media class.
func (s *Server) outputOptions(mt models.MediaType) string {
	switch format := mt.OutputFormat(); {
	case models.IsVideoFormat(format):
		return s.Settings.OutputOptions["video"]
	case models.IsStillImageFormat(format):
		return s.Settings.OutputOptions["image"]
	}
	return ""
}
