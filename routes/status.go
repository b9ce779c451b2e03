package routes

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mediaqueue/logger"
	"mediaqueue/models"
	"mediaqueue/records"
)

// JobStatusResponse represents the job status response
type JobStatusResponse struct {
	ID        string        `json:"id"`
	Status    models.Status `json:"status"`
	Attempts  int           `json:"attempts,omitempty"`
	Progress  float64       `json:"progress,omitempty"`
	Error     string        `json:"error,omitempty"`
	Hash      string        `json:"hash,omitempty"`
	Magnet    string        `json:"magnet,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// JobStatusHandler merges the live tracker state with the persisted record.
func (s *Server) JobStatusHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logger.Debugf("Checking status for job: %s", id)

	var (
		resp  JobStatusResponse
		found bool
	)
	if s.Records != nil {
		rec, err := s.Records.Get(id)
		switch {
		case err == nil:
			found = true
			resp = JobStatusResponse{ID: rec.ID, Status: rec.Status, Hash: rec.Hash, Magnet: rec.Magnet, UpdatedAt: rec.UpdatedAt}
		case !errors.Is(err, records.ErrRecordNotFound):
			logger.Errorf("Failed to load record %s: %v", id, err)
			writeJSONError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}
	if s.Tracker != nil {
		if st, ok := s.Tracker.State(id); ok {
			found = true
			resp.ID = st.ID
			resp.Status = st.Status
			resp.Attempts = st.Attempts
			resp.Progress = st.Progress
			resp.Error = st.Error
			resp.UpdatedAt = st.UpdatedAt
		}
	}
	if !found {
		writeJSONError(w, fmt.Sprintf("Job %s not found", id), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
