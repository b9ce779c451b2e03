package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mediaqueue/logger"
)

// FailureQueryHandler returns the failure record of one job.
func (s *Server) FailureQueryHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, err := s.Failures.Get(id)
	if err != nil {
		logger.Errorf("Failed to query failure for %s: %v", id, err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if record == nil {
		writeJSONError(w, "No failure record found for this job", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// FailureListHandler handles listing all failures (admin endpoint)
func (s *Server) FailureListHandler(w http.ResponseWriter, r *http.Request) {
	failuresList, err := s.Failures.List()
	if err != nil {
		logger.Errorf("Failed to list failures: %v", err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"failures": failuresList,
		"count":    len(failuresList),
	})
}
