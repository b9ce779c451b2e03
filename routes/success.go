package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mediaqueue/logger"
)

func (s *Server) SuccessQueryHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, err := s.Success.Get(id)
	if err != nil {
		logger.Errorf("Failed to query success for %s: %v", id, err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if record == nil {
		writeJSONError(w, "No success record found for this job", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// SuccessListHandler handles listing all success records (admin endpoint)
func (s *Server) SuccessListHandler(w http.ResponseWriter, r *http.Request) {
	list, err := s.Success.List()
	if err != nil {
		logger.Errorf("Failed to list success records: %v", err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success_records": list,
		"count":           len(list),
	})
}
