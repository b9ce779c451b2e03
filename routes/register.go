package routes

import (
	"encoding/json"
	"net/http"

	"mediaqueue/logger"
	"mediaqueue/utils"
)

// RegisterCredentialsHandler stores mirror backend credentials and returns
// the generated key to reference them in the mirrors setting.
func (s *Server) RegisterCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	credsBody := make(map[string]string)
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&credsBody); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(credsBody) == 0 {
		writeJSONError(w, "Empty credentials", http.StatusBadRequest)
		return
	}

	keyString, err := utils.GenerateRandomHex(16)
	if err != nil {
		writeJSONError(w, "Failed to generate key", http.StatusInternalServerError)
		return
	}
	if err := s.Credentials.Put(keyString, credsBody); err != nil {
		logger.Errorf("Failed to store credentials: %v", err)
		writeJSONError(w, "Failed to store credentials", http.StatusInternalServerError)
		return
	}

	logger.Infof("Registered credentials %s for %s", keyString, ownerFrom(r.Context()))
	writeJSON(w, http.StatusCreated, map[string]string{"access_key": keyString})
}
