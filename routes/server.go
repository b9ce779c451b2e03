// Package routes is the HTTP intake and admin surface of the service.
package routes

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mediaqueue/config"
	"mediaqueue/failures"
	"mediaqueue/job"
	"mediaqueue/logger"
	"mediaqueue/metrics"
	"mediaqueue/models"
	"mediaqueue/records"
	"mediaqueue/success"
	"mediaqueue/utils"
)

// Queue is the part of the worker pool the intake uses.
type Queue interface {
	Submit(job *models.ConversionJob)
	QueueDepth() int
	InFlight() int
}

type RecordStore interface {
	Create(r records.Record) error
	Get(id string) (*records.Record, error)
}

type SuccessReader interface {
	Get(id string) (*success.SuccessRecord, error)
	List() ([]success.SuccessRecord, error)
}

type FailureReader interface {
	Get(id string) (*failures.FailureRecord, error)
	List() ([]failures.FailureRecord, error)
}

type CredentialWriter interface {
	Put(key string, creds map[string]string) error
}

// Server carries the dependencies of every handler.
type Server struct {
	Settings    *config.Settings
	Queue       Queue
	Records     RecordStore
	Tracker     *job.Tracker
	Success     SuccessReader
	Failures    FailureReader
	Credentials CredentialWriter
	Metrics     *metrics.Metrics
}

// Router builds the chi router. Upload and credential registration require
// a bearer token.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.HealthHandler)
	r.Get("/version", VersionHandler)
	r.Get("/status/{id}", s.JobStatusHandler)

	r.Route("/success", func(r chi.Router) {
		r.Get("/", s.SuccessListHandler)
		r.Get("/{id}", s.SuccessQueryHandler)
	})
	r.Route("/failures", func(r chi.Router) {
		r.Get("/", s.FailureListHandler)
		r.Get("/{id}", s.FailureQueryHandler)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/upload", s.UploadHandler)
		r.Post("/credentials", s.RegisterCredentialsHandler)
	})

	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}
	return r
}

type ownerKey struct{}

// requireToken verifies the bearer token and stores its subject as the owner.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := verifyJWT(r, s.Settings.JWTSecret)
		if err != nil {
			logger.Warnf("Rejected request from %s: %v", r.RemoteAddr, err)
			writeJSONError(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(withOwner(r.Context(), claims.Subject)))
	})
}

func verifyJWT(r *http.Request, secret string) (*models.UploadClaims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("authorization header required")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return nil, fmt.Errorf("invalid authorization header format")
	}
	if secret == "" {
		return nil, fmt.Errorf("token verification is not configured")
	}
	return utils.VerifyUploadToken(token, utils.VerifyConfig{SecretKey: []byte(secret)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

type apiError struct {
	Error string `json:"error"`
}

func writeJSONError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, apiError{Error: msg})
}
