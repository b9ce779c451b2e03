package routes

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"mediaqueue/models"
)

// Build-time variables (injected by ldflags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string                `json:"status"`
	Timestamp  time.Time             `json:"timestamp"`
	Version    string                `json:"version"`
	GoVersion  string                `json:"go_version"`
	Uptime     string                `json:"uptime"`
	StartTime  string                `json:"start_time"`
	QueueDepth int                   `json:"queue_depth"`
	InFlight   int                   `json:"in_flight"`
	Jobs       map[models.Status]int `json:"jobs,omitempty"`
}

var startTime = time.Now()

// formatUptime formats a duration into days, hours, minutes, seconds
func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
}

// HealthHandler reports liveness plus queue depth for load balancers and monitoring.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   version,
		GoVersion: runtime.Version(),
		Uptime:    formatUptime(time.Since(startTime)),
		StartTime: startTime.Format("2006-01-02 15:04:05 MST"),
	}
	if s.Queue != nil {
		response.QueueDepth = s.Queue.QueueDepth()
		response.InFlight = s.Queue.InFlight()
	}
	if s.Tracker != nil {
		response.Jobs = s.Tracker.Counts()
	}
	writeJSON(w, http.StatusOK, response)
}
