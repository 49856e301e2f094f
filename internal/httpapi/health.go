package httpapi

import (
	"net/http"
	"time"

	"github.com/pyrohost/pyro-node-agent/internal/eggs"
	"github.com/pyrohost/pyro-node-agent/internal/lifecycle"
)

type healthHandler struct {
	eggs      *eggs.Registry
	lifecycle *lifecycle.Manager
	startedAt time.Time
}

type healthCounts struct {
	Containers int `json:"containers"`
	Eggs       int `json:"eggs"`
	Images     int `json:"images"`
}

type healthResponse struct {
	Status    string       `json:"status"`
	Timestamp string       `json:"timestamp"`
	Counts    healthCounts `json:"counts"`
}

// Health handles GET /health: no auth, no business logic, just a signal
// that the process is alive and its in-memory indexes are populated.
func (h *healthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Counts: healthCounts{
			Containers: h.lifecycle.SupervisedCount(),
			Eggs:       len(h.eggs.List()),
			Images:     imageCount(h.eggs),
		},
	})
}
