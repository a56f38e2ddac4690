package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/client"
	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/store"
)

// HealthChecker provides health check endpoints
type HealthChecker struct {
	catalog     store.Catalog
	replication client.ReplicationClient
	logger      *zap.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(catalog store.Catalog, replication client.ReplicationClient, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		catalog:     catalog,
		replication: replication,
		logger:      logger,
	}
}

// LivenessHandler handles liveness probe requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "alive",
		Timestamp: time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// ReadinessHandler handles readiness probe requests
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	// Check tenant catalog (PostgreSQL)
	if err := h.catalog.Ping(ctx); err != nil {
		h.logger.Error("Catalog health check failed", zap.Error(err))
		checks["catalog"] = "unhealthy: " + err.Error()
		allHealthy = false
	} else {
		checks["catalog"] = "healthy"
	}

	// Check replication primitive connectivity
	if err := h.replication.Ping(ctx); err != nil {
		h.logger.Error("Replication health check failed", zap.Error(err))
		checks["replication"] = "unhealthy: " + err.Error()
		allHealthy = false
	} else {
		checks["replication"] = "healthy"
	}

	status := HealthStatus{
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")
	if allHealthy {
		status.Status = "ready"
		w.WriteHeader(http.StatusOK)
	} else {
		status.Status = "not ready"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}
