package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger is a dependency checked by the readiness probe.
type Pinger func(ctx context.Context) error

type SystemHandler struct {
	checks    map[string]Pinger
	logger    Logger
	startTime time.Time
}

func NewSystemHandler(checks map[string]Pinger, log Logger) *SystemHandler {
	return &SystemHandler{
		checks:    checks,
		logger:    log,
		startTime: time.Now(),
	}
}

type ServiceStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"` // operational, degraded, outage
	LatencyMs int64  `json:"latency_ms"`
}

func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	})
}

// Ready pings every dependency and answers 503 if any is down.
func (h *SystemHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ready := true
	services := make([]ServiceStatus, 0, len(h.checks))
	for name, ping := range h.checks {
		start := time.Now()
		err := ping(ctx)
		latency := time.Since(start).Milliseconds()

		status := "operational"
		switch {
		case err != nil:
			status = "outage"
			ready = false
			h.logger.Error("Readiness check failed", map[string]interface{}{"dependency": name, "error": err.Error()})
		case latency > 200:
			status = "degraded"
		}
		services = append(services, ServiceStatus{Name: name, Status: status, LatencyMs: latency})
	}

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]interface{}{
		"ready":    ready,
		"services": services,
	})
}
