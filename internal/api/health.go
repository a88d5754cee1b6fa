package api

import (
	"net/http"
	"time"
)

// ConnChecker reports broker connectivity.
type ConnChecker interface {
	IsConnected() bool
}

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

type HealthHandler struct {
	relay             Relay
	mqtt              ConnChecker
	summarizerEnabled bool
	version           string
	startTime         time.Time
}

func NewHealthHandler(relay Relay, mqtt ConnChecker, summarizerEnabled bool, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		relay:             relay,
		mqtt:              mqtt,
		summarizerEnabled: summarizerEnabled,
		version:           version,
		startTime:         startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"

	if h.relay != nil && h.relay.Status().Active {
		checks["transcription"] = "streaming"
	} else {
		checks["transcription"] = "idle"
	}

	// MQTT is optional; losing it only degrades the mirror.
	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			status = "degraded"
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	if h.summarizerEnabled {
		checks["summarizer"] = "ok"
	} else {
		checks["summarizer"] = "not_configured"
	}

	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	})
}
