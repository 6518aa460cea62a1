package api

import (
	"net/http"
	"time"

	"github.com/snarg/dictation/internal/watch"
)

type HealthHandler struct {
	ctl       Controller
	mqtt      ConnectionChecker
	watcher   WatcherStatus
	version   string
	startTime time.Time
}

func NewHealthHandler(ctl Controller, mqtt ConnectionChecker, watcher WatcherStatus, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{ctl: ctl, mqtt: mqtt, watcher: watcher, version: version, startTime: startTime}
}

type healthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
	Watcher       *watch.Status     `json:"watcher,omitempty"`
}

// ServeHTTP reports "healthy" when the backend is usable and every configured
// integration is up, "degraded" otherwise. Degraded still returns 200; only a
// missing backend is 503.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "healthy",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        map[string]string{},
	}
	code := http.StatusOK

	st := h.ctl.Status()
	if st.BackendAvailable {
		resp.Checks["backend"] = "ok"
	} else {
		resp.Checks["backend"] = "unavailable"
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			resp.Checks["mqtt"] = "connected"
		} else {
			resp.Checks["mqtt"] = "disconnected"
			if resp.Status == "healthy" {
				resp.Status = "degraded"
			}
		}
	}

	if h.watcher != nil {
		ws := h.watcher.Status()
		resp.Watcher = &ws
		resp.Checks["watcher"] = ws.Status
	}

	WriteJSON(w, code, resp)
}
