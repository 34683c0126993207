package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/iconidentify/xgrab/pkg/twitter"
)

var startTime = time.Now()

// CredentialReporter reports the guest credential cache state.
type CredentialReporter interface {
	CredentialStatus() twitter.CredentialStatus
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	creds   CredentialReporter
	version string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(creds CredentialReporter, version string) *HealthHandler {
	return &HealthHandler{
		creds:   creds,
		version: version,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status      string                    `json:"status"`
	Timestamp   string                    `json:"timestamp"`
	Version     string                    `json:"version,omitempty"`
	Credentials *twitter.CredentialStatus `json:"credentials,omitempty"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
	})
}

// Ready handles GET /ready - readiness probe. The service holds no
// connections, so readiness only reports the credential cache.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := h.creds.CredentialStatus()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{
		Status:      "ok",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Version:     h.version,
		Credentials: &status,
	})
}

// SystemStats contains process resource statistics.
type SystemStats struct {
	Uptime        int64   `json:"uptime_seconds"`
	UptimeHuman   string  `json:"uptime_human"`
	MemAllocMB    int64   `json:"mem_alloc_mb"`
	MemSysMB      int64   `json:"mem_sys_mb"`
	MemHeapMB     int64   `json:"mem_heap_mb"`
	NumGoroutines int     `json:"num_goroutines"`
	NumCPU        int     `json:"num_cpu"`
	CPUPercent    float64 `json:"cpu_percent"`
	GoVersion     string  `json:"go_version"`
}

// Stats handles GET /stats - process statistics.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)

	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		MemHeapMB:     int64(m.HeapAlloc / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		CPUPercent:    getCPUUsage(),
		GoVersion:     runtime.Version(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(stats)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
