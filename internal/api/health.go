package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/fidde/agripredict/internal/artifacts"
)

// Version is reported by the health endpoint; set with -ldflags.
var Version = "dev"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string       `json:"status"`
	Ready     bool         `json:"ready"`
	Timestamp time.Time    `json:"timestamp"`
	Version   string       `json:"version,omitempty"`
	Uptime    string       `json:"uptime,omitempty"`
	Memory    *MemoryStats `json:"memory,omitempty"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	AllocMB      uint64 `json:"alloc_mb"`
	TotalAllocMB uint64 `json:"total_alloc_mb"`
	SysMB        uint64 `json:"sys_mb"`
	NumGC        uint32 `json:"num_gc"`
}

// ReadyResponse lists per-artifact load state.
type ReadyResponse struct {
	Ready     bool               `json:"ready"`
	Policy    string             `json:"unmapped_policy"`
	LoadedAt  time.Time          `json:"loaded_at"`
	Artifacts []artifacts.Status `json:"artifacts"`
}

var startTime = time.Now()

// HandleHealth is the liveness probe. It succeeds even when the pipeline is
// not ready; use /ready for that.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Ready:     s.svc.Ready(),
		Timestamp: time.Now(),
		Version:   Version,
		Uptime:    time.Since(startTime).String(),
		Memory: &MemoryStats{
			AllocMB:      m.Alloc / 1024 / 1024,
			TotalAllocMB: m.TotalAlloc / 1024 / 1024,
			SysMB:        m.Sys / 1024 / 1024,
			NumGC:        m.NumGC,
		},
	})
}

// HandleReady reports 200 when all artifacts are loaded and 503 otherwise.
func (s *Server) HandleReady(w http.ResponseWriter, r *http.Request) {
	respondBundle(w, s.svc.Bundle(), string(s.svc.Policy()))
}

func respondBundle(w http.ResponseWriter, b *artifacts.Bundle, policy string) {
	status := http.StatusOK
	if !b.Ready() {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, ReadyResponse{
		Ready:     b.Ready(),
		Policy:    policy,
		LoadedAt:  b.LoadedAt(),
		Artifacts: b.Statuses(),
	})
}
