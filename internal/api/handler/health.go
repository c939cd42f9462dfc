package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/iconidentify/wadh/internal/repository"
	"github.com/iconidentify/wadh/internal/service"
	"github.com/iconidentify/wadh/internal/storage"
)

var startTime = time.Now()

// BatchStatsSource reports batch history statistics.
type BatchStatsSource interface {
	Stats(ctx context.Context) (*repository.BatchStats, error)
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	batches BatchStatsSource
	events  *service.EventService
	folder  *storage.Folder
	cpu     *cpuSampler
}

// NewHealthHandler creates a new health handler. events and folder may be nil.
func NewHealthHandler(batches BatchStatsSource, events *service.EventService, folder *storage.Folder) *HealthHandler {
	return &HealthHandler{
		batches: batches,
		events:  events,
		folder:  folder,
		cpu:     newCPUSampler(),
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Batches   *repository.BatchStats `json:"batches,omitempty"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats, err := h.batches.Stats(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "error",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Batches:   stats,
	})
}

// SystemStats contains process and download folder statistics.
type SystemStats struct {
	Uptime        int64                  `json:"uptime_seconds"`
	UptimeHuman   string                 `json:"uptime_human"`
	MemAllocMB    int64                  `json:"mem_alloc_mb"`
	MemSysMB      int64                  `json:"mem_sys_mb"`
	NumGoroutines int                    `json:"num_goroutines"`
	NumCPU        int                    `json:"num_cpu"`
	CPUPercent    float64                `json:"cpu_percent"`
	Folder        string                 `json:"folder,omitempty"`
	FreeBytes     uint64                 `json:"free_bytes,omitempty"`
	Batches       *repository.BatchStats `json:"batches,omitempty"`
	Events        *service.EventStats    `json:"events,omitempty"`
}

// Stats handles GET /api/v1/stats - system statistics.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)
	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		CPUPercent:    h.cpu.Percent(),
	}

	if h.folder != nil {
		stats.Folder = h.folder.Path()
		if free, err := h.folder.FreeSpace(); err == nil {
			stats.FreeBytes = free
		}
	}
	if batches, err := h.batches.Stats(r.Context()); err == nil {
		stats.Batches = batches
	}
	if h.events != nil {
		es := h.events.Stats()
		stats.Events = &es
	}

	writeJSON(w, http.StatusOK, stats)
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
