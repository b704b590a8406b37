package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	Database      DatabaseMetrics `json:"database"`
	Counters      CounterMetrics  `json:"counters"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// DatabaseMetrics mirrors the database actor's queue and call counters.
type DatabaseMetrics struct {
	Readers         int    `json:"readers"`
	WriteQueueDepth int    `json:"write_queue_depth"`
	ReadQueueDepth  int    `json:"read_queue_depth"`
	QueueCapacity   int    `json:"queue_capacity"`
	Writes          uint64 `json:"writes"`
	Reads           uint64 `json:"reads"`
	Failures        uint64 `json:"failures"`
	Closed          bool   `json:"closed"`
}

// CounterMetrics contains counter service statistics.
type CounterMetrics struct {
	NotificationsDropped uint64 `json:"notifications_dropped"`
}

// handleMetrics returns runtime, hub and database actor metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := s.db.Stats()

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Database: DatabaseMetrics{
			Readers:         stats.Readers,
			WriteQueueDepth: stats.WriteQueueDepth,
			ReadQueueDepth:  stats.ReadQueueDepth,
			QueueCapacity:   stats.QueueCapacity,
			Writes:          stats.Writes,
			Reads:           stats.Reads,
			Failures:        stats.Failures,
			Closed:          stats.Closed,
		},
		Counters: CounterMetrics{
			NotificationsDropped: s.counters.Dropped(),
		},
	}
	if s.hub != nil {
		metrics.WebSocket.ConnectedClients = s.hub.ClientCount()
	}

	writeJSON(w, http.StatusOK, metrics)
}
