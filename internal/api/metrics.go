package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/telegram-gateway/internal/bridges/telegram"
	"github.com/nerrad567/telegram-gateway/internal/infrastructure/tgbot"
)

// SystemMetrics represents the complete metrics response.
type SystemMetrics struct {
	Timestamp     string                 `json:"timestamp"`
	Version       string                 `json:"version"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Runtime       RuntimeMetrics         `json:"runtime"`
	Bridge        telegram.BridgeMetrics `json:"bridge"`
	Telegram      *tgbot.Stats           `json:"telegram,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// handleMetrics returns relay counters plus process statistics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Bridge: s.bridge.GetMetrics(),
	}

	if stats, ok := s.telegram.(ChatStats); ok {
		chatStats := stats.Stats()
		metrics.Telegram = &chatStats
	}

	writeJSON(w, http.StatusOK, metrics)
}
