package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleSystemStatus reports process and host statistics
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	// 100ms sample keeps the endpoint responsive for pollers
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}
	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	ramPercent := 0.0
	if memStat, err := mem.VirtualMemory(); err == nil {
		ramPercent = memStat.UsedPercent
	} else {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
	}

	response := map[string]interface{}{
		"status":         "running",
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"cpu_percent":    cpuAvg,
		"ram_percent":    ramPercent,
		"memory": map[string]interface{}{
			"alloc_mb": m.Alloc / 1024 / 1024,
			"sys_mb":   m.Sys / 1024 / 1024,
			"num_gc":   m.NumGC,
		},
	}

	s.writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
