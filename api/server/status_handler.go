// status_handler.go - HTTP handler for /status
package server

import (
	"encoding/json"
	"net/http"
)

// HandleStatus responds to /status with node status. A node with queued
// capability writes reports itself degraded instead of pretending the ledger
// is reachable.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	metrics := s.GetNodeMetrics()

	status := "healthy"
	if metrics.Degraded {
		status = "degraded"
	}

	resp := StatusResponse{
		Status:      status,
		Uptime:      metrics.UptimeSeconds,
		RecordCount: metrics.RecordCount,
		OutboxDepth: metrics.OutboxDepth,
		Version:     NodeVersion(),
		APIVersion:  APIVersion(),
		Metrics:     metrics,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
