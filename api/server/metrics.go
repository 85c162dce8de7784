// metrics.go - Metrics collection for the MedVault node
package server

import (
	"runtime"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// NodeMetrics holds granular health metrics for the node.
type NodeMetrics struct {
	UptimeSeconds  int64   `json:"uptime_seconds"`
	RecordCount    int     `json:"record_count"`
	OutboxDepth    int     `json:"outbox_depth"`
	Degraded       bool    `json:"degraded"`
	CPULoadPercent float64 `json:"cpu_load_percent"`
	MemoryMB       float64 `json:"memory_mb"`
	DiskFreeMB     float64 `json:"disk_free_mb"`
}

// Track server start time for uptime calculation
var startTime = time.Now()

// GetNodeMetrics returns current health metrics for the node.
func (s *Server) GetNodeMetrics() NodeMetrics {
	uptime := int64(time.Since(startTime).Seconds())

	// Memory usage
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	memoryMB := float64(m.Alloc) / (1024 * 1024)

	// Disk usage (root partition)
	var disk syscall.Statfs_t
	diskFreeMB := 0.0
	if err := syscall.Statfs("/", &disk); err == nil {
		diskFreeMB = float64(disk.Bfree) * float64(disk.Bsize) / (1024 * 1024)
	}

	// CPU usage: Use gopsutil to get current CPU percent
	cpuPercents, err := cpu.Percent(0, false)
	cpuLoad := 0.0
	if err == nil && len(cpuPercents) > 0 {
		cpuLoad = cpuPercents[0]
	}

	recordCount := 0
	if s.registry != nil {
		if n, err := s.registry.CountAll(); err == nil {
			recordCount = int(n)
		}
	}

	outboxDepth := 0
	degraded := false
	if s.capabilities != nil {
		outboxDepth = s.capabilities.Depth()
		degraded = s.capabilities.Degraded()
	}

	return NodeMetrics{
		UptimeSeconds:  uptime,
		RecordCount:    recordCount,
		OutboxDepth:    outboxDepth,
		Degraded:       degraded,
		CPULoadPercent: cpuLoad,
		MemoryMB:       memoryMB,
		DiskFreeMB:     diskFreeMB,
	}
}
