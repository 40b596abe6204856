// Package sysinfo reports host resource usage for the health endpoint: CPU
// load, memory pressure, and free space on the storage paths a worker
// writes segments and temp files to.
package sysinfo

import (
	"context"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// Stats is a point-in-time snapshot of host resource usage.
type Stats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
	MemoryTotalMB uint64  `json:"memory_total_mb"`
	DiskFreeMB    uint64  `json:"disk_free_mb,omitempty"`
	DiskPercent   float64 `json:"disk_percent,omitempty"`
}

// Collect gathers CPU and memory stats, plus disk usage for storageDir when
// it is non-empty. Any individual metric that fails to collect is left at
// its zero value rather than failing the whole snapshot.
func Collect(ctx context.Context, storageDir string) Stats {
	var s Stats

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		s.CPUPercent = percents[0]
	}

	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemoryPercent = memInfo.UsedPercent
		s.MemoryUsedMB = memInfo.Used / (1024 * 1024)
		s.MemoryTotalMB = memInfo.Total / (1024 * 1024)
	}

	if storageDir != "" {
		if usage, err := disk.UsageWithContext(ctx, storageDir); err == nil {
			s.DiskFreeMB = usage.Free / (1024 * 1024)
			s.DiskPercent = usage.UsedPercent
		}
	}

	return s
}
