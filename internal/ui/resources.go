package ui

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ResourceStats holds host resource information
type ResourceStats struct {
	CPUPercent  float64
	MemoryUsed  uint64
	MemoryTotal uint64
	MemPercent  float64
	CPUTemp     float64 // in Celsius, -1 if unavailable
}

// ProcessStats is the footprint of one managed server.
type ProcessStats struct {
	CPUPercent float64
	RSS        uint64
}

// GetResourceStats fetches current host resource statistics
func GetResourceStats() ResourceStats {
	stats := ResourceStats{CPUTemp: -1}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		stats.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemoryUsed = vm.Used
		stats.MemoryTotal = vm.Total
		stats.MemPercent = vm.UsedPercent
	}
	stats.CPUTemp = cpuTemperature()
	return stats
}

// cpuTemperature returns the first CPU sensor reading, or -1.
func cpuTemperature() float64 {
	temps, err := host.SensorsTemperatures()
	if err != nil && len(temps) == 0 {
		return -1
	}
	for _, t := range temps {
		key := strings.ToLower(t.SensorKey)
		if strings.Contains(key, "cpu") || strings.Contains(key, "coretemp") || strings.Contains(key, "k10temp") {
			if t.Temperature > 0 {
				return t.Temperature
			}
		}
	}
	return -1
}

// GetProcessStats samples CPU and resident memory of a process and its
// children, since package managers run the real server as a child.
func GetProcessStats(pid int) (ProcessStats, bool) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return ProcessStats{}, false
	}
	var st ProcessStats
	add := func(p *process.Process) {
		if pct, err := p.CPUPercent(); err == nil {
			st.CPUPercent += pct
		}
		if mi, err := p.MemoryInfo(); err == nil && mi != nil {
			st.RSS += mi.RSS
		}
	}
	add(p)
	if children, err := p.Children(); err == nil {
		for _, c := range children {
			add(c)
		}
	}
	return st, true
}

// FormatBytes formats bytes into a human-readable string
func FormatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
