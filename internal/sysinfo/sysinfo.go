// Package sysinfo sizes the mining workload from the host hardware.
package sysinfo

import (
	"math"
	"runtime"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/zap"
)

// CPUInfo describes the host processor as seen by the miner.
type CPUInfo struct {
	Brand    string
	Logical  int
	Physical int
}

// DetectCPU queries the host processor. gopsutil failures fall back to
// the Go runtime's view so startup never blocks on platform quirks.
func DetectCPU() CPUInfo {
	info := CPUInfo{
		Brand:    cpuid.CPU.BrandName,
		Logical:  runtime.NumCPU(),
		Physical: runtime.NumCPU(),
	}
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		info.Logical = n
	}
	if n, err := cpu.Counts(false); err == nil && n > 0 {
		info.Physical = n
	}
	return info
}

// Threads converts a CPU-usage percentage into a worker count, always at
// least one thread.
func (c CPUInfo) Threads(cpuPercent float64) int {
	n := int(math.Ceil(float64(c.Logical) * cpuPercent / 100))
	if n < 1 {
		n = 1
	}
	return n
}

// Log writes the startup hardware summary the way the miner reports it.
func (c CPUInfo) Log(logger *zap.Logger, threads int, cpuPercent float64) {
	fields := []zap.Field{
		zap.Int("logical_cpus", c.Logical),
		zap.Int("physical_cores", c.Physical),
		zap.Int("threads", threads),
		zap.Float64("cpu_percent", cpuPercent),
	}
	if c.Brand != "" {
		fields = append(fields, zap.String("cpu", c.Brand))
	}
	if c.Physical > 0 && c.Physical < c.Logical {
		fields = append(fields, zap.Int("smt_per_core", c.Logical/c.Physical))
	}
	logger.Info("detected host CPU", fields...)
}
