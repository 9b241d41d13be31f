package health

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// System reads host CPU and memory usage through gopsutil.
//
// CPU usage is sampled with a zero interval, which reports usage since the
// previous call instead of sleeping. The first call after process start
// measures from boot.
type System struct{}

// NewSystem returns a gopsutil-backed provider.
func NewSystem() System {
	return System{}
}

// Metrics returns the current CPU and virtual memory usage.
func (System) Metrics(ctx context.Context) (Metrics, error) {
	cpuPercent, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return Metrics{}, fmt.Errorf("%w: cpu: %w", ErrMetricsUnavailable, err)
	}
	if len(cpuPercent) == 0 {
		return Metrics{}, fmt.Errorf("%w: cpu: no samples", ErrMetricsUnavailable)
	}

	vmem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("%w: memory: %w", ErrMetricsUnavailable, err)
	}

	return Metrics{
		CPUPercent:    cpuPercent[0],
		MemoryPercent: vmem.UsedPercent,
	}, nil
}
