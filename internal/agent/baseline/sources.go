package baseline

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/coral-mesh/coral-autoprof/internal/config"
)

// NewSources returns the CPU and memory sources for a scope ("process" or "system").
func NewSources(ctx context.Context, scope string) (cpuSrc, memSrc Source, err error) {
	switch scope {
	case config.ScopeSystem:
		return SourceFunc(systemCPU), SourceFunc(systemMemory), nil
	case config.ScopeProcess, "":
		p, err := newProcessSource(ctx, int32(os.Getpid()))
		if err != nil {
			return nil, nil, err
		}
		return SourceFunc(p.cpu), SourceFunc(p.memory), nil
	default:
		return nil, nil, fmt.Errorf("unknown baseline scope %q", scope)
	}
}

// processSource reads usage of a single process.
type processSource struct {
	proc   *process.Process
	numCPU int
}

func newProcessSource(ctx context.Context, pid int32) (*processSource, error) {
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("failed to open process %d: %w", pid, err)
	}

	numCPU, err := cpu.CountsWithContext(ctx, true)
	if err != nil || numCPU < 1 {
		numCPU = 1
	}

	return &processSource{proc: proc, numCPU: numCPU}, nil
}

// cpu returns the process CPU usage since the previous call, normalized so
// that 100 means every core is busy.
func (p *processSource) cpu(ctx context.Context) (float64, error) {
	pct, err := p.proc.PercentWithContext(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to get process CPU percent: %w", err)
	}
	return clampPercent(pct / float64(p.numCPU)), nil
}

func (p *processSource) memory(ctx context.Context) (float64, error) {
	pct, err := p.proc.MemoryPercentWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get process memory percent: %w", err)
	}
	return clampPercent(float64(pct)), nil
}

// systemCPU returns host-wide CPU utilization since the previous call.
func systemCPU(ctx context.Context) (float64, error) {
	percentages, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, fmt.Errorf("failed to get CPU percent: %w", err)
	}
	if len(percentages) == 0 {
		return 0, fmt.Errorf("no CPU percentages returned")
	}
	return clampPercent(percentages[0]), nil
}

func systemMemory(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get memory stats: %w", err)
	}
	return clampPercent(vm.UsedPercent), nil
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
