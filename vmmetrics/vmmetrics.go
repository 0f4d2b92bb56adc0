// Package vmmetrics reports host resource stats, backed by gopsutil
// the way the teacher's own node-health reporting is. The runtime
// package uses Sample and SuggestStackSize to size new fiber stacks;
// TLAB slab sizes do not depend on these stats, and YieldpointBudget
// has no caller in this module.
package vmmetrics

import (
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
)

// HostStats is a point-in-time snapshot of host memory and CPU
// pressure.
type HostStats struct {
	AvailableMemory uint64
	UsedMemPercent  float64
	CPUPercent      float64
	SampledAt       time.Time
}

// Sample takes a fresh HostStats snapshot. cpuWindow controls how long
// the CPU percentage is averaged over; 0 returns an instantaneous
// (since-boot) reading instead of blocking to sample.
func Sample(cpuWindow time.Duration) (HostStats, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return HostStats{}, err
	}
	pct, err := cpu.Percent(cpuWindow, false)
	if err != nil {
		return HostStats{}, err
	}
	var cpuPct float64
	if len(pct) > 0 {
		cpuPct = pct[0]
	}
	return HostStats{
		AvailableMemory: vm.Available,
		UsedMemPercent:  vm.UsedPercent,
		CPUPercent:      cpuPct,
		SampledAt:       time.Now(),
	}, nil
}

// SuggestStackSize scales a default stack size down under memory
// pressure, so a host running thousands of fibers under tight memory
// doesn't OOM from guard-paged stack reservations alone.
func SuggestStackSize(stats HostStats, base uintptr) uintptr {
	switch {
	case stats.UsedMemPercent > 90:
		return base / 4
	case stats.UsedMemPercent > 75:
		return base / 2
	default:
		return base
	}
}

// YieldpointBudget returns how long a mutator may run between
// yieldpoints before a pending stop-the-world is considered
// unreasonably delayed, tightening under CPU pressure since a loaded
// host already takes longer to schedule the parked threads a
// handshake is waiting on.
func YieldpointBudget(stats HostStats, base time.Duration) time.Duration {
	if stats.CPUPercent > 90 {
		return base / 2
	}
	return base
}
