package schedule

import (
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/pegabatch/errors"
)

// MemoryStats is host memory at the time of a tick, in bytes.
type MemoryStats struct {
	Total     uint64
	Available uint64
}

// ReadMemoryStats samples host memory.
func ReadMemoryStats() (MemoryStats, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return MemoryStats{}, errors.Wrap(err, "failed to get memory stats")
	}
	return MemoryStats{Total: v.Total, Available: v.Available}, nil
}

const gib = 1024 * 1024 * 1024

func (m MemoryStats) TotalGB() float64 { return float64(m.Total) / gib }

func (m MemoryStats) UsedGB() float64 {
	if m.Available > m.Total {
		return 0
	}
	return float64(m.Total-m.Available) / gib
}

// Percent is memory in use, 0 when total is unknown.
func (m MemoryStats) Percent() float64 {
	if m.Total == 0 {
		return 0
	}
	return m.UsedGB() / m.TotalGB() * 100
}
