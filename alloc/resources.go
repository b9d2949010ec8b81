package alloc

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// containersPerMatch is the number of bot containers a match runs: an
// offense and a defense for each mirror.
const containersPerMatch = 4

const minMemory = 64 << 20

// Host is the capacity of the machine running the arenas.
type Host struct {
	CPUs        int
	MemoryBytes uint64
}

// Limits constrain one bot container.
type Limits struct {
	NanoCPUs    int64
	MemoryBytes int64
}

func (l Limits) String() string {
	return fmt.Sprintf("%.2f cpus, %d MiB", float64(l.NanoCPUs)/1e9, l.MemoryBytes>>20)
}

// DetectHost reads the logical CPU count and total memory of this machine.
func DetectHost(ctx context.Context) (Host, error) {
	cpus, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return Host{}, fmt.Errorf("failed to count cpus: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Host{}, fmt.Errorf("failed to read memory: %w", err)
	}
	return Host{CPUs: cpus, MemoryBytes: vm.Total}, nil
}

// PerContainer splits fraction of the host evenly across the bot containers
// of concurrency matches.
func (h Host) PerContainer(concurrency int, fraction float64) Limits {
	if concurrency < 1 {
		concurrency = 1
	}
	if fraction <= 0 || fraction > 1 {
		fraction = 1
	}
	share := fraction / float64(concurrency*containersPerMatch)
	l := Limits{
		NanoCPUs:    int64(float64(h.CPUs) * 1e9 * share),
		MemoryBytes: int64(float64(h.MemoryBytes) * share),
	}
	if l.MemoryBytes < minMemory {
		l.MemoryBytes = minMemory
	}
	return l
}
