//go:build linux

package resource

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const primeDelay = 250 * time.Millisecond

// HostSampler reads load from /proc/stat, sysinfo(2) and statfs(2).
type HostSampler struct {
	diskPath string

	mu     sync.Mutex
	prev   cpuTimes
	primed bool
}

// NewHostSampler measures disk usage of the filesystem holding diskPath.
func NewHostSampler(diskPath string) *HostSampler {
	if diskPath == "" {
		diskPath = "/"
	}
	return &HostSampler{diskPath: diskPath}
}

// Sample implements Sampler. The first call waits briefly to obtain a CPU delta.
func (h *HostSampler) Sample(ctx context.Context) (Sample, error) {
	cpu, err := h.cpu(ctx)
	if err != nil {
		return Sample{}, err
	}
	mem, err := memoryPercent()
	if err != nil {
		return Sample{}, err
	}
	disk, err := diskPercent(h.diskPath)
	if err != nil {
		return Sample{}, err
	}
	return Sample{CPUPercent: cpu, MemoryPercent: mem, DiskPercent: disk}, nil
}

func (h *HostSampler) cpu(ctx context.Context) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.primed {
		first, err := readCPUTimes()
		if err != nil {
			return 0, err
		}
		h.prev, h.primed = first, true
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(primeDelay):
		}
	}
	cur, err := readCPUTimes()
	if err != nil {
		return 0, err
	}
	pct := cpuPercent(h.prev, cur)
	h.prev = cur
	return pct, nil
}

func readCPUTimes() (cpuTimes, error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return cpuTimes{}, fmt.Errorf("open /proc/stat: %w", err)
	}
	defer f.Close()
	return parseCPUTimes(f)
}

func memoryPercent() (float64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, fmt.Errorf("sysinfo: %w", err)
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	total := uint64(info.Totalram) * unit
	if total == 0 {
		return 0, nil
	}
	free := (uint64(info.Freeram) + uint64(info.Bufferram)) * unit
	used := total - min(free, total)
	return float64(used) / float64(total) * 100, nil
}

func diskPercent(path string) (float64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := uint64(st.Bsize)
	total := st.Blocks * bsize
	free := st.Bfree * bsize
	avail := st.Bavail * bsize
	used := total - free
	denom := used + avail
	if denom == 0 {
		return 0, nil
	}
	return float64(used) / float64(denom) * 100, nil
}
