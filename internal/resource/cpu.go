package resource

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// cpuTimes are aggregate jiffies from the first line of /proc/stat.
type cpuTimes struct {
	idle  uint64
	total uint64
}

// parseCPUTimes reads the aggregate "cpu" line. Idle includes iowait; guest
// time is already counted in user and is skipped.
func parseCPUTimes(r io.Reader) (cpuTimes, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || fields[0] != "cpu" {
			continue
		}
		if len(fields) < 5 {
			return cpuTimes{}, fmt.Errorf("short cpu line: %q", scanner.Text())
		}
		var values [8]uint64
		for i := 1; i < len(fields) && i <= len(values); i++ {
			v, err := strconv.ParseUint(fields[i], 10, 64)
			if err != nil {
				return cpuTimes{}, fmt.Errorf("parse cpu field %d: %w", i, err)
			}
			values[i-1] = v
		}
		var t cpuTimes
		for _, v := range values {
			t.total += v
		}
		t.idle = values[3] + values[4]
		return t, nil
	}
	if err := scanner.Err(); err != nil {
		return cpuTimes{}, err
	}
	return cpuTimes{}, errors.New("no aggregate cpu line")
}

// cpuPercent is the busy share between two readings.
func cpuPercent(prev, cur cpuTimes) float64 {
	if cur.total <= prev.total {
		return 0
	}
	total := float64(cur.total - prev.total)
	idle := float64(cur.idle - prev.idle)
	if cur.idle < prev.idle {
		idle = 0
	}
	busy := (total - idle) / total * 100
	return min(100, max(0, busy))
}
