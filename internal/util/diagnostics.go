package util

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"
)

// ProcessInfo holds information about the process
type ProcessInfo struct {
	PID         int           `json:"pid"`
	Goroutines  int           `json:"goroutines"`
	Memory      MemStats      `json:"memory"`
	CPUCores    int           `json:"cpu_cores"`
	GoVersion   string        `json:"go_version"`
	StartTime   time.Time     `json:"start_time"`
	ElapsedTime time.Duration `json:"elapsed"`
}

// MemStats holds memory statistics information
type MemStats struct {
	Alloc      string `json:"alloc"`
	TotalAlloc string `json:"total_alloc"`
	Sys        string `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
	HeapAlloc  string `json:"heap_alloc"`
	HeapSys    string `json:"heap_sys"`
	HeapIdle   string `json:"heap_idle"`
	HeapInUse  string `json:"heap_in_use"`
	StackInUse string `json:"stack_in_use"`
}

// GetProcessInfo returns diagnostic information about the running process
func GetProcessInfo(startTime time.Time) ProcessInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return ProcessInfo{
		PID:        os.Getpid(),
		Goroutines: runtime.NumGoroutine(),
		Memory: MemStats{
			Alloc:      FormatBytes(m.Alloc),
			TotalAlloc: FormatBytes(m.TotalAlloc),
			Sys:        FormatBytes(m.Sys),
			NumGC:      m.NumGC,
			HeapAlloc:  FormatBytes(m.HeapAlloc),
			HeapSys:    FormatBytes(m.HeapSys),
			HeapIdle:   FormatBytes(m.HeapIdle),
			HeapInUse:  FormatBytes(m.HeapInuse),
			StackInUse: FormatBytes(m.StackInuse),
		},
		CPUCores:    runtime.NumCPU(),
		GoVersion:   runtime.Version(),
		StartTime:   startTime,
		ElapsedTime: time.Since(startTime),
	}
}

// StartDiagnosticMonitor logs a one-line diagnostic every interval at debug
// level. The returned function stops it and may be called more than once.
func StartDiagnosticMonitor(logger *slog.Logger, startTime time.Time, interval time.Duration) func() {
	stopChan := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stopChan:
				return
			case <-ticker.C:
				info := GetProcessInfo(startTime)
				logger.Debug("diagnostic",
					slog.Int("goroutines", info.Goroutines),
					slog.String("heap_in_use", info.Memory.HeapInUse),
					slog.String("heap_sys", info.Memory.HeapSys),
					slog.Uint64("gc_cycles", uint64(info.Memory.NumGC)),
				)
			}
		}
	}()

	return func() { once.Do(func() { close(stopChan) }) }
}

// LogFullDiagnostics logs detailed diagnostic information
func LogFullDiagnostics(logger *slog.Logger, startTime time.Time) {
	info := GetProcessInfo(startTime)

	logger.Info("diagnostic report",
		slog.Int("pid", info.PID),
		slog.String("go_version", info.GoVersion),
		slog.Int("cpu_cores", info.CPUCores),
		slog.Int("goroutines", info.Goroutines),
		slog.Duration("runtime", info.ElapsedTime.Round(time.Second)),
		slog.Group("memory",
			slog.String("alloc", info.Memory.Alloc),
			slog.String("total_alloc", info.Memory.TotalAlloc),
			slog.String("sys", info.Memory.Sys),
			slog.String("heap_alloc", info.Memory.HeapAlloc),
			slog.String("heap_sys", info.Memory.HeapSys),
			slog.String("heap_idle", info.Memory.HeapIdle),
			slog.String("heap_in_use", info.Memory.HeapInUse),
			slog.String("stack_in_use", info.Memory.StackInUse),
			slog.Uint64("gc_cycles", uint64(info.Memory.NumGC)),
		),
	)
}

// FormatBytes formats bytes as human-readable string
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
