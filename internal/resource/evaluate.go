package resource

import (
	"runtime"

	"audioconv/internal/config"
	"audioconv/internal/models"
)

const maxBaseWorkers = 4

// Sample is one raw reading of host load, all values in percent.
type Sample struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
}

// Thresholds are the critical limits. A metric above Critical-WarningMargin
// counts as a warning.
type Thresholds struct {
	CPUCritical    float64
	MemoryCritical float64
	DiskCritical   float64
	WarningMargin  float64
}

// DefaultThresholds returns cpu 85, memory 80, disk 90 with a 10 point margin.
func DefaultThresholds() Thresholds {
	return Thresholds{CPUCritical: 85, MemoryCritical: 80, DiskCritical: 90, WarningMargin: 10}
}

// ThresholdsFrom reads thresholds from the monitor config section.
func ThresholdsFrom(m config.Monitor) Thresholds {
	return Thresholds{
		CPUCritical:    m.CPUCritical,
		MemoryCritical: m.MemoryCritical,
		DiskCritical:   m.DiskCritical,
		WarningMargin:  m.WarningMargin,
	}
}

// BaseWorkers is min(4, logical CPUs).
func BaseWorkers() int {
	return min(maxBaseWorkers, max(1, runtime.NumCPU()))
}

// Classify maps a sample to a health status. Critical wins over warning.
func Classify(s Sample, t Thresholds) models.HealthStatus {
	switch {
	case s.CPUPercent > t.CPUCritical || s.MemoryPercent > t.MemoryCritical || s.DiskPercent > t.DiskCritical:
		return models.HealthCritical
	case s.CPUPercent > t.CPUCritical-t.WarningMargin ||
		s.MemoryPercent > t.MemoryCritical-t.WarningMargin ||
		s.DiskPercent > t.DiskCritical-t.WarningMargin:
		return models.HealthWarning
	default:
		return models.HealthNormal
	}
}

// RecommendWorkers applies the cpu and memory staircases and returns the
// smallest of the two and base. The result is always in [1, base].
func RecommendWorkers(cpu, memory float64, base int) int {
	base = max(1, base)
	cpuWorkers := staircase(cpu, 90, 75, 60, base)
	memWorkers := staircase(memory, 90, 80, 70, base)
	return max(1, min(cpuWorkers, memWorkers, base))
}

func staircase(value, one, two, three float64, base int) int {
	switch {
	case value > one:
		return 1
	case value > two:
		return 2
	case value > three:
		return 3
	default:
		return base
	}
}

// Evaluate turns a sample into the status snapshot handed to subscribers.
func Evaluate(s Sample, t Thresholds, base int) models.ResourceStatus {
	return models.ResourceStatus{
		CPUPercent:       s.CPUPercent,
		MemoryPercent:    s.MemoryPercent,
		DiskPercent:      s.DiskPercent,
		AvailableWorkers: RecommendWorkers(s.CPUPercent, s.MemoryPercent, base),
		Status:           Classify(s, t),
	}
}
