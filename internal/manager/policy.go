package manager

import (
	"fmt"

	"audioconv/internal/config"
)

// Succeeded applies the batch success policy. "any" (the default) treats a
// run with at least one converted file as successful.
func Succeeded(policy string, succeeded, total int) bool {
	switch policy {
	case config.PolicyAll:
		return total > 0 && succeeded == total
	case config.PolicyMajority:
		return succeeded*2 > total
	default:
		return succeeded > 0
	}
}

func ratioMessage(prefix string, succeeded, total int) string {
	pct := 0.0
	if total > 0 {
		pct = float64(succeeded) / float64(total) * 100
	}
	return fmt.Sprintf("%s: %d/%d files converted (%.0f%%), %d failed", prefix, succeeded, total, pct, total-succeeded)
}
