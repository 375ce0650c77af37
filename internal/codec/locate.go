package codec

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Status reports the availability of an external binary.
type Status struct {
	Name      string
	Command   string
	Available bool
	Detail    string
}

// Locate resolves the binary called name. Lookup order: the configured
// value, a bundled copy next to the running executable, then PATH.
func Locate(configured, name string) (string, error) {
	if configured = strings.TrimSpace(configured); configured != "" {
		resolved, err := exec.LookPath(configured)
		if err != nil {
			return "", fmt.Errorf("configured %s %q: %w", name, configured, err)
		}
		return resolved, nil
	}

	if self, err := os.Executable(); err == nil {
		for _, candidate := range bundledCandidates(filepath.Dir(self), name) {
			if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
				return candidate, nil
			}
		}
	}

	resolved, err := exec.LookPath(executableName(name))
	if err != nil {
		return "", fmt.Errorf("binary %q not found: %w", name, err)
	}
	return resolved, nil
}

// Check reports where ffmpeg and ffprobe resolve to.
func Check(ffmpegPath, ffprobePath string) []Status {
	reqs := []struct{ name, configured string }{
		{"ffmpeg", ffmpegPath},
		{"ffprobe", ffprobePath},
	}
	results := make([]Status, 0, len(reqs))
	for _, req := range reqs {
		status := Status{Name: req.name}
		resolved, err := Locate(req.configured, req.name)
		if err != nil {
			status.Command = req.configured
			if status.Command == "" {
				status.Command = req.name
			}
			status.Detail = err.Error()
		} else {
			status.Command = resolved
			status.Available = true
		}
		results = append(results, status)
	}
	return results
}

func bundledCandidates(dir, name string) []string {
	exe := executableName(name)
	return []string{
		filepath.Join(dir, exe),
		filepath.Join(dir, "ffmpeg", "bin", exe),
	}
}

func executableName(name string) string {
	if runtime.GOOS == "windows" && !strings.HasSuffix(strings.ToLower(name), ".exe") {
		return name + ".exe"
	}
	return name
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
