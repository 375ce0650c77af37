//go:build !windows

package codec

import "os/exec"

// Child processes have no console window outside Windows.
func applyLaunchOptions(*exec.Cmd, LaunchOptions) {}
