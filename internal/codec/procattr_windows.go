//go:build windows

package codec

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

func applyLaunchOptions(cmd *exec.Cmd, opts LaunchOptions) {
	if !opts.HideWindow {
		return
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.HideWindow = true
	cmd.SysProcAttr.CreationFlags |= windows.CREATE_NO_WINDOW
}
