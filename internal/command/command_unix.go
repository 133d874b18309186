//go:build !windows

package command

import (
	"os/exec"
	"syscall"
)

func shellPath() string { return "/bin/sh" }
func shellFlag() string { return "-c" }

// setProcessGroup places the child in its own process group so that
// signals can be fanned out to grandchildren (spec.md §4.2, §5 "Every
// child must be placed in its own group at spawn time").
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

func killProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
