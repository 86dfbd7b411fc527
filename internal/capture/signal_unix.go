//go:build !windows

package capture

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr places the child in its own process group so that
// terminate/kill reach any helper processes it spawns.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateGroup(pid int) error { return syscall.Kill(-pid, syscall.SIGTERM) }

func killGroup(pid int) error { return syscall.Kill(-pid, syscall.SIGKILL) }

func processAlive(pid int) bool { return pid > 0 && syscall.Kill(pid, 0) == nil }
