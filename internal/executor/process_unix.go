//go:build unix

package executor

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup starts the child in its own process group so that a
// timeout or cancellation kills everything the program spawned.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		killProcessGroup(cmd.Process.Pid)
		return nil
	}
}

// killProcessGroup sends SIGKILL to the group led by pid, then to pid itself
// in case the group was never established.
func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
	if IsProcessAlive(pid) {
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}
}

// IsProcessAlive checks if a process with the given PID exists.
// Uses kill(pid, 0) which checks for process existence without sending a signal.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}
