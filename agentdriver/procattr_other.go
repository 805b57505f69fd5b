//go:build !linux && !windows

package agentdriver

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcAttr configures process group for subprocess orphan prevention.
// Pdeathsig is Linux-only; Setpgid still enables group-wide cleanup by the
// parent.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// killGroup sends SIGKILL to the entire process group of the given process.
func killGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	return syscall.Kill(-p.Pid, syscall.SIGKILL)
}
