//go:build linux

package agentdriver

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcAttr configures process group and parent-death signal for subprocess
// orphan prevention. On Linux, Pdeathsig causes the child to receive SIGTERM
// when the parent process dies (e.g. OOM kill, SIGKILL).
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}

// killGroup sends SIGKILL to the entire process group of the given process.
// Using the negative PID causes the kernel to deliver the signal to all
// processes in the group, not just the direct child.
func killGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	return syscall.Kill(-p.Pid, syscall.SIGKILL)
}
