//go:build windows

package agentdriver

import (
	"os"
	"os/exec"
)

// setProcAttr is a no-op on Windows; process groups are not used there.
func setProcAttr(cmd *exec.Cmd) {}

// killGroup kills the direct child only.
func killGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}
