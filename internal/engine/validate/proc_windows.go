//go:build windows

package validate

import (
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup kills only the direct child on Windows.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
