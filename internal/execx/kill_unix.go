//go:build unix

package execx

import (
	"os/exec"
	"syscall"
	"time"
)

// configureKill puts the child in its own process group so a timeout
// kills everything it spawned, not just the direct child.
func configureKill(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second
}
