//go:build !unix

package execx

import (
	"os/exec"
	"time"
)

func configureKill(cmd *exec.Cmd) {
	cmd.WaitDelay = 2 * time.Second
}
