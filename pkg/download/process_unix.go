//go:build unix

package download

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureCommand starts the executable in its own process group so that
// helpers it spawns (ffmpeg for merging) are signalled along with it.
func configureCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(p *os.Process) error {
	return signalGroup(p, unix.SIGTERM)
}

func kill(p *os.Process) error {
	return signalGroup(p, unix.SIGKILL)
}

func signalGroup(p *os.Process, sig syscall.Signal) error {
	if err := unix.Kill(-p.Pid, sig); err != nil {
		if err == unix.ESRCH {
			return nil
		}
		return p.Signal(sig)
	}
	return nil
}
