//go:build !unix

package download

import (
	"os"
	"os/exec"
)

func configureCommand(cmd *exec.Cmd) {}

// terminate has no graceful form here; the process is killed outright.
func terminate(p *os.Process) error {
	return p.Kill()
}

func kill(p *os.Process) error {
	return p.Kill()
}
