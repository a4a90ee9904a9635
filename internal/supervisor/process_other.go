//go:build !unix && !windows

package supervisor

import (
	"os"
	"os/exec"
)

func configureCmd(cmd *exec.Cmd) {}

func suspendProcess(p *os.Process) error {
	return ErrUnsupportedOperation
}

func resumeProcess(p *os.Process) error {
	return ErrUnsupportedOperation
}

func interruptProcess(p *os.Process) error {
	return ErrUnsupportedOperation
}
