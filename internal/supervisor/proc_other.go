//go:build !unix

package supervisor

import (
	"errors"
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

func terminate(cmd *exec.Cmd) error {
	return cmd.Process.Signal(os.Interrupt)
}

func kill(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

func isGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}
