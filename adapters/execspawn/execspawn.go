//go:build unix

// Package execspawn provides the default port.Spawner backed by os/exec.
package execspawn

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"pkt.systems/subproc/port"
)

// Spawner creates processes with os/exec.
type Spawner struct{}

var _ port.Spawner = Spawner{}

// Default is a shared instance of Spawner.
var Default port.Spawner = Spawner{}

// Spawn starts the process described by spec and returns a reapable handle.
// Executable lookup follows exec.Command semantics: a bare name is resolved
// against PATH, anything containing a separator is used as-is.
func (Spawner) Spawn(spec *port.SpawnSpec) (port.Handle, error) {
	if spec == nil || len(spec.Args) == 0 {
		return nil, fmt.Errorf("empty spawn spec")
	}
	cmd := exec.Command(spec.Args[0], spec.Args[1:]...)
	cmd.Args = spec.Args
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	// Nil endpoints stay nil so os/exec wires them to the null device.
	if spec.Stdin != nil {
		cmd.Stdin = spec.Stdin
	}
	if spec.Stdout != nil {
		cmd.Stdout = spec.Stdout
	}
	if spec.Stderr != nil {
		cmd.Stderr = spec.Stderr
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &handle{cmd: cmd}, nil
}

type handle struct {
	cmd *exec.Cmd
}

func (h *handle) PID() int {
	return h.cmd.Process.Pid
}

func (h *handle) Signal(sig os.Signal) error {
	return h.cmd.Process.Signal(sig)
}

// Wait reaps the child and decodes its wait status: a signal-terminated
// child yields the signal number, anything else the exit code.
func (h *handle) Wait() (port.ExitStatus, error) {
	err := h.cmd.Wait()
	state := h.cmd.ProcessState
	if state == nil {
		return port.ExitStatus{Code: -1}, err
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok {
		if status := unix.WaitStatus(ws); status.Signaled() {
			return port.ExitStatus{Signal: int(status.Signal())}, nil
		}
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return port.ExitStatus{Code: -1}, err
	}
	return port.ExitStatus{Code: state.ExitCode()}, nil
}
