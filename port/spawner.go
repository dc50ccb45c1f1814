// Package port declares the seam between subproc's lifecycle/stream layers
// and the OS facility that actually creates process images. Implementations
// are provided by adapters/execspawn and adapters/mockspawn.
package port

import "os"

// SpawnSpec is a fully resolved wiring plan handed to a Spawner. The three
// stream endpoints are child-side files; a nil endpoint is wired to the null
// device.
type SpawnSpec struct {
	Args []string // argv, Args[0] is the executable
	Dir  string
	Env  []string // nil inherits the parent environment

	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

// ExitStatus reports how a reaped child ended. A normal exit carries Code
// with Signal zero; a signal-terminated exit carries the signal number.
type ExitStatus struct {
	Code   int
	Signal int
}

// Handle is a live spawned process. Wait reaps the child and must be called
// exactly once; a Handle is owned by a single lifecycle controller.
type Handle interface {
	PID() int
	Signal(sig os.Signal) error
	Wait() (ExitStatus, error)
}

// Spawner abstracts the OS spawn primitive so lifecycle code can be plugged
// with mocks across packages without depending on a specific adapter.
type Spawner interface {
	Spawn(spec *SpawnSpec) (Handle, error)
}
