// Package mockspawn provides a scripted port.Spawner for tests.
package mockspawn

import (
	"os"
	"slices"
	"sync"
	"syscall"

	"pkt.systems/subproc/port"
)

// Behavior represents a single spawn path for the mock spawner.
type Behavior func(spec *port.SpawnSpec) (port.Handle, error)

// Spawner is a thread-safe mock implementation of port.Spawner.
type Spawner struct {
	mu        sync.Mutex
	behaviors []Behavior
	Calls     int
	Specs     []*port.SpawnSpec
}

var _ port.Spawner = (*Spawner)(nil)

// New constructs a Spawner that invokes behaviors sequentially for each call.
// When no behavior is queued, Spawn returns a fresh Handle that stays running
// until Exit is called on it.
func New(behaviors ...Behavior) *Spawner {
	return &Spawner{behaviors: slices.Clone(behaviors)}
}

// Spawn records the call metadata and dispatches to the next behavior.
func (s *Spawner) Spawn(spec *port.SpawnSpec) (port.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls++
	s.Specs = append(s.Specs, spec)

	if len(s.behaviors) == 0 {
		return NewHandle(1000 + s.Calls), nil
	}
	behavior := s.behaviors[0]
	s.behaviors = s.behaviors[1:]
	return behavior(spec)
}

// Remaining returns the number of queued behaviors not yet consumed.
func (s *Spawner) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.behaviors)
}

// Handle is a scripted process handle. It reports the configured pid,
// records delivered signals and blocks Wait until Exit is called.
type Handle struct {
	mu     sync.Mutex
	pid    int
	exited bool
	exitCh chan port.ExitStatus

	// Signals collects every signal delivered through Signal.
	Signals []os.Signal
	// SignalExits makes any delivered signal terminate the handle with the
	// corresponding signal status, mimicking a child without handlers.
	SignalExits bool
	// WaitErr is returned by Wait alongside the exit status, simulating an
	// OS-level reap failure. Set it before Exit.
	WaitErr error
}

var _ port.Handle = (*Handle)(nil)

// NewHandle returns a running Handle with the given pid.
func NewHandle(pid int) *Handle {
	return &Handle{pid: pid, exitCh: make(chan port.ExitStatus, 1)}
}

// ExitedHandle returns a Handle whose Wait immediately reports status.
func ExitedHandle(pid int, status port.ExitStatus) *Handle {
	h := NewHandle(pid)
	h.Exit(status)
	return h
}

// Exit completes the handle with status. Only the first call has an effect.
func (h *Handle) Exit(status port.ExitStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited {
		return
	}
	h.exited = true
	h.exitCh <- status
}

func (h *Handle) PID() int {
	return h.pid
}

func (h *Handle) Signal(sig os.Signal) error {
	h.mu.Lock()
	h.Signals = append(h.Signals, sig)
	exits := h.SignalExits
	h.mu.Unlock()
	if exits {
		num := 15
		if s, ok := sig.(syscall.Signal); ok {
			num = int(s)
		}
		h.Exit(port.ExitStatus{Signal: num})
	}
	return nil
}

func (h *Handle) Wait() (port.ExitStatus, error) {
	status := <-h.exitCh
	return status, h.WaitErr
}
