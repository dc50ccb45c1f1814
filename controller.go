package subproc

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"pkt.systems/subproc/adapters/execspawn"
	"pkt.systems/subproc/port"
)

// State is the lifecycle of one process: NotStarted until a successful
// spawn, Running until reaped, then Exited. No transition leaves Exited,
// and a Controller is single-use.
type State int

const (
	NotStarted State = iota
	Running
	Exited
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Running:
		return "running"
	case Exited:
		return "exited"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// closeGrace is how long Close waits after SIGTERM before escalating to
// SIGKILL.
const closeGrace = 5 * time.Second

// Controller owns a spawned process: the OS handle, the reaper, the exit
// status and every stream adapter. It is the suspension-agnostic core both
// front-ends build on: all waits are selects over the reaper's done channel,
// so a thread-blocking wait and a context-cancellable wait observe identical
// results. Exactly one Controller owns a given handle, and one logical owner
// drives a Controller at a time.
type Controller struct {
	mu      sync.Mutex
	cfg     Config
	spawner port.Spawner
	state   State
	handle  port.Handle
	pid     int
	args    []string
	exit    port.ExitStatus
	waitErr error
	done    chan struct{}
	closed  bool
	w       *wiring
}

// NewController returns an unstarted Controller for cfg driven by spawner.
// A nil spawner selects the default os/exec-backed implementation.
func NewController(cfg Config, spawner port.Spawner) *Controller {
	if spawner == nil {
		spawner = execspawn.Default
	}
	return &Controller{cfg: cfg, spawner: spawner, done: make(chan struct{})}
}

// Start resolves the stream plan, consults the context execution policy and
// spawns the process. It fails with ErrAlreadyRunning unless the state is
// NotStarted and with ErrSpawnFailed when the OS rejects the spawn, in which
// case nothing stays allocated and the state remains NotStarted.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != NotStarted {
		return fmt.Errorf("%w: state is %s", ErrAlreadyRunning, c.state)
	}
	argv, err := c.cfg.argv()
	if err != nil {
		return err
	}
	if err := CheckPolicy(ctx, argv[0]); err != nil {
		return err
	}
	w, err := resolveStreams(&c.cfg)
	if err != nil {
		return err
	}
	spec := &port.SpawnSpec{
		Args:   argv,
		Dir:    c.cfg.Dir,
		Env:    c.cfg.environ(),
		Stdin:  w.stdinChild,
		Stdout: w.stdoutChild,
		Stderr: w.stderrChild,
	}
	handle, err := c.spawner.Spawn(spec)
	if err != nil {
		w.closeAll()
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	w.releaseChildEnds()
	c.w = w
	c.handle = handle
	c.pid = handle.PID()
	c.args = argv
	c.state = Running
	if w.feeder != nil {
		go feedInput(w.feeder, w.feed)
	}
	go c.reap()
	return nil
}

// feedInput writes buffer-supplied standard input and closes the pipe so
// the child observes end-of-file. A child that exits early breaks the pipe,
// which is acceptable here, so write errors are dropped.
func feedInput(w *StreamWriter, data []byte) {
	if _, err := w.Write(data); err == nil {
		w.Flush()
	}
	w.Close()
}

// reap waits for the child on its own goroutine and publishes the exit
// status through done. Poll and every wait variant observe exit via done,
// which keeps the Exited transition monotonic across both execution models.
// An OS-level wait failure is recorded and returned by the wait variants;
// the exit code is -1 in that case.
func (c *Controller) reap() {
	status, err := c.handle.Wait()
	c.mu.Lock()
	c.exit = status
	c.waitErr = err
	c.state = Exited
	c.mu.Unlock()
	close(c.done)
}

// exitCodeLocked maps an ExitStatus to the single-integer convention: a
// normal exit is its non-negative code, termination by signal N is -N.
func (c *Controller) exitCodeLocked() int {
	if c.exit.Signal > 0 {
		return -c.exit.Signal
	}
	return c.exit.Code
}

func (c *Controller) requireStarted() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == NotStarted {
		return fmt.Errorf("%w: process has not been run", ErrNotRunning)
	}
	return nil
}

// Poll reports whether the process has exited, without blocking. Once Poll
// reports an exit code it reports that same code forever.
func (c *Controller) Poll() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Exited {
		return c.exitCodeLocked(), true
	}
	return 0, false
}

// Wait suspends until the process exits or ctx is cancelled. Cancellation
// returns ctx.Err() and leaves the state untouched, so the wait may be
// retried. When the OS wait itself failed, Wait returns that error and the
// exit code is -1.
func (c *Controller) Wait(ctx context.Context) error {
	if err := c.requireStarted(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return c.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitTimeout suspends until the process exits or d elapses. A non-positive
// d polls: a child still running fails with ErrTimeout immediately. An
// expired wait leaves the process running and may be retried.
func (c *Controller) WaitTimeout(d time.Duration) error {
	if err := c.requireStarted(); err != nil {
		return err
	}
	if d <= 0 {
		select {
		case <-c.done:
			return c.waitErr
		default:
			return fmt.Errorf("%w after %s", ErrTimeout, d)
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.done:
		return c.waitErr
	case <-t.C:
		return fmt.Errorf("%w after %s", ErrTimeout, d)
	}
}

// Signal delivers sig to the process. Valid only while Running.
func (c *Controller) Signal(sig os.Signal) error {
	c.mu.Lock()
	if c.state != Running {
		defer c.mu.Unlock()
		return fmt.Errorf("%w: cannot signal in state %s", ErrNotRunning, c.state)
	}
	h := c.handle
	c.mu.Unlock()
	return h.Signal(sig)
}

// Terminate requests cooperative termination (SIGTERM). It does not wait
// for the exit; follow with Wait or Poll.
func (c *Controller) Terminate() error {
	return c.Signal(unix.SIGTERM)
}

// Kill forces termination (SIGKILL). It does not wait for the exit.
func (c *Controller) Kill() error {
	return c.Signal(unix.SIGKILL)
}

// PID returns the process identifier, valid once spawned.
func (c *Controller) PID() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == NotStarted {
		return 0, fmt.Errorf("%w: process has not been run", ErrNotRunning)
	}
	return c.pid, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Running reports whether the process is currently running, re-polled on
// every call.
func (c *Controller) Running() bool {
	return c.State() == Running
}

// ExitCode returns the exit code and true once the process has exited. A
// code of -1 with zero signal means the OS-level wait itself failed; the
// cause is returned by Wait and WaitTimeout.
func (c *Controller) ExitCode() (int, bool) {
	return c.Poll()
}

// Arguments returns a copy of the argv this Controller runs (or would run).
func (c *Controller) Arguments() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.args != nil {
		return slices.Clone(c.args), nil
	}
	return c.cfg.argv()
}

// Stdin returns the input adapter when stdin was configured as a pipe.
func (c *Controller) Stdin() (*StreamWriter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == NotStarted {
		return nil, fmt.Errorf("%w: process has not been run", ErrNotRunning)
	}
	if c.w.stdin == nil {
		return nil, fmt.Errorf("%w: stdin was not configured as a pipe", ErrInvalidStream)
	}
	return c.w.stdin, nil
}

// Stdout returns the output adapter when stdout was configured as a pipe.
func (c *Controller) Stdout() (*StreamReader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == NotStarted {
		return nil, fmt.Errorf("%w: process has not been run", ErrNotRunning)
	}
	if c.w.stdout == nil {
		return nil, fmt.Errorf("%w: stdout was not configured as a pipe", ErrInvalidStream)
	}
	return c.w.stdout, nil
}

// Stderr returns the error adapter when stderr was configured as a pipe.
func (c *Controller) Stderr() (*StreamReader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == NotStarted {
		return nil, fmt.Errorf("%w: process has not been run", ErrNotRunning)
	}
	if c.w.stderr == nil {
		return nil, fmt.Errorf("%w: stderr was not configured as a pipe", ErrInvalidStream)
	}
	return c.w.stderr, nil
}

// Output waits for the process to exit, drains what remains of the piped
// standard output and returns the full captured accumulation. Bytes already
// consumed through the Stdout adapter are not part of the accumulation.
//
// Because the wait comes first, a child that writes more than the OS pipe
// capacity blocks before it can exit and Output never returns. Drain such
// output through the Stdout adapter (Read, ReadLine, ReadAll) instead.
func (c *Controller) Output(ctx context.Context) ([]byte, error) {
	r, err := c.Stdout()
	if err != nil {
		return nil, err
	}
	if err := c.Wait(ctx); err != nil {
		return nil, err
	}
	return r.drain()
}

// ErrorOutput is Output for the standard error stream.
func (c *Controller) ErrorOutput(ctx context.Context) ([]byte, error) {
	r, err := c.Stderr()
	if err != nil {
		return nil, err
	}
	if err := c.Wait(ctx); err != nil {
		return nil, err
	}
	return r.drain()
}

// Close releases every resource the Controller owns: it closes the input
// adapter, terminates a still-running child (SIGTERM, a bounded grace, then
// SIGKILL), reaps it, and drains and closes the output adapters. Close is
// idempotent and never fails for redundant calls.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed || c.state == NotStarted {
		c.closed = true
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	running := c.state == Running
	h := c.handle
	w := c.w
	c.mu.Unlock()

	if w.stdin != nil {
		w.stdin.Close()
	}
	if w.feeder != nil {
		// The feeder may be blocked mid-write on a full pipe the child never
		// drained; abort interrupts that write instead of waiting behind it.
		w.feeder.abort()
	}
	if running {
		_ = h.Signal(unix.SIGTERM)
		if err := c.WaitTimeout(closeGrace); err != nil {
			_ = h.Signal(unix.SIGKILL)
			<-c.done
		}
	}
	if w.stdout != nil {
		w.stdout.drain()
		w.stdout.Close()
	}
	if w.stderr != nil {
		w.stderr.drain()
		w.stderr.Close()
	}
	return nil
}
