// Package subproc spawns child processes with declarative stream wiring and
// explicit lifecycle control. A Config names the command and how each of the
// three standard streams is connected (inherited, piped through an adapter,
// discarded, redirected to a file, fed from a buffer, or for stderr merged
// into stdout), and a Process owns the spawned child until Close releases
// everything it holds.
//
// Process suspends the calling goroutine without a cancellation point, the
// way os/exec's Wait does. The ctxproc sibling package offers the same
// surface with a context.Context on every suspending operation. Both are
// thin fronts over the same Controller, so mixing models across processes
// in one program is fine.
//
// The common path:
//
//	p := subproc.New(subproc.Config{Command: "ls -l /tmp"})
//	if err := p.Run(); err != nil { ... }
//	defer p.Close()
//	out, err := p.Output()
//
// Spawns honor an execution policy carried in a context.Context (see
// WithPolicy and WithRule); Run uses context.Background and is therefore
// unrestricted, RunContext applies the context's policy.
package subproc

import (
	"context"
	"os"
	"time"

	"pkt.systems/subproc/port"
)

// Process is the thread-blocking front over one child process. Its
// suspending operations (Join, Output, ErrorOutput) block the calling
// goroutine until the child exits; everything else returns immediately. A
// Process is single-use: Run spawns exactly once and a second Run fails
// with ErrAlreadyRunning.
type Process struct {
	c *Controller
}

// New returns an unstarted Process for cfg. Nothing is validated or
// allocated until Run.
func New(cfg Config) *Process {
	return NewWithSpawner(cfg, nil)
}

// NewWithSpawner is New with an explicit spawner implementation, usually a
// test double. A nil spawner selects the os/exec-backed default.
func NewWithSpawner(cfg Config, spawner port.Spawner) *Process {
	return &Process{c: NewController(cfg, spawner)}
}

// Run spawns the configured process. On failure (ErrConfiguration,
// ErrSpawnFailed) nothing stays allocated and Run may not be retried on a
// config that already spawned.
func (p *Process) Run() error {
	return p.c.Start(context.Background())
}

// RunContext is Run honoring the execution policy carried by ctx. The
// context gates only the spawn decision; the running Process is not tied to
// ctx's lifetime.
func (p *Process) RunContext(ctx context.Context) error {
	return p.c.Start(ctx)
}

// Join blocks until the process exits and returns its exit code. A process
// terminated by signal N reports -N.
func (p *Process) Join() (int, error) {
	if err := p.c.Wait(context.Background()); err != nil {
		return 0, err
	}
	code, _ := p.c.Poll()
	return code, nil
}

// JoinTimeout is Join bounded by d. When d elapses first it fails with
// ErrTimeout, the process keeps running, and the join may be retried. A
// non-positive d polls without blocking.
func (p *Process) JoinTimeout(d time.Duration) (int, error) {
	if err := p.c.WaitTimeout(d); err != nil {
		return 0, err
	}
	code, _ := p.c.Poll()
	return code, nil
}

// Poll reports whether the process has exited and, if so, its exit code.
func (p *Process) Poll() (int, bool) {
	return p.c.Poll()
}

// Running reports whether the process is still running.
func (p *Process) Running() bool {
	return p.c.Running()
}

// State returns the lifecycle state: NotStarted, Running or Exited.
func (p *Process) State() State {
	return p.c.State()
}

// ExitCode returns the exit code and true once the process has exited.
func (p *Process) ExitCode() (int, bool) {
	return p.c.ExitCode()
}

// PID returns the operating system process identifier.
func (p *Process) PID() (int, error) {
	return p.c.PID()
}

// Arguments returns a copy of the argv the process runs (or would run).
func (p *Process) Arguments() ([]string, error) {
	return p.c.Arguments()
}

// Signal delivers sig to the process. Only valid while running.
func (p *Process) Signal(sig os.Signal) error {
	return p.c.Signal(sig)
}

// Terminate asks the process to exit (SIGTERM) without waiting for it.
func (p *Process) Terminate() error {
	return p.c.Terminate()
}

// Kill forces the process to exit (SIGKILL) without waiting for it.
func (p *Process) Kill() error {
	return p.c.Kill()
}

// Stdin returns the input adapter. Fails with ErrInvalidStream unless stdin
// was configured as PipeStream.
func (p *Process) Stdin() (*StreamWriter, error) {
	return p.c.Stdin()
}

// Stdout returns the output adapter. Fails with ErrInvalidStream unless
// stdout is piped (the default).
func (p *Process) Stdout() (*StreamReader, error) {
	return p.c.Stdout()
}

// Stderr returns the error adapter. Fails with ErrInvalidStream unless
// stderr is piped (the default).
func (p *Process) Stderr() (*StreamReader, error) {
	return p.c.Stderr()
}

// Output blocks until the process exits and returns everything captured
// from its piped stdout that was not already consumed through the Stdout
// adapter. Calling it again returns the same accumulation.
//
// A child that writes more than the OS pipe capacity blocks before it can
// exit, so Output would wait forever; drain large outputs through the
// Stdout adapter instead.
func (p *Process) Output() ([]byte, error) {
	return p.c.Output(context.Background())
}

// ErrorOutput is Output for the stderr stream.
func (p *Process) ErrorOutput() ([]byte, error) {
	return p.c.ErrorOutput(context.Background())
}

// Close releases everything the Process holds: input is closed, a
// still-running child is terminated (SIGTERM, then SIGKILL after a grace
// period), the exit is reaped and the output adapters are drained and
// closed. Close is idempotent.
func (p *Process) Close() error {
	return p.c.Close()
}

// With runs fn against a freshly spawned process for cfg and guarantees the
// process is fully released before With returns, whatever fn does. fn's
// error wins over any Close error.
func With(cfg Config, fn func(*Process) error) error {
	p := New(cfg)
	if err := p.Run(); err != nil {
		return err
	}
	defer p.Close()
	return fn(p)
}
