// Package ctxproc is the context-aware front over subproc's process
// controller. Every operation that can suspend takes a context.Context and
// honors its cancellation: a cancelled wait returns ctx.Err() and leaves the
// child running and the process state unchanged, so the caller decides what
// happens next (retry, Terminate, Close). Non-suspending operations are
// identical to package subproc's.
package ctxproc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"pkt.systems/subproc"
	"pkt.systems/subproc/port"
)

// Process is the cooperative counterpart of subproc.Process. It is
// single-use: Run spawns exactly once and a second Run fails with
// ErrAlreadyRunning.
type Process struct {
	c *subproc.Controller
}

// New returns an unstarted Process for cfg. Nothing is validated or
// allocated until Run.
func New(cfg subproc.Config) *Process {
	return NewWithSpawner(cfg, nil)
}

// NewWithSpawner is New with an explicit spawner implementation, usually a
// test double. A nil spawner selects the os/exec-backed default.
func NewWithSpawner(cfg subproc.Config, spawner port.Spawner) *Process {
	return &Process{c: subproc.NewController(cfg, spawner)}
}

// Run spawns the configured process. The context carries the execution
// policy checked before the spawn and can abort the spawn decision, but the
// running Process outlives it.
func (p *Process) Run(ctx context.Context) error {
	return p.c.Start(ctx)
}

// Join suspends until the process exits or ctx is cancelled, returning the
// exit code on exit. Cancellation returns ctx.Err(); the process keeps
// running and Join may be called again.
func (p *Process) Join(ctx context.Context) (int, error) {
	if err := p.c.Wait(ctx); err != nil {
		return 0, err
	}
	code, _ := p.c.Poll()
	return code, nil
}

// JoinTimeout is Join bounded by d on top of ctx's own cancellation. An
// elapsed d fails with ErrTimeout while a cancelled ctx surfaces ctx.Err();
// either way the process keeps running.
func (p *Process) JoinTimeout(ctx context.Context, d time.Duration) (int, error) {
	if d <= 0 {
		if err := p.c.WaitTimeout(d); err != nil {
			return 0, err
		}
		code, _ := p.c.Poll()
		return code, nil
	}
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	if err := p.c.Wait(tctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return 0, fmt.Errorf("%w after %s", subproc.ErrTimeout, d)
		}
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
func (p *Process) State() subproc.State {
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

// Arguments returns a copy of the argv the process was spawned with.
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

// Stdin returns the input adapter when stdin was configured as a pipe.
func (p *Process) Stdin() (*subproc.StreamWriter, error) {
	return p.c.Stdin()
}

// Stdout returns the output adapter when stdout is piped (the default).
func (p *Process) Stdout() (*subproc.StreamReader, error) {
	return p.c.Stdout()
}

// Stderr returns the error adapter when stderr is piped (the default).
func (p *Process) Stderr() (*subproc.StreamReader, error) {
	return p.c.Stderr()
}

// Output suspends until the process exits or ctx is cancelled, then returns
// the captured accumulation of its piped stdout. A cancelled ctx returns
// ctx.Err() without draining anything.
//
// A child that writes more than the OS pipe capacity blocks before it can
// exit, so Output waits until ctx cancels; drain large outputs through the
// Stdout adapter instead.
func (p *Process) Output(ctx context.Context) ([]byte, error) {
	return p.c.Output(ctx)
}

// ErrorOutput is Output for the stderr stream.
func (p *Process) ErrorOutput(ctx context.Context) ([]byte, error) {
	return p.c.ErrorOutput(ctx)
}

// Close releases everything the Process holds, terminating a still-running
// child first. Close does not take a context: release must run to
// completion even during teardown of a cancelled operation. It is
// idempotent.
func (p *Process) Close() error {
	return p.c.Close()
}

// With runs fn against a freshly spawned process for cfg and guarantees the
// process is fully released before With returns. fn's error wins over any
// Close error.
func With(ctx context.Context, cfg subproc.Config, fn func(context.Context, *Process) error) error {
	p := New(cfg)
	if err := p.Run(ctx); err != nil {
		return err
	}
	defer p.Close()
	return fn(ctx, p)
}
