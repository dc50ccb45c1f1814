// Package supervisor tracks a set of spawned processes by opaque id,
// continuously draining their piped output into in-memory captures. It is
// the registry layer for callers that manage many children at once (a job
// runner, a service harness) rather than one process at a time.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"pkt.systems/subproc"
	"pkt.systems/subproc/ctxproc"
)

// ErrUnknownProcess is returned for ids the Supervisor does not track.
var ErrUnknownProcess = errors.New("supervisor: unknown process id")

// stopGrace is how long Stop waits after SIGTERM before escalating to
// SIGKILL.
const stopGrace = 5 * time.Second

// Status is a point-in-time snapshot of one supervised process.
type Status struct {
	ID      string
	PID     int
	Args    []string
	Running bool
	// ExitCode is set once the process has exited. A process terminated by
	// signal N reports -N.
	ExitCode *int
}

type entry struct {
	proc    *ctxproc.Process
	args    []string
	stdout  *capture
	stderr  *capture
	drained sync.WaitGroup
}

// Supervisor spawns and tracks processes. All methods are safe for
// concurrent use. The zero value is not usable; construct with New.
type Supervisor struct {
	mu     sync.Mutex
	procs  map[string]*entry
	logger *slog.Logger
}

// New returns an empty Supervisor logging through logger. A nil logger
// discards everything.
func New(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Supervisor{procs: make(map[string]*entry), logger: logger}
}

// Start spawns cfg under the supervisor's care and returns its id. Stdout
// and stderr are forced to pipes and drained in the background, so a
// supervised child never stalls on a full pipe. The context carries the
// execution policy for the spawn.
func (s *Supervisor) Start(ctx context.Context, cfg subproc.Config) (string, error) {
	cfg.Stdout = subproc.PipeStream
	cfg.Stderr = subproc.PipeStream
	proc := ctxproc.New(cfg)
	if err := proc.Run(ctx); err != nil {
		return "", err
	}
	e := &entry{proc: proc, stdout: &capture{}, stderr: &capture{}}
	e.args, _ = proc.Arguments()
	id := uuid.NewString()

	out, _ := proc.Stdout()
	errs, _ := proc.Stderr()
	e.drained.Add(2)
	go drain(&e.drained, e.stdout, out)
	go drain(&e.drained, e.stderr, errs)

	s.mu.Lock()
	s.procs[id] = e
	s.mu.Unlock()

	pid, _ := proc.PID()
	s.logger.Info("process started", "id", id, "pid", pid, "args", e.args)
	return id, nil
}

func drain(wg *sync.WaitGroup, dst *capture, src *subproc.StreamReader) {
	defer wg.Done()
	io.Copy(dst, src)
}

func (s *Supervisor) entry(id string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.procs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProcess, id)
	}
	return e, nil
}

// Status reports the current state of the process with the given id.
func (s *Supervisor) Status(id string) (Status, error) {
	e, err := s.entry(id)
	if err != nil {
		return Status{}, err
	}
	st := Status{ID: id, Args: e.args, Running: e.proc.Running()}
	st.PID, _ = e.proc.PID()
	if code, exited := e.proc.Poll(); exited {
		st.ExitCode = &code
	}
	return st, nil
}

// List returns a snapshot of every tracked process.
func (s *Supervisor) List() []Status {
	s.mu.Lock()
	ids := make([]string, 0, len(s.procs))
	for id := range s.procs {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	out := make([]Status, 0, len(ids))
	for _, id := range ids {
		if st, err := s.Status(id); err == nil {
			out = append(out, st)
		}
	}
	return out
}

// Output returns everything captured so far from the process's stdout.
func (s *Supervisor) Output(id string) ([]byte, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	return e.stdout.bytes(), nil
}

// ErrorOutput returns everything captured so far from the process's stderr.
func (s *Supervisor) ErrorOutput(id string) ([]byte, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	return e.stderr.bytes(), nil
}

// Terminate asks the process with the given id to exit (SIGTERM) without
// waiting for it.
func (s *Supervisor) Terminate(id string) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	return e.proc.Terminate()
}

// Wait suspends until the process with the given id exits or ctx is
// cancelled, returning its exit code.
func (s *Supervisor) Wait(ctx context.Context, id string) (int, error) {
	e, err := s.entry(id)
	if err != nil {
		return 0, err
	}
	return e.proc.Join(ctx)
}

// Stop releases the process with the given id: a still-running child is
// terminated (SIGTERM, a bounded grace, then SIGKILL), the exit reaped and
// the drain goroutines joined so the captures are complete. The captures
// stay readable until Remove.
func (s *Supervisor) Stop(id string) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	if e.proc.Running() {
		if err := e.proc.Terminate(); err == nil {
			if _, err := e.proc.JoinTimeout(context.Background(), stopGrace); errors.Is(err, subproc.ErrTimeout) {
				e.proc.Kill()
				e.proc.Join(context.Background())
			}
		}
	}
	// The child is gone, so both pipes reach end-of-stream and the drain
	// goroutines finish with the captures complete.
	e.drained.Wait()
	closeErr := e.proc.Close()
	code, _ := e.proc.Poll()
	s.logger.Info("process stopped", "id", id, "exit_code", code)
	return closeErr
}

// Remove stops the process if needed and drops it from the registry.
func (s *Supervisor) Remove(id string) error {
	if err := s.Stop(id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.procs, id)
	s.mu.Unlock()
	return nil
}

// Close stops every tracked process and empties the registry. The first
// error encountered is returned; teardown continues regardless.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.procs))
	for id := range s.procs {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	var first error
	for _, id := range ids {
		if err := s.Remove(id); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// capture is a concurrency-safe append-only byte sink.
type capture struct {
	mu  sync.Mutex
	buf []byte
}

func (c *capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = append(c.buf, p...)
	return len(p), nil
}

func (c *capture) bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.buf))
	copy(out, c.buf)
	return out
}
