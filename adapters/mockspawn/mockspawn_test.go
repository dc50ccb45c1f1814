package mockspawn

import (
	"errors"
	"testing"

	"golang.org/x/sys/unix"

	"pkt.systems/subproc/port"
)

func TestSpawnDefaultHandle(t *testing.T) {
	s := New()
	h, err := s.Spawn(&port.SpawnSpec{Args: []string{"a"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if h.PID() != 1001 {
		t.Fatalf("pid = %d", h.PID())
	}
	if s.Calls != 1 || len(s.Specs) != 1 {
		t.Fatalf("calls = %d, specs = %d", s.Calls, len(s.Specs))
	}
}

func TestBehaviorsConsumeInOrder(t *testing.T) {
	boom := errors.New("boom")
	s := New(
		func(*port.SpawnSpec) (port.Handle, error) { return ExitedHandle(1, port.ExitStatus{Code: 2}), nil },
		func(*port.SpawnSpec) (port.Handle, error) { return nil, boom },
	)
	h, err := s.Spawn(&port.SpawnSpec{})
	if err != nil {
		t.Fatalf("first spawn: %v", err)
	}
	status, err := h.Wait()
	if err != nil || status.Code != 2 {
		t.Fatalf("wait = %+v, %v", status, err)
	}
	if _, err := s.Spawn(&port.SpawnSpec{}); !errors.Is(err, boom) {
		t.Fatalf("second spawn: %v", err)
	}
	if s.Remaining() != 0 {
		t.Fatalf("remaining = %d", s.Remaining())
	}
}

func TestExitIsOnce(t *testing.T) {
	h := NewHandle(5)
	h.Exit(port.ExitStatus{Code: 1})
	h.Exit(port.ExitStatus{Code: 9})
	status, err := h.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if status.Code != 1 {
		t.Fatalf("status = %+v, want first exit to stick", status)
	}
}

func TestSignalExits(t *testing.T) {
	h := NewHandle(6)
	h.SignalExits = true
	if err := h.Signal(unix.SIGKILL); err != nil {
		t.Fatalf("signal: %v", err)
	}
	status, err := h.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if status.Signal != int(unix.SIGKILL) {
		t.Fatalf("status = %+v", status)
	}
	if len(h.Signals) != 1 {
		t.Fatalf("signals = %v", h.Signals)
	}
}
