package subproc

import (
	"bytes"
	"errors"
	"io"
	"os"
	"testing"
	"time"
)

func pipeReader(t *testing.T, content string) *StreamReader {
	t.Helper()
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	go func() {
		pw.WriteString(content)
		pw.Close()
	}()
	r := newStreamReader("stdout", pr, DefaultBufferSize)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestStreamReaderReadLine(t *testing.T) {
	r := pipeReader(t, "one\ntwo\nlast")
	for _, want := range []string{"one\n", "two\n", "last"} {
		line, err := r.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine: %v", err)
		}
		if string(line) != want {
			t.Fatalf("ReadLine = %q, want %q", line, want)
		}
	}
	if _, err := r.ReadLine(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestStreamReaderReadAll(t *testing.T) {
	r := pipeReader(t, "abcdef")
	buf := make([]byte, 3)
	if n, err := r.Read(buf); err != nil || n != 3 {
		t.Fatalf("Read = %d, %v", n, err)
	}
	rest, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(rest) != "def" {
		t.Fatalf("ReadAll = %q, want %q", rest, "def")
	}
}

func TestStreamReaderDrainAccumulates(t *testing.T) {
	r := pipeReader(t, "hello world")
	got, err := r.drain()
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("drain = %q", got)
	}
	// Redundant drains return the same accumulation, also after Close.
	again, err := r.drain()
	if err != nil || string(again) != "hello world" {
		t.Fatalf("second drain = %q, %v", again, err)
	}
	r.Close()
	closed, err := r.drain()
	if err != nil || string(closed) != "hello world" {
		t.Fatalf("drain after close = %q, %v", closed, err)
	}
}

func TestStreamReaderClosed(t *testing.T) {
	r := pipeReader(t, "x")
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("redundant close: %v", err)
	}
	if _, err := r.Read(make([]byte, 1)); !errors.Is(err, ErrInvalidStream) {
		t.Fatalf("Read on closed: %v", err)
	}
	if _, err := r.ReadLine(); !errors.Is(err, ErrInvalidStream) {
		t.Fatalf("ReadLine on closed: %v", err)
	}
	if _, err := r.ReadAll(); !errors.Is(err, ErrInvalidStream) {
		t.Fatalf("ReadAll on closed: %v", err)
	}
}

func TestStreamWriterAbortUnblocksPendingWrite(t *testing.T) {
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer pr.Close()
	w := newStreamWriter(pw, 64)
	errCh := make(chan error, 1)
	go func() {
		// Far beyond the pipe buffer with nobody reading; this write blocks
		// inside the kernel while holding the adapter mutex.
		_, err := w.Write(bytes.Repeat([]byte("y"), 1<<20))
		errCh <- err
	}()
	time.Sleep(50 * time.Millisecond)
	w.abort()
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected the interrupted write to fail")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("write still blocked after abort")
	}
	if _, err := w.Write([]byte("z")); !errors.Is(err, ErrInvalidStream) {
		t.Fatalf("write after abort: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close after abort: %v", err)
	}
}

func TestStreamWriterRoundTrip(t *testing.T) {
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer pr.Close()
	w := newStreamWriter(pw, DefaultBufferSize)
	if _, err := w.Write([]byte("payload")); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Buffered until flushed; Close flushes and signals end-of-input.
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	got, err := io.ReadAll(pr)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("read = %q", got)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("redundant close: %v", err)
	}
	if _, err := w.Write([]byte("x")); !errors.Is(err, ErrInvalidStream) {
		t.Fatalf("write on closed: %v", err)
	}
	if err := w.Flush(); !errors.Is(err, ErrInvalidStream) {
		t.Fatalf("flush on closed: %v", err)
	}
}
