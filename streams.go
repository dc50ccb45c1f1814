package subproc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

// StreamReader is the parent-side adapter for a piped stdout or stderr. It
// buffers the underlying pipe and keeps a captured accumulation that
// Output/ErrorOutput and Close drain into. Reads consume; bytes handed out
// by Read, ReadLine or ReadAll are never observed again. A closed adapter
// fails every operation with ErrInvalidStream.
type StreamReader struct {
	mu       sync.Mutex
	name     string
	f        *os.File
	br       *bufio.Reader
	closed   bool
	captured []byte
}

func newStreamReader(name string, f *os.File, size int) *StreamReader {
	return &StreamReader{name: name, f: f, br: bufio.NewReaderSize(f, size)}
}

// Read reads up to len(p) bytes, blocking until data is available or the
// stream reaches end-of-stream.
func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, fmt.Errorf("%w: %s adapter is closed", ErrInvalidStream, r.name)
	}
	return r.br.Read(p)
}

// ReadLine returns the next line including its trailing newline. A final
// unterminated line is returned as-is; after that ReadLine returns io.EOF.
// Successive calls form a lazy, finite sequence of lines.
func (r *StreamReader) ReadLine() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("%w: %s adapter is closed", ErrInvalidStream, r.name)
	}
	line, err := r.br.ReadBytes('\n')
	if len(line) > 0 {
		return line, nil
	}
	if err == nil {
		err = io.EOF
	}
	return nil, err
}

// ReadAll drains the stream to end-of-stream and returns the bytes read by
// this call.
func (r *StreamReader) ReadAll() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("%w: %s adapter is closed", ErrInvalidStream, r.name)
	}
	return io.ReadAll(r.br)
}

// drain reads whatever remains into the captured accumulation and returns
// the accumulation. On a closed adapter it returns what was captured so far.
func (r *StreamReader) drain() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		b, err := io.ReadAll(r.br)
		r.captured = append(r.captured, b...)
		if err != nil {
			return r.captured, err
		}
	}
	return r.captured, nil
}

// Close closes the adapter and its pipe end. Close is idempotent; further
// operations fail with ErrInvalidStream.
func (r *StreamReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.f.Close()
}

// StreamWriter is the parent-side adapter for a piped stdin. Close flushes
// and closes the pipe, signalling end-of-input to the child; it must be
// called before the child observes end-of-file unless stdin was supplied as
// a buffer.
type StreamWriter struct {
	mu     sync.Mutex
	f      *os.File
	bw     *bufio.Writer
	closed bool
}

func newStreamWriter(f *os.File, size int) *StreamWriter {
	return &StreamWriter{f: f, bw: bufio.NewWriterSize(f, size)}
}

// Write buffers p for the child's standard input.
func (w *StreamWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, fmt.Errorf("%w: stdin adapter is closed", ErrInvalidStream)
	}
	return w.bw.Write(p)
}

// Flush pushes buffered input through to the child.
func (w *StreamWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("%w: stdin adapter is closed", ErrInvalidStream)
	}
	return w.bw.Flush()
}

// abort closes the pipe end without flushing and without waiting for an
// in-flight write. A Write blocked on a full pipe holds the mutex, so abort
// must not take it first; closing the file makes the runtime poller
// interrupt the pending write, which returns os.ErrClosed and releases the
// mutex.
func (w *StreamWriter) abort() {
	w.f.Close()
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

// Close flushes and closes the pipe. Close is idempotent.
func (w *StreamWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	flushErr := w.bw.Flush()
	if err := w.f.Close(); err != nil {
		return err
	}
	return flushErr
}
