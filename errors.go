package subproc

import "errors"

// Error taxonomy. Every failure returned by this module wraps one of these
// sentinels so callers can classify with errors.Is, while the wrapped
// message identifies the stream or operation that failed.
var (
	// ErrNotRunning is returned by lifecycle operations that require a
	// started (or still-running) process.
	ErrNotRunning = errors.New("subproc: process is not running")
	// ErrAlreadyRunning is returned when a single-use configuration is run
	// a second time.
	ErrAlreadyRunning = errors.New("subproc: process has already been run")
	// ErrInvalidStream is returned for operations on a stream that was not
	// configured as a pipe, or on a closed adapter.
	ErrInvalidStream = errors.New("subproc: invalid stream")
	// ErrTimeout is returned when a bounded wait elapses before the process
	// exits. The process keeps running and the wait may be retried.
	ErrTimeout = errors.New("subproc: timeout waiting for process")
	// ErrSpawnFailed is returned when the OS refuses to create the process.
	ErrSpawnFailed = errors.New("subproc: failed to spawn process")
	// ErrConfiguration is returned for illegal stream combinations or an
	// empty command, before any OS resource is allocated.
	ErrConfiguration = errors.New("subproc: invalid configuration")
)
