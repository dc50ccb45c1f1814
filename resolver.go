package subproc

import (
	"fmt"
	"os"
)

// wiring is a resolved stream plan for one spawn: the child-side endpoints,
// the parent-side adapters, the buffer feed for Data stdin, and the pipe
// ends the parent must close once the child owns them.
type wiring struct {
	stdinChild  *os.File
	stdoutChild *os.File
	stderrChild *os.File

	stdin  *StreamWriter
	stdout *StreamReader
	stderr *StreamReader

	// feeder is the unexposed write end for buffer-supplied stdin.
	feeder *StreamWriter
	feed   []byte

	closeAfterSpawn []*os.File
}

// validateStreams rejects illegal combinations before any pipe is allocated,
// so a configuration error never leaves partial state behind.
func validateStreams(cfg *Config) error {
	if cfg.Stdin.mode == modeMergeStdout {
		return fmt.Errorf("%w: stdin cannot merge with stdout", ErrConfiguration)
	}
	if cfg.Stdout.mode == modeMergeStdout {
		return fmt.Errorf("%w: stdout cannot merge with itself", ErrConfiguration)
	}
	if cfg.Stdout.mode == modeData || cfg.Stderr.mode == modeData {
		return fmt.Errorf("%w: only stdin can be fed from a buffer", ErrConfiguration)
	}
	if cfg.Stderr.mode == modeMergeStdout && cfg.Stdout.mode == modeInherit {
		return fmt.Errorf("%w: stderr cannot merge with an inherited stdout", ErrConfiguration)
	}
	for _, s := range []struct {
		name string
		spec StreamSpec
	}{{"stdin", cfg.Stdin}, {"stdout", cfg.Stdout}, {"stderr", cfg.Stderr}} {
		if s.spec.mode == modeFile && s.spec.file == nil {
			return fmt.Errorf("%w: %s redirected to a nil file", ErrConfiguration, s.name)
		}
	}
	return nil
}

// resolveStreams turns the three stream settings into a wiring plan. On
// error every pipe allocated so far is closed again; nothing escapes.
func resolveStreams(cfg *Config) (*wiring, error) {
	if err := validateStreams(cfg); err != nil {
		return nil, err
	}
	w := &wiring{}
	size := cfg.bufferSize()
	ok := false
	defer func() {
		if !ok {
			w.closeAll()
		}
	}()

	switch mode := cfg.Stdin.mode; mode {
	case modeDefault, modeInherit:
		w.stdinChild = os.Stdin
	case modeDiscard:
		// nil endpoint, the spawner wires the null device
	case modeFile:
		w.stdinChild = cfg.Stdin.file
	case modePipe, modeData:
		pr, pw, err := os.Pipe()
		if err != nil {
			return nil, err
		}
		w.stdinChild = pr
		w.closeAfterSpawn = append(w.closeAfterSpawn, pr)
		writer := newStreamWriter(pw, size)
		if mode == modeData {
			w.feeder = writer
			w.feed = cfg.Stdin.data
		} else {
			w.stdin = writer
		}
	}

	switch cfg.Stdout.mode {
	case modeInherit:
		w.stdoutChild = os.Stdout
	case modeDiscard:
	case modeFile:
		w.stdoutChild = cfg.Stdout.file
	case modeDefault, modePipe:
		pr, pw, err := os.Pipe()
		if err != nil {
			return nil, err
		}
		w.stdoutChild = pw
		w.closeAfterSpawn = append(w.closeAfterSpawn, pw)
		w.stdout = newStreamReader("stdout", pr, size)
	}

	switch cfg.Stderr.mode {
	case modeInherit:
		w.stderrChild = os.Stderr
	case modeDiscard:
	case modeFile:
		w.stderrChild = cfg.Stderr.file
	case modeMergeStdout:
		// Share stdout's resolved child end. When that end is a pipe it is
		// already queued for closing, so no second entry.
		w.stderrChild = w.stdoutChild
	case modeDefault, modePipe:
		pr, pw, err := os.Pipe()
		if err != nil {
			return nil, err
		}
		w.stderrChild = pw
		w.closeAfterSpawn = append(w.closeAfterSpawn, pw)
		w.stderr = newStreamReader("stderr", pr, size)
	}

	ok = true
	return w, nil
}

// manifest reports which streams yield a caller-facing adapter.
func (w *wiring) manifest() (stdin, stdout, stderr bool) {
	return w.stdin != nil, w.stdout != nil, w.stderr != nil
}

// closeAll releases everything the resolver allocated. Used when the spawn
// itself fails, so a failed run leaves no open descriptors.
func (w *wiring) closeAll() {
	for _, f := range w.closeAfterSpawn {
		f.Close()
	}
	w.closeAfterSpawn = nil
	if w.stdin != nil {
		w.stdin.Close()
	}
	if w.feeder != nil {
		w.feeder.Close()
	}
	if w.stdout != nil {
		w.stdout.Close()
	}
	if w.stderr != nil {
		w.stderr.Close()
	}
}

// releaseChildEnds closes the child-side pipe ends after a successful spawn;
// the child holds its own copies from here on.
func (w *wiring) releaseChildEnds() {
	for _, f := range w.closeAfterSpawn {
		f.Close()
	}
	w.closeAfterSpawn = nil
}
