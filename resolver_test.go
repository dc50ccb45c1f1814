package subproc

import (
	"errors"
	"os"
	"testing"
)

func TestValidateStreamsRejects(t *testing.T) {
	for name, cfg := range map[string]Config{
		"stdin merge":          {Stdin: MergeStdout},
		"stdout merge":         {Stdout: MergeStdout},
		"stdout data":          {Stdout: Data([]byte("x"))},
		"stderr data":          {Stderr: Data([]byte("x"))},
		"merge with inherited": {Stdout: Inherit, Stderr: MergeStdout},
		"nil file":             {Stdout: UseFile(nil)},
	} {
		if err := validateStreams(&cfg); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("%s: expected ErrConfiguration, got %v", name, err)
		}
	}
}

func TestResolveDefaults(t *testing.T) {
	cfg := Config{}
	w, err := resolveStreams(&cfg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer w.closeAll()
	in, out, errs := w.manifest()
	if in {
		t.Fatal("default stdin must not expose an adapter")
	}
	if !out || !errs {
		t.Fatal("default stdout and stderr must be piped")
	}
	if w.stdinChild != os.Stdin {
		t.Fatal("default stdin must be inherited")
	}
	if w.stdoutChild == nil || w.stderrChild == nil {
		t.Fatal("piped streams need child endpoints")
	}
	if len(w.closeAfterSpawn) != 2 {
		t.Fatalf("closeAfterSpawn = %d entries, want 2", len(w.closeAfterSpawn))
	}
}

func TestResolveDiscard(t *testing.T) {
	cfg := Config{Stdin: Discard, Stdout: Discard, Stderr: Discard}
	w, err := resolveStreams(&cfg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer w.closeAll()
	if w.stdinChild != nil || w.stdoutChild != nil || w.stderrChild != nil {
		t.Fatal("discarded streams resolve to nil endpoints")
	}
	if len(w.closeAfterSpawn) != 0 {
		t.Fatal("nothing to close for discarded streams")
	}
}

func TestResolveMergeSharesEndpoint(t *testing.T) {
	cfg := Config{Stderr: MergeStdout}
	w, err := resolveStreams(&cfg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer w.closeAll()
	if w.stderrChild != w.stdoutChild {
		t.Fatal("merged stderr must share stdout's endpoint")
	}
	if w.stderr != nil {
		t.Fatal("merged stderr must not expose its own adapter")
	}
	// The shared pipe end appears once, so releaseChildEnds closes it once.
	if len(w.closeAfterSpawn) != 1 {
		t.Fatalf("closeAfterSpawn = %d entries, want 1", len(w.closeAfterSpawn))
	}
}

func TestResolveDataFeeder(t *testing.T) {
	cfg := Config{Stdin: Data([]byte("abc")), Stdout: Discard, Stderr: Discard}
	w, err := resolveStreams(&cfg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer w.closeAll()
	if w.feeder == nil || string(w.feed) != "abc" {
		t.Fatal("buffer stdin must produce a feed plan")
	}
	if w.stdin != nil {
		t.Fatal("buffer stdin must not expose a caller-facing adapter")
	}
	if w.stdinChild == nil {
		t.Fatal("buffer stdin still needs a child pipe end")
	}
}

func TestResolveFileRedirect(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	defer f.Close()
	cfg := Config{Stdout: UseFile(f), Stderr: MergeStdout}
	w, err := resolveStreams(&cfg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer w.closeAll()
	if w.stdoutChild != f || w.stderrChild != f {
		t.Fatal("file redirect must hand the file straight to the child")
	}
	if len(w.closeAfterSpawn) != 0 {
		t.Fatal("caller-owned files are never closed by the resolver")
	}
}
