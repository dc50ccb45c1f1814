package subproc

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestSplit(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want []string
	}{
		{"ls", []string{"ls"}},
		{"ls -l /tmp", []string{"ls", "-l", "/tmp"}},
		{`echo "hello world"`, []string{"echo", "hello world"}},
		{`grep 'a b' file`, []string{"grep", "a b", "file"}},
		{`printf %s\ %s a b`, []string{"printf", "%s %s", "a", "b"}},
	} {
		got, err := Split(tc.in)
		if err != nil {
			t.Fatalf("Split(%q): %v", tc.in, err)
		}
		if !slices.Equal(got, tc.want) {
			t.Fatalf("Split(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSplitUnterminatedQuote(t *testing.T) {
	_, err := Split(`echo "unterminated`)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestArgvPrefersArgs(t *testing.T) {
	cfg := Config{Command: "ignored entirely", Args: []string{"echo", "hi"}}
	got, err := cfg.argv()
	if err != nil {
		t.Fatalf("argv: %v", err)
	}
	if !slices.Equal(got, []string{"echo", "hi"}) {
		t.Fatalf("argv = %q", got)
	}
	got[0] = "mutated"
	if cfg.Args[0] != "echo" {
		t.Fatal("argv must return a copy")
	}
}

func TestArgvEmpty(t *testing.T) {
	for _, cfg := range []Config{{}, {Command: "   "}} {
		if _, err := cfg.argv(); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("expected ErrConfiguration for %+v, got %v", cfg, err)
		}
	}
}

func TestEnvironMerge(t *testing.T) {
	t.Setenv("SUBPROC_TEST_ENV", "inherited")
	cfg := Config{Env: map[string]string{"EXTRA": "1"}}
	env := cfg.environ()
	if !slices.Contains(env, "EXTRA=1") {
		t.Fatal("missing merged entry")
	}
	found := false
	for _, kv := range env {
		if strings.HasPrefix(kv, "SUBPROC_TEST_ENV=") {
			found = true
		}
	}
	if !found {
		t.Fatal("merged environment must include inherited entries")
	}
}

func TestEnvironReplace(t *testing.T) {
	cfg := Config{Env: map[string]string{"ONLY": "1"}, ReplaceEnv: true}
	env := cfg.environ()
	if len(env) != 1 || env[0] != "ONLY=1" {
		t.Fatalf("environ = %q", env)
	}
}

func TestEnvironInheritedByDefault(t *testing.T) {
	cfg := Config{}
	if env := cfg.environ(); env != nil {
		t.Fatalf("expected nil environ for default config, got %d entries", len(env))
	}
}

func TestBufferSizeDefault(t *testing.T) {
	cfg := Config{}
	if got := cfg.bufferSize(); got != DefaultBufferSize {
		t.Fatalf("bufferSize = %d, want %d", got, DefaultBufferSize)
	}
	cfg.BufferSize = 512
	if got := cfg.bufferSize(); got != 512 {
		t.Fatalf("bufferSize = %d, want 512", got)
	}
}
