package subproc

import (
	"fmt"
	"os"
	"slices"

	"github.com/google/shlex"
)

// DefaultBufferSize is the adapter buffer size and the default chunk size
// for streaming reads when Config.BufferSize is zero.
const DefaultBufferSize = 1 << 16

type streamMode int

const (
	modeDefault streamMode = iota
	modeInherit
	modePipe
	modeDiscard
	modeFile
	modeData
	modeMergeStdout
)

func (m streamMode) String() string {
	switch m {
	case modeDefault:
		return "default"
	case modeInherit:
		return "inherit"
	case modePipe:
		return "pipe"
	case modeDiscard:
		return "discard"
	case modeFile:
		return "file"
	case modeData:
		return "buffer"
	case modeMergeStdout:
		return "merge-stdout"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// StreamSpec selects how one of the three standard streams is wired. The
// zero value picks the per-stream default: stdin is inherited, stdout and
// stderr are piped.
type StreamSpec struct {
	mode streamMode
	file *os.File
	data []byte
}

var (
	// Inherit shares the parent's corresponding stream with the child.
	Inherit = StreamSpec{mode: modeInherit}
	// PipeStream connects the stream to a parent-side adapter.
	PipeStream = StreamSpec{mode: modePipe}
	// Discard wires the stream to the null device.
	Discard = StreamSpec{mode: modeDiscard}
	// MergeStdout interleaves stderr into stdout's destination. Only valid
	// for stderr, and only when stdout is piped, redirected to a file or
	// discarded.
	MergeStdout = StreamSpec{mode: modeMergeStdout}
)

// UseFile redirects the stream to an already-open file. The caller keeps
// ownership of the file, including its position and its closing.
func UseFile(f *os.File) StreamSpec {
	return StreamSpec{mode: modeFile, file: f}
}

// Data supplies the whole standard input as an in-memory buffer. Only valid
// for stdin. A background writer owned by the adapter layer feeds the bytes
// and closes the child's input; no stdin adapter is exposed.
func Data(b []byte) StreamSpec {
	return StreamSpec{mode: modeData, data: b}
}

// Config describes one process to spawn. A Config is consumed by a single
// run and cannot be re-run once started.
type Config struct {
	// Command is split with Split when Args is empty.
	Command string
	// Args is the argv to execute; Args[0] is the executable.
	Args []string
	// Dir is the working directory; empty inherits the parent's.
	Dir string
	// Env is merged over the inherited environment. With ReplaceEnv set it
	// replaces the environment entirely.
	Env        map[string]string
	ReplaceEnv bool

	Stdin  StreamSpec
	Stdout StreamSpec
	Stderr StreamSpec

	// BufferSize for stream adapters; 0 selects DefaultBufferSize.
	BufferSize int
}

// Split breaks a command line into arguments using shell-like quoting and
// escaping rules.
func Split(command string) ([]string, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return args, nil
}

// argv resolves the command to execute.
func (c *Config) argv() ([]string, error) {
	if len(c.Args) > 0 {
		return slices.Clone(c.Args), nil
	}
	if c.Command != "" {
		args, err := Split(c.Command)
		if err != nil {
			return nil, err
		}
		if len(args) > 0 {
			return args, nil
		}
	}
	return nil, fmt.Errorf("%w: no command given", ErrConfiguration)
}

// environ builds the child environment. Later entries win on duplicate
// keys, which os/exec guarantees.
func (c *Config) environ() []string {
	if len(c.Env) == 0 && !c.ReplaceEnv {
		return nil
	}
	var env []string
	if !c.ReplaceEnv {
		env = os.Environ()
	}
	for k, v := range c.Env {
		env = append(env, k+"="+v)
	}
	return env
}

func (c *Config) bufferSize() int {
	if c.BufferSize > 0 {
		return c.BufferSize
	}
	return DefaultBufferSize
}
