// Command subproc runs a child process with declarative stream wiring and a
// bounded lifetime, exiting with the child's exit code.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"pkt.systems/subproc"
	"pkt.systems/subproc/ctxproc"
)

var (
	flagConfig   string
	flagLogLevel string
	flagDir      string
	flagEnv      []string
	flagStdin    string
	flagStdout   string
	flagStderr   string
	flagTimeout  time.Duration
)

func main() {
	root := &cobra.Command{
		Use:           "subproc",
		Short:         "run child processes with explicit stream wiring",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to TOML configuration")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")

	run := &cobra.Command{
		Use:   "run [flags] -- command [args...]",
		Short: "spawn a command, wait for it and propagate its exit code",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCmd,
	}
	run.Flags().StringVar(&flagDir, "dir", "", "working directory for the child")
	run.Flags().StringArrayVar(&flagEnv, "env", nil, "KEY=VALUE to add to the child environment (repeatable)")
	run.Flags().StringVar(&flagStdin, "stdin", "inherit", "stdin wiring: inherit, discard, file:PATH or data:TEXT")
	run.Flags().StringVar(&flagStdout, "stdout", "inherit", "stdout wiring: inherit, discard or file:PATH")
	run.Flags().StringVar(&flagStderr, "stderr", "inherit", "stderr wiring: inherit, discard, file:PATH or merge")
	run.Flags().DurationVar(&flagTimeout, "timeout", 0, "terminate the child after this duration (0 means no limit)")
	root.AddCommand(run)

	if err := root.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, "subproc:", err)
		os.Exit(1)
	}
}

// exitError carries the child's exit code through cobra's error return.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit code %d", e.code) }

func runCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := loadConfig(flagConfig)
	if err != nil {
		return err
	}
	logger, err := newLogger(fileCfg.LogLevel)
	if err != nil {
		return err
	}

	cfg := subproc.Config{Args: args, Dir: flagDir, Env: map[string]string{}}
	if cfg.Dir == "" {
		cfg.Dir = fileCfg.Dir
	}
	for k, v := range fileCfg.Env {
		cfg.Env[k] = v
	}
	for _, kv := range flagEnv {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid --env entry %q, want KEY=VALUE", kv)
		}
		cfg.Env[k] = v
	}
	var openFiles []*os.File
	defer func() {
		for _, f := range openFiles {
			f.Close()
		}
	}()
	if cfg.Stdin, err = parseStream("stdin", flagStdin, &openFiles); err != nil {
		return err
	}
	if cfg.Stdout, err = parseStream("stdout", flagStdout, &openFiles); err != nil {
		return err
	}
	if cfg.Stderr, err = parseStream("stderr", flagStderr, &openFiles); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()
	for _, pattern := range fileCfg.Allow {
		if ctx, err = subproc.WithRuleCatchError(ctx, pattern, subproc.ALLOW); err != nil {
			return err
		}
	}
	for _, pattern := range fileCfg.Deny {
		if ctx, err = subproc.WithRuleCatchError(ctx, pattern, subproc.DENY); err != nil {
			return err
		}
	}

	proc := ctxproc.New(cfg)
	if err := proc.Run(ctx); err != nil {
		return err
	}
	defer proc.Close()
	pid, _ := proc.PID()
	logger.Debug("spawned", "pid", pid, "args", args)

	var code int
	if flagTimeout > 0 {
		code, err = proc.JoinTimeout(ctx, flagTimeout)
		if errors.Is(err, subproc.ErrTimeout) {
			logger.Warn("timeout reached, terminating child", "pid", pid, "timeout", flagTimeout)
			proc.Close()
			code, _ = proc.Poll()
			return &exitError{code: exitCodeFor(code)}
		}
	} else {
		code, err = proc.Join(ctx)
	}
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("interrupted, terminating child", "pid", pid)
			proc.Close()
			code, _ = proc.Poll()
			return &exitError{code: exitCodeFor(code)}
		}
		return err
	}
	logger.Debug("exited", "pid", pid, "exit_code", code)
	if code != 0 {
		return &exitError{code: exitCodeFor(code)}
	}
	return nil
}

// exitCodeFor maps the library's signal convention (-N) onto the shell's
// 128+N convention for the command's own exit status.
func exitCodeFor(code int) int {
	if code < 0 {
		return 128 - code
	}
	return code
}

func parseStream(name, value string, openFiles *[]*os.File) (subproc.StreamSpec, error) {
	switch {
	case value == "inherit":
		return subproc.Inherit, nil
	case value == "discard":
		return subproc.Discard, nil
	case value == "merge":
		if name != "stderr" {
			return subproc.StreamSpec{}, fmt.Errorf("merge is only valid for stderr, not %s", name)
		}
		return subproc.MergeStdout, nil
	case strings.HasPrefix(value, "data:"):
		if name != "stdin" {
			return subproc.StreamSpec{}, fmt.Errorf("data: is only valid for stdin, not %s", name)
		}
		return subproc.Data([]byte(strings.TrimPrefix(value, "data:"))), nil
	case strings.HasPrefix(value, "file:"):
		path := strings.TrimPrefix(value, "file:")
		var f *os.File
		var err error
		if name == "stdin" {
			f, err = os.Open(path)
		} else {
			f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		}
		if err != nil {
			return subproc.StreamSpec{}, fmt.Errorf("open %s for %s: %w", path, name, err)
		}
		*openFiles = append(*openFiles, f)
		return subproc.UseFile(f), nil
	default:
		return subproc.StreamSpec{}, fmt.Errorf("invalid %s wiring %q", name, value)
	}
}

func newLogger(level string) (*slog.Logger, error) {
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	var l slog.Level
	switch strings.ToLower(level) {
	case "", "info":
		l = slog.LevelInfo
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	return slog.New(h), nil
}
