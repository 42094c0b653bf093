// Package rebuild runs the project's build command as a subprocess and
// guards it so that overlapping triggers coalesce into a single follow-up
// run instead of racing each other.
package rebuild

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

const waitDelay = 500 * time.Millisecond

// Options configures a Rebuilder.
type Options struct {
	// Command is the shell command to run, e.g. "bin/build.sh".
	Command string

	// Dir is the working directory of the command.
	Dir string

	// Env is appended to the process environment.
	Env []string

	// Timeout bounds a single run. Zero means no timeout.
	Timeout time.Duration

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out is the writer for user-facing status messages.
	Out io.Writer
}

// Result is the captured output of one run.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Rebuilder executes the build command. Run executes synchronously;
// Trigger executes asynchronously behind a single-flight guard.
type Rebuilder struct {
	opts Options

	mu       sync.Mutex
	inFlight bool
	pending  bool
	reason   string
	idle     *sync.Cond
	runs     int
}

// New creates a Rebuilder.
func New(opts Options) *Rebuilder {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	r := &Rebuilder{opts: opts}
	r.idle = sync.NewCond(&r.mu)

	return r
}

// Run executes the command once and waits for it. Stdout is printed on
// success, stderr whenever it is non-empty. A failing command returns an
// error together with the captured output.
func (r *Rebuilder) Run(ctx context.Context) (Result, error) {
	if strings.TrimSpace(r.opts.Command) == "" {
		return Result{}, errors.New("no build command configured")
	}

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)

		defer cancel()
	}

	name, args := shellCommand(r.opts.Command)

	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	cmd.Dir = r.opts.Dir
	cmd.Env = append(os.Environ(), r.opts.Env...)
	// Orphaned grandchildren may keep the output pipes open after a kill.
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	fmt.Fprintln(r.opts.Out, "Building app...")

	start := time.Now()
	err := cmd.Run()

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	if err != nil {
		r.opts.Logger.Error("build command failed",
			slog.String("command", r.opts.Command),
			slog.Int("exitCode", res.ExitCode),
			slog.String("error", err.Error()),
		)
		writeBlock(r.opts.Out, res.Stderr)

		return res, fmt.Errorf("running %q: %w", r.opts.Command, err)
	}

	r.opts.Logger.Debug("build command finished",
		slog.String("command", r.opts.Command),
		slog.Duration("duration", res.Duration),
	)
	writeBlock(r.opts.Out, res.Stdout)
	writeBlock(r.opts.Out, res.Stderr)

	return res, nil
}

// Trigger schedules a run. If no run is in flight one starts right away on
// a new goroutine. Triggers that arrive while a run is in flight collapse
// into one follow-up run that starts after the current one finishes.
// Failures are logged and never returned. Triggers on a cancelled ctx are
// dropped, so nothing runs once the owner has shut down.
func (r *Rebuilder) Trigger(ctx context.Context, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctx.Err() != nil {
		r.opts.Logger.Debug("rebuild dropped after shutdown", slog.String("trigger", reason))
		return
	}

	if r.inFlight {
		r.pending = true
		r.reason = reason

		return
	}

	r.inFlight = true

	go r.loop(ctx, reason)
}

// loop runs until no follow-up is pending.
func (r *Rebuilder) loop(ctx context.Context, reason string) {
	for {
		ran := false

		if ctx.Err() == nil {
			r.opts.Logger.Debug("rebuilding", slog.String("trigger", reason))

			_, _ = r.Run(ctx)
			ran = true
		}

		r.mu.Lock()

		if ran {
			r.runs++
		}

		if !r.pending || ctx.Err() != nil {
			r.inFlight = false
			r.pending = false
			r.idle.Broadcast()
			r.mu.Unlock()

			return
		}

		r.pending = false
		reason = r.reason
		r.mu.Unlock()
	}
}

// Wait blocks until no triggered run is in flight or pending.
func (r *Rebuilder) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.inFlight {
		r.idle.Wait()
	}
}

// Runs reports how many triggered runs have completed.
func (r *Rebuilder) Runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.runs
}

// shellCommand wraps command for the platform shell, mirroring how build
// scripts are usually invoked from package.json or a Makefile.
func shellCommand(command string) (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C", command}
	}

	return "sh", []string{"-c", command}
}

// writeBlock prints s without a trailing blank line; empty s prints nothing.
func writeBlock(w io.Writer, s string) {
	s = strings.TrimRight(s, "\r\n")
	if s == "" {
		return
	}

	fmt.Fprintln(w, s)
}
