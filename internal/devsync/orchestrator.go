// Package devsync wires the source watcher, the rebuild action, the
// live-reload bridge and the dev server into one lifecycle.
//
//	Idle -> Starting -> Watching -> Stopped
//
// While Watching, source events trigger rebuilds and artifact changes in
// the build directory trigger reload pushes. The two loops are independent.
package devsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hupe1980/devsync/internal/devserver"
	"github.com/hupe1980/devsync/internal/livereload"
	"github.com/hupe1980/devsync/internal/rebuild"
	"github.com/hupe1980/devsync/internal/watch"
)

const shutdownTimeout = 5 * time.Second

// State is the lifecycle phase of an Orchestrator.
type State int32

// Lifecycle states.
const (
	Idle State = iota
	Starting
	Watching
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Watching:
		return "watching"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options configures an Orchestrator.
type Options struct {
	// Src is the source directory watched for rebuilds.
	Src string

	// BuildDir is the output directory that is served and watched for
	// reloads.
	BuildDir string

	// Command is the shell command that rebuilds the project.
	Command string

	// Dir is the working directory of Command.
	Dir string

	// Timeout bounds one rebuild. Zero means no timeout.
	Timeout time.Duration

	// JSGlobs and CSSGlobs select artifacts relative to BuildDir.
	JSGlobs  []string
	CSSGlobs []string

	// Addr is the dev server listen address.
	Addr string

	// Open launches the browser once the server listens.
	Open bool

	// Debounce coalesces bursts of source events. Zero disables it.
	Debounce time.Duration

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out is the writer for user-facing status messages.
	Out io.Writer
}

// Orchestrator owns every long-running part of a dev session.
type Orchestrator struct {
	opts  Options
	state atomic.Int32

	mu        sync.Mutex
	rebuilder *rebuild.Rebuilder
	hub       *livereload.Hub
	server    *devserver.Server
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	stopOnce sync.Once
	stopErr  error
}

// New creates an idle Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	o := &Orchestrator{opts: opts}
	o.rebuilder = rebuild.New(rebuild.Options{
		Command: opts.Command,
		Dir:     opts.Dir,
		Timeout: opts.Timeout,
		Logger:  opts.Logger,
		Out:     opts.Out,
	})

	return o
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// URL returns the dev server address once started.
func (o *Orchestrator) URL() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.server == nil {
		return ""
	}

	return o.server.URL()
}

// Rebuilds reports how many event-triggered rebuilds have completed. The
// initial build is not counted.
func (o *Orchestrator) Rebuilds() int {
	return o.rebuilder.Runs()
}

// Start brings the session up: the dev server listens, the initial build
// runs to completion, then both watchers start. A failing build command is
// logged and does not prevent the session from starting.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.state.CompareAndSwap(int32(Idle), int32(Starting)) {
		return fmt.Errorf("cannot start orchestrator in state %s", o.State())
	}

	if err := o.start(ctx); err != nil {
		_ = o.Stop(context.WithoutCancel(ctx))
		return err
	}

	o.state.Store(int32(Watching))
	o.opts.Logger.Info("watching for changes",
		slog.String("src", o.opts.Src),
		slog.String("buildDir", o.opts.BuildDir),
	)

	return nil
}

func (o *Orchestrator) start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.hub = livereload.NewHub(o.opts.Logger)

	bridge, err := livereload.NewBridge(livereload.BridgeOptions{
		Root:     o.opts.BuildDir,
		JSGlobs:  o.opts.JSGlobs,
		CSSGlobs: o.opts.CSSGlobs,
		Hub:      o.hub,
		Logger:   o.opts.Logger,
		Out:      o.opts.Out,
	})
	if err != nil {
		return err
	}

	o.server = devserver.New(devserver.Options{
		Dir:    o.opts.BuildDir,
		Addr:   o.opts.Addr,
		Open:   o.opts.Open,
		Hub:    o.hub,
		Logger: o.opts.Logger,
		Out:    o.opts.Out,
	})

	if err := o.server.Start(ctx); err != nil {
		return err
	}

	if _, err := o.rebuilder.Run(runCtx); err != nil {
		o.opts.Logger.Warn("initial build failed", slog.String("error", err.Error()))
	}

	// Started after the initial build so its writes are not pushed as
	// reloads. Creates BuildDir when the build did not.
	outWatcher, err := bridge.Watcher()
	if err != nil {
		return err
	}

	srcWatcher, err := watch.New(watch.Options{
		Root:     o.opts.Src,
		Debounce: o.opts.Debounce,
		Logger:   o.opts.Logger,
		Out:      o.opts.Out,
	})
	if err != nil {
		_ = outWatcher.Close()
		return fmt.Errorf("watching sources: %w", err)
	}

	o.goRun(runCtx, outWatcher, bridge.Handle)
	o.goRun(runCtx, srcWatcher, o.sourceHandler(runCtx, srcWatcher.Root()))

	return nil
}

func (o *Orchestrator) goRun(ctx context.Context, w *watch.Watcher, h watch.Handler) {
	o.wg.Add(1)

	go func() {
		defer o.wg.Done()

		if err := w.Run(ctx, h); err != nil {
			o.opts.Logger.Error("watcher stopped", slog.String("root", w.Root()), slog.String("error", err.Error()))
		}
	}()
}

// sourceHandler prints each source event and schedules a rebuild.
func (o *Orchestrator) sourceHandler(ctx context.Context, root string) watch.Handler {
	return func(ev watch.Event) {
		path := ev.Path
		if rel, err := filepath.Rel(root, ev.Path); err == nil {
			path = filepath.ToSlash(rel)
		}

		fmt.Fprintf(o.opts.Out, "%s %s\n", ev.Kind, path)
		o.rebuilder.Trigger(ctx, ev.String())
	}
}

// Stop tears the session down: watchers stop, in-flight rebuilds finish,
// browsers are disconnected and the server shuts down. Stop is idempotent
// and may be called in any state.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.stopOnce.Do(func() {
		o.stopErr = o.stop(ctx)
		o.state.Store(int32(Stopped))
	})

	return o.stopErr
}

func (o *Orchestrator) stop(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}

	o.wg.Wait()
	o.rebuilder.Wait()

	if o.hub != nil {
		o.hub.Close()
	}

	var errs []error

	if o.server != nil {
		if err := o.server.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Run starts the session and blocks until ctx is cancelled or SIGINT /
// SIGTERM arrives, then stops it.
func (o *Orchestrator) Run(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := o.Start(sigCtx); err != nil {
		return err
	}

	<-sigCtx.Done()

	fmt.Fprintln(o.opts.Out, "Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	return o.Stop(shutdownCtx)
}
