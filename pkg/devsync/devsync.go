// Package devsync provides a public Go API for bundling browser sources and
// running a live-reload dev session, allowing programmatic use without the
// CLI.
//
// One-shot build:
//
//	res, err := devsync.Build(ctx, "./src/index.js",
//	    devsync.WithMinify(),
//	    devsync.WithSourcemap(),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, o := range res.Outputs {
//	    fmt.Println(o.Path, o.Size)
//	}
//
// Dev session until ctx is cancelled:
//
//	err := devsync.Dev(ctx,
//	    devsync.WithSrcDir("./src"),
//	    devsync.WithCommand("bin/build.sh"),
//	    devsync.WithAddr("localhost:3000"),
//	)
package devsync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/hupe1980/devsync/internal/bundle"
	"github.com/hupe1980/devsync/internal/config"
	orchestrator "github.com/hupe1980/devsync/internal/devsync"
	"github.com/hupe1980/devsync/internal/logging"
)

const stopTimeout = 5 * time.Second

// Result describes the artifacts of one build.
type Result = bundle.Result

// Output is a single written artifact.
type Output = bundle.Output

// BuildError carries the compiler diagnostics of a failed build.
type BuildError = bundle.BuildError

// Option configures Build, Watch and Dev. Options that do not apply to a
// call are ignored.
type Option func(*options)

type options struct {
	// Bundling.
	outDir    string
	doodle    string
	sourcemap bool
	minify    bool
	elm       bool
	metafile  string

	// Dev session.
	project config.Project

	logger *slog.Logger
	out    io.Writer
}

func newOptions(opts []Option) *options {
	o := &options{
		project: config.DefaultProject(),
		logger:  logging.Discard(),
		out:     io.Discard,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// --- Bundling ---

// WithOutDir sets the output directory, overriding the build dir layout.
func WithOutDir(dir string) Option { return func(o *options) { o.outDir = dir } }

// WithDoodle writes the bundle to <build-dir>/<name> instead of
// <build-dir>/static/js.
func WithDoodle(name string) Option { return func(o *options) { o.doodle = name } }

// WithSourcemap emits linked source maps.
func WithSourcemap() Option { return func(o *options) { o.sourcemap = true } }

// WithMinify minifies the bundle.
func WithMinify() Option { return func(o *options) { o.minify = true } }

// WithElm compiles imported .elm modules with elm make.
func WithElm() Option { return func(o *options) { o.elm = true } }

// WithMetafile writes esbuild's metafile JSON to path.
func WithMetafile(path string) Option { return func(o *options) { o.metafile = path } }

// --- Layout ---

// WithBuildDir sets the build output root (default: ./build).
func WithBuildDir(dir string) Option { return func(o *options) { o.project.BuildDir = dir } }

// WithSrcDir sets the watched source directory (default: ./src).
func WithSrcDir(dir string) Option { return func(o *options) { o.project.Src = dir } }

// --- Dev session ---

// WithCommand sets the rebuild command (default: bin/build.sh).
func WithCommand(command string) Option { return func(o *options) { o.project.Command = command } }

// WithAddr sets the dev server listen address (default: localhost:3000).
func WithAddr(addr string) Option { return func(o *options) { o.project.Addr = addr } }

// WithOpenBrowser opens the system browser once the server is up.
func WithOpenBrowser() Option { return func(o *options) { o.project.Open = true } }

// WithDebounce coalesces bursts of source events.
func WithDebounce(d time.Duration) Option { return func(o *options) { o.project.Debounce = d } }

// WithReloadGlobs replaces the script and stylesheet globs, relative to the
// build directory, that trigger reloads.
func WithReloadGlobs(js, css []string) Option {
	return func(o *options) {
		o.project.JSGlobs = js
		o.project.CSSGlobs = css
	}
}

// --- Output ---

// WithLogger sets the structured logger. Logs are discarded by default.
func WithLogger(logger *slog.Logger) Option { return func(o *options) { o.logger = logger } }

// WithOutput receives the tagged status lines a CLI user would see.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = logging.NewPrefixWriter(w, logging.Tag, false) }
}

func (o *options) bundleOptions(entry string, watch bool) bundle.Options {
	outDir := o.outDir
	if outDir == "" {
		outDir = bundle.OutDirFor(o.project.BuildDir, o.doodle)
	}

	return bundle.Options{
		EntryPoints:  []string{entry},
		OutDir:       outDir,
		Watch:        watch,
		Sourcemap:    o.sourcemap,
		Minify:       o.minify,
		Elm:          o.elm,
		MetafilePath: o.metafile,
		Logger:       o.logger,
	}
}

// Build bundles entry once and writes the artifacts. Compile errors are
// returned as *BuildError.
func Build(ctx context.Context, entry string, opts ...Option) (*Result, error) {
	if entry == "" {
		return nil, errors.New("entry point must not be empty")
	}

	return bundle.Build(ctx, newOptions(opts).bundleOptions(entry, false))
}

// Watch bundles entry and rebuilds whenever an imported file changes until
// ctx is cancelled. Every build outcome is passed to onBuild.
func Watch(ctx context.Context, entry string, onBuild func(*Result, error), opts ...Option) error {
	if entry == "" {
		return errors.New("entry point must not be empty")
	}

	return bundle.Watch(ctx, newOptions(opts).bundleOptions(entry, true), onBuild)
}

// Dev runs a dev session until ctx is cancelled: the build command runs on
// every source change and the build directory is served with live reload.
func Dev(ctx context.Context, opts ...Option) error {
	o := newOptions(opts)

	if err := o.project.Validate(); err != nil {
		return err
	}

	session := orchestrator.New(orchestrator.Options{
		Src:      o.project.Src,
		BuildDir: o.project.BuildDir,
		Command:  o.project.Command,
		JSGlobs:  o.project.JSGlobs,
		CSSGlobs: o.project.CSSGlobs,
		Addr:     o.project.Addr,
		Open:     o.project.Open,
		Debounce: o.project.Debounce,
		Logger:   o.logger,
		Out:      o.out,
	})

	if err := session.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()

	return session.Stop(stopCtx)
}
