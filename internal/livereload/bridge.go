package livereload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"

	"github.com/hupe1980/devsync/internal/watch"
)

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	// Root is the build output directory.
	Root string

	// JSGlobs match scripts relative to Root, e.g. "static/js/*.js".
	JSGlobs []string

	// CSSGlobs match stylesheets relative to Root.
	CSSGlobs []string

	// Hub receives the reload messages.
	Hub Broadcaster

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out is the writer for user-facing status messages.
	Out io.Writer
}

// Bridge turns artifact changes into reload pushes.
type Bridge struct {
	opts BridgeOptions
	js   []glob.Glob
	css  []glob.Glob
}

// NewBridge compiles the glob sets.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Hub == nil {
		return nil, fmt.Errorf("bridge needs a hub")
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	js, err := compileGlobs(opts.JSGlobs)
	if err != nil {
		return nil, err
	}

	css, err := compileGlobs(opts.CSSGlobs)
	if err != nil {
		return nil, err
	}

	return &Bridge{opts: opts, js: js, css: css}, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))

	for _, p := range patterns {
		g, err := glob.Compile(filepath.ToSlash(p), '/')
		if err != nil {
			return nil, fmt.Errorf("compiling glob %q: %w", p, err)
		}

		out = append(out, g)
	}

	return out, nil
}

// Classify maps an artifact path to the message it should produce. Paths
// outside both glob sets yield false.
func (b *Bridge) Classify(path string) (Message, bool) {
	rel := path
	if filepath.IsAbs(path) {
		root, err := filepath.Abs(b.opts.Root)
		if err != nil {
			return Message{}, false
		}

		if rel, err = filepath.Rel(root, path); err != nil {
			return Message{}, false
		}
	}

	rel = filepath.ToSlash(rel)

	if matchAny(b.js, rel) {
		return Message{Type: TypeReload, Path: rel}, true
	}

	if matchAny(b.css, rel) {
		return Message{Type: TypeCSS, Path: rel}, true
	}

	return Message{}, false
}

func matchAny(globs []glob.Glob, s string) bool {
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}

	return false
}

// Handle reacts to one output event. Only written or created artifacts
// count as changes.
func (b *Bridge) Handle(ev watch.Event) {
	if ev.Kind != watch.Change && ev.Kind != watch.Add {
		return
	}

	msg, ok := b.Classify(ev.Path)
	if !ok {
		return
	}

	switch msg.Type {
	case TypeCSS:
		fmt.Fprintln(b.opts.Out, "Reloading css...")
	default:
		fmt.Fprintln(b.opts.Out, "Reloading js...")
	}

	n := b.opts.Hub.Broadcast(msg)

	b.opts.Logger.Debug("reload pushed",
		slog.String("type", msg.Type),
		slog.String("path", msg.Path),
		slog.Int("clients", n),
	)
}

// Watcher creates the output watcher. Root is created when missing so the
// bridge can start before the first build has written anything, and it is
// followed through deletion so a build that wipes it keeps pushing reloads.
func (b *Bridge) Watcher() (*watch.Watcher, error) {
	if err := os.MkdirAll(b.opts.Root, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	return watch.New(watch.Options{
		Root:       b.opts.Root,
		FollowRoot: true,
		Logger:     b.opts.Logger,
		Out:        b.opts.Out,
	})
}

// Run watches the output directory until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	w, err := b.Watcher()
	if err != nil {
		return err
	}

	return w.Run(ctx, b.Handle)
}
