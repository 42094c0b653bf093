package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DotFiles matches any path with a segment starting with a dot.
var DotFiles = regexp.MustCompile(`(^|[/\\])\.`)

// EventKind classifies a filesystem change.
type EventKind string

// Event kinds delivered to handlers.
const (
	Add       EventKind = "add"
	AddDir    EventKind = "addDir"
	Change    EventKind = "change"
	Unlink    EventKind = "unlink"
	UnlinkDir EventKind = "unlinkDir"
)

// Event is a single change below the watched root.
type Event struct {
	Kind EventKind
	Path string
}

func (e Event) String() string {
	return string(e.Kind) + " " + e.Path
}

// Handler receives every relevant event.
type Handler func(Event)

// Options configures the watch behaviour.
type Options struct {
	// Root is the directory to watch recursively.
	Root string

	// Ignore drops paths (relative to Root, slash separated) it matches.
	// Nil selects DotFiles.
	Ignore *regexp.Regexp

	// Debounce is the quiet period before the handler fires. Zero hands
	// every event to the handler as it arrives.
	Debounce time.Duration

	// FollowRoot also watches the parent of Root so the tree is picked up
	// again after Root is deleted and recreated, as build tools do with
	// their output directory.
	FollowRoot bool

	// OnError receives watcher errors in addition to the log.
	OnError func(error)

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out is the writer for user-facing status messages.
	Out io.Writer
}

// DefaultOptions returns sensible default watch options.
func DefaultOptions() Options {
	return Options{
		Ignore: DotFiles,
		Logger: slog.Default(),
		Out:    os.Stderr,
	}
}

// Watcher delivers events for a directory tree. Create it with New, then
// call Run.
type Watcher struct {
	opts Options
	fsw  *fsnotify.Watcher
	dirs map[string]bool
}

// New starts watching opts.Root. The returned watcher holds OS resources
// until Run returns or Close is called.
func New(opts Options) (*Watcher, error) {
	if opts.Ignore == nil {
		opts.Ignore = DotFiles
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %q: %w", opts.Root, err)
	}

	opts.Root = root

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	w := &Watcher{opts: opts, fsw: fsw, dirs: make(map[string]bool)}

	if _, err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", opts.Root, err)
	}

	if parent := filepath.Dir(root); opts.FollowRoot && parent != root {
		if err := fsw.Add(parent); err != nil {
			opts.Logger.Warn("watching parent of root",
				slog.String("path", parent),
				slog.String("error", err.Error()),
			)
		}
	}

	return w, nil
}

// Run delivers events to handler until ctx is cancelled and then closes
// the watcher.
func (w *Watcher) Run(ctx context.Context, handler Handler) error {
	defer w.Close()

	deliver := handler
	if w.opts.Debounce > 0 {
		debouncer := NewDebouncer(w.opts.Debounce, handler)
		defer debouncer.Stop()

		deliver = debouncer.Trigger
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}

			for _, e := range w.translate(ev) {
				deliver(e)
			}

		case watchErr, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}

			w.opts.Logger.Error("watcher error",
				slog.String("root", w.opts.Root),
				slog.String("error", watchErr.Error()),
			)
			fmt.Fprintf(w.opts.Out, "watcher error: %v\n", watchErr)

			if w.opts.OnError != nil {
				w.opts.OnError(watchErr)
			}
		}
	}
}

// Close releases the underlying fsnotify watcher. It is safe to call more
// than once.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	if errors.Is(err, fsnotify.ErrClosed) {
		return nil
	}

	return err
}

// Root returns the absolute watched root.
func (w *Watcher) Root() string { return w.opts.Root }

// Run watches opts.Root and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options, handler Handler) error {
	w, err := New(opts)
	if err != nil {
		return err
	}

	return w.Run(ctx, handler)
}

// translate maps an fsnotify event to zero or more devsync events.
func (w *Watcher) translate(ev fsnotify.Event) []Event {
	if !isRelevant(ev) || !w.within(ev.Name) || w.ignored(ev.Name) {
		return nil
	}

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return nil
		}

		if !info.IsDir() {
			return []Event{{Kind: Add, Path: ev.Name}}
		}

		// Files may land in a new directory before it is watched.
		files, err := w.addRecursive(ev.Name)
		if err != nil {
			w.opts.Logger.Warn("watching new directory",
				slog.String("path", ev.Name),
				slog.String("error", err.Error()),
			)
		}

		out := []Event{{Kind: AddDir, Path: ev.Name}}
		for _, f := range files {
			out = append(out, Event{Kind: Add, Path: f})
		}

		return out

	case ev.Has(fsnotify.Write):
		return []Event{{Kind: Change, Path: ev.Name}}

	default: // Remove, Rename
		if w.dirs[ev.Name] {
			w.forget(ev.Name)
			return []Event{{Kind: UnlinkDir, Path: ev.Name}}
		}

		// The root is reported by its own watch and by the parent's.
		if ev.Name == w.opts.Root {
			return nil
		}

		return []Event{{Kind: Unlink, Path: ev.Name}}
	}
}

// within reports whether path is Root or below it. Siblings of Root show
// up when FollowRoot watches the parent.
func (w *Watcher) within(path string) bool {
	rel, err := filepath.Rel(w.opts.Root, path)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// forget drops dir and everything below it from the watched set.
func (w *Watcher) forget(dir string) {
	prefix := dir + string(filepath.Separator)

	for d := range w.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(w.dirs, d)
		}
	}
}

// ignored reports whether path matches the ignore pattern relative to root.
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.opts.Root, path)
	if err != nil || rel == "." {
		return false
	}

	return w.opts.Ignore.MatchString(filepath.ToSlash(rel))
}

// addRecursive walks root, adds all non-ignored directories to the watcher,
// and returns the files found below root.
func (w *Watcher) addRecursive(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if path != root && w.ignored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.IsDir() {
			if path != root {
				files = append(files, path)
			}

			return nil
		}

		if err := w.fsw.Add(path); err != nil {
			return err
		}

		w.dirs[path] = true

		return nil
	})

	return files, err
}

// isRelevant filters out attribute-only events and editor scratch files.
func isRelevant(event fsnotify.Event) bool {
	if event.Op == 0 {
		return false
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	name := filepath.Base(event.Name)

	if strings.HasSuffix(name, "~") || strings.HasSuffix(name, ".swp") ||
		strings.HasPrefix(name, "#") {
		return false
	}

	return true
}
