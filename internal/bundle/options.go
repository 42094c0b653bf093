package bundle

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
)

// Options is the build configuration of a single invocation. It is built
// once from flags/config and never mutated afterwards.
type Options struct {
	// EntryPoints are the files to bundle. Each must exist.
	EntryPoints []string

	// OutDir receives the artifacts. It is created when absent.
	OutDir string

	// WorkDir is the directory paths are resolved against. Defaults to the
	// process working directory.
	WorkDir string

	// Watch keeps the bundler running and rebuilds on dependency change.
	Watch bool

	// Sourcemap emits a linked .map file next to every script.
	Sourcemap bool

	// Minify minifies whitespace, identifiers and syntax.
	Minify bool

	// Elm enables ElmPlugin for *.elm imports.
	Elm bool

	// ElmOptions configures the Elm plugin when Elm is set.
	ElmOptions ElmOptions

	// MetafilePath, when set, receives esbuild's metafile JSON.
	MetafilePath string

	// Plugins are appended after the built-in ones.
	Plugins []api.Plugin

	// Logger receives build diagnostics.
	Logger *slog.Logger
}

// OutDirFor returns the output directory under root. Without a doodle the
// default script directory is used; a doodle selects root/<doodle>.
func OutDirFor(root, doodle string) string {
	if doodle == "" {
		return filepath.Join(root, "static", "js")
	}

	return filepath.Join(root, doodle)
}

// validate checks the options and resolves WorkDir.
func (o *Options) validate() error {
	if len(o.EntryPoints) == 0 {
		return errors.New("no entry points given")
	}

	if o.OutDir == "" {
		return errors.New("output directory must not be empty")
	}

	if o.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}

		o.WorkDir = wd
	}

	abs, err := filepath.Abs(o.WorkDir)
	if err != nil {
		return fmt.Errorf("resolving working directory %q: %w", o.WorkDir, err)
	}

	o.WorkDir = abs

	for _, ep := range o.EntryPoints {
		if _, err := os.Stat(o.resolve(ep)); err != nil {
			return fmt.Errorf("entry point %q: %w", ep, err)
		}
	}

	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	return nil
}

// resolve makes p absolute relative to WorkDir.
func (o *Options) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(o.WorkDir, p)
}

// esbuildOptions translates Options into esbuild's build options.
func (o *Options) esbuildOptions() api.BuildOptions {
	var plugins []api.Plugin
	if o.Elm {
		eo := o.ElmOptions
		eo.Optimize = eo.Optimize || o.Minify
		plugins = append(plugins, ElmPlugin(eo))
	}

	plugins = append(plugins, o.Plugins...)

	return api.BuildOptions{
		EntryPoints:       o.EntryPoints,
		AbsWorkingDir:     o.WorkDir,
		Outdir:            o.resolve(o.OutDir),
		Bundle:            true,
		Write:             true,
		Platform:          api.PlatformBrowser,
		Sourcemap:         cond(o.Sourcemap, api.SourceMapLinked, api.SourceMapNone),
		MinifyWhitespace:  o.Minify,
		MinifyIdentifiers: o.Minify,
		MinifySyntax:      o.Minify,
		Metafile:          true,
		LogLevel:          api.LogLevelSilent,
		Plugins:           plugins,
	}
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}

	return falseVal
}
