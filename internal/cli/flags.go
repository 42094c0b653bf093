package cli

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/devsync/internal/config"
)

// Flags named after config keys are bound by config.Load, so their values
// are read back from the loaded Config rather than from local variables.

// registerLayoutFlags adds the build directory flag shared by build and dev.
func registerLayoutFlags(cmd *cobra.Command) {
	d := config.DefaultProject()
	cmd.Flags().String("build-dir", d.BuildDir, "build output root")
}

// registerBuildFlags adds the bundler flags to a cobra command.
func registerBuildFlags(cmd *cobra.Command, opts *buildOptions) {
	d := config.DefaultProject()

	registerLayoutFlags(cmd)

	f := cmd.Flags()
	f.String("entry", d.Entry, "entry point to bundle")
	f.Bool("elm", d.Elm, "compile imported .elm modules with elm make")
	f.StringVar(&opts.outdir, "outdir", "", "output directory (default: <build-dir>/static/js or <build-dir>/<doodle>)")
	f.BoolVar(&opts.watch, "watch", false, "keep running and rebuild on change")
	f.BoolVar(&opts.sourcemap, "sourcemap", false, "emit linked source maps")
	f.BoolVar(&opts.minify, "minify", false, "minify the output")
	f.StringVar(&opts.metafile, "metafile", "", "write esbuild's metafile JSON to this path")
}

// registerDevFlags adds the dev server flags to a cobra command.
func registerDevFlags(cmd *cobra.Command) {
	d := config.DefaultProject()

	registerLayoutFlags(cmd)

	f := cmd.Flags()
	f.String("src", d.Src, "source directory to watch")
	f.String("command", d.Command, "shell command that rebuilds the project")
	f.String("addr", d.Addr, "dev server listen address")
	f.Bool("open", d.Open, "open the browser once the server is up")
	f.Duration("debounce", d.Debounce, "coalesce source events within this window (0 disables)")
}
