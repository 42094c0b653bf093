package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/devsync/internal/bundle"
	"github.com/hupe1980/devsync/internal/config"
	"github.com/hupe1980/devsync/internal/logging"
)

type buildOptions struct {
	outdir    string
	watch     bool
	sourcemap bool
	minify    bool
	metafile  string
}

func newBuildCommand() *cobra.Command {
	opts := &buildOptions{}

	cmd := &cobra.Command{
		Use:   "build [doodle]",
		Short: "Bundle the entry point with esbuild",
		Long: `Build bundles the entry point and everything it imports into a single
browser script.

Without arguments the bundle is written to <build-dir>/static/js. A doodle
name writes it to <build-dir>/<doodle> instead, so experiments can live
next to the main app.

With --watch the bundler keeps running and rebuilds whenever an imported
file changes. Compile errors are reported and watching continues.`,
		Example: `  devsync build
  devsync build --minify --sourcemap
  devsync build sketch --entry ./src/dots/index.js
  devsync build --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doodle string
			if len(args) == 1 {
				doodle = args[0]
			}

			return runBuild(cmd.Context(), cmd, doodle, opts)
		},
	}

	registerBuildFlags(cmd, opts)

	return cmd
}

func runBuild(ctx context.Context, cmd *cobra.Command, doodle string, opts *buildOptions) error {
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	out := logging.NewPrefixWriter(cmd.ErrOrStderr(), logging.Tag, !cfg.NoColor)
	defer out.Flush()

	outdir := opts.outdir
	if outdir == "" {
		outdir = bundle.OutDirFor(cfg.BuildDir, doodle)
	}

	bopts := bundle.Options{
		EntryPoints:  []string{cfg.Entry},
		OutDir:       outdir,
		Watch:        opts.watch,
		Sourcemap:    opts.sourcemap,
		Minify:       opts.minify,
		Elm:          cfg.Elm,
		MetafilePath: opts.metafile,
		Logger:       logger,
	}

	if opts.watch {
		var stop context.CancelFunc

		ctx, stop = signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(out, "Watching %s\n", cfg.Entry)
	}

	report := func(res *bundle.Result, err error) {
		if err != nil {
			// One-shot failures are printed by Execute.
			if opts.watch {
				fmt.Fprintln(out, err)
			}

			return
		}

		printBuildResult(out, res)
	}

	if err := bundle.Run(ctx, bopts, report); err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	return nil
}

// printBuildResult lists warnings and the written files with their sizes.
func printBuildResult(w io.Writer, res *bundle.Result) {
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}

	for _, o := range res.Outputs {
		fmt.Fprintf(w, "%s  %s\n", displayPath(o.Path), formatSize(o.Size))
	}
}

// displayPath shortens p relative to the working directory when possible.
func displayPath(p string) string {
	wd, err := os.Getwd()
	if err != nil {
		return p
	}

	rel, err := filepath.Rel(wd, p)
	if err != nil || len(rel) >= len(p) {
		return p
	}

	return rel
}

func formatSize(n int64) string {
	const unit = 1024

	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}
