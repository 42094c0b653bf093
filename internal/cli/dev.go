package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hupe1980/devsync/internal/config"
	"github.com/hupe1980/devsync/internal/devsync"
	"github.com/hupe1980/devsync/internal/logging"
)

func newDevCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Rebuild on change and serve with live reload",
		Long: `Dev runs the build command once, then watches the source directory and
runs it again after every change. Dotfiles are ignored.

The build directory is served over HTTP. Pages reload when a built script
changes and swap stylesheets in place when a built stylesheet changes.
A failing build is reported and the server keeps running.

Stop with Ctrl-C.`,
		Example: `  devsync dev
  devsync dev --command "make build" --addr localhost:8080 --open
  devsync dev --debounce 200ms`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDev(cmd.Context(), cmd)
		},
	}

	registerDevFlags(cmd)

	return cmd
}

func runDev(ctx context.Context, cmd *cobra.Command) error {
	cfg := config.FromContext(ctx)

	out := logging.NewPrefixWriter(cmd.ErrOrStderr(), logging.Tag, !cfg.NoColor)
	defer out.Flush()

	o := devsync.New(devsync.Options{
		Src:      cfg.Src,
		BuildDir: cfg.BuildDir,
		Command:  cfg.Command,
		JSGlobs:  cfg.JSGlobs,
		CSSGlobs: cfg.CSSGlobs,
		Addr:     cfg.Addr,
		Open:     cfg.Open,
		Debounce: cfg.Debounce,
		Logger:   logging.FromContext(ctx),
		Out:      out,
	})

	if err := o.Run(ctx); err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	return nil
}
