package cli

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/devsync/internal/config"
	"github.com/hupe1980/devsync/internal/logging"
	"github.com/hupe1980/devsync/internal/output"
)

func newInitCommand() *cobra.Command {
	var (
		path  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default " + config.FileName,
		Long: `Init writes a config file with the default project layout.

If the file already exists it is left untouched and the difference to the
defaults is printed as a unified diff. Use --force to overwrite it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, path, force)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&path, "output", "o", config.FileName, "config file to write")
	f.BoolVar(&force, "force", false, "overwrite an existing config file")

	return cmd
}

func runInit(cmd *cobra.Command, path string, force bool) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)

	data, err := output.RenderConfig(config.DefaultProject(), config.LogLevelInfo)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	w := output.NewFileWriter(path, output.WithLogger(logging.FromContext(ctx)))

	current, err := w.Current()
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	if current != nil && !force {
		if bytes.Equal(current, data) {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s is up to date\n", path)
			return nil
		}

		diff, err := output.ComputeDiff(string(current), string(data), output.DiffOptions{
			OldLabel: path,
			NewLabel: path + " (default)",
			Context:  3,
		})
		if err != nil {
			return &ExitError{Code: 1, Err: err}
		}

		output.WriteDiff(cmd.OutOrStdout(), diff, !cfg.NoColor)

		return &ExitError{Code: 1, Err: fmt.Errorf("%s already exists; rerun with --force to overwrite", path)}
	}

	if err := w.Write(data); err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", path)

	return nil
}
