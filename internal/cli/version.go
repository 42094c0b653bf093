package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/devsync/internal/version"
)

func newVersionCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Display the version, git commit, build date, Go version, platform, and bundled esbuild version.",
		Args:  cobra.NoArgs,
		// Override parent PersistentPreRunE: version needs no config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetInfo()

			if jsonOutput {
				j, err := info.JSON()
				if err != nil {
					return err
				}

				_, err = fmt.Fprintln(cmd.OutOrStdout(), j)

				return err
			}

			if _, err := fmt.Fprintln(cmd.OutOrStdout(), info.String()); err != nil {
				return err
			}

			if !info.IsRelease() {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "development build")
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output version info as JSON")

	return cmd
}
