package cli

import (
	"io"

	"github.com/spf13/cobra"
)

func newCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion <shell>",
		Short: "Generate shell completion scripts",
		Long: `Print a completion script for devsync to stdout.

The script completes subcommands such as dev, build and init along with
their flags. Load it into the current shell or install it once:

  bash        source <(devsync completion bash)
              devsync completion bash > ~/.local/share/bash-completion/completions/devsync
  zsh         devsync completion zsh > "${fpath[1]}/_devsync"   (needs compinit)
  fish        devsync completion fish > ~/.config/fish/completions/devsync.fish
  powershell  devsync completion powershell | Out-String | Invoke-Expression`,
		Example: "  devsync completion zsh > ~/.zfunc/_devsync",
		// No config is loaded for completion.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Args:              cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs:         completionShells,
		RunE: func(cmd *cobra.Command, args []string) error {
			return completionScripts[args[0]](cmd.Root(), cmd.OutOrStdout())
		},
	}

	return cmd
}

var completionShells = []string{"bash", "zsh", "fish", "powershell"}

// completionScripts writes the script for each entry of completionShells.
var completionScripts = map[string]func(*cobra.Command, io.Writer) error{
	"bash":       func(c *cobra.Command, w io.Writer) error { return c.GenBashCompletionV2(w, true) },
	"zsh":        (*cobra.Command).GenZshCompletion,
	"fish":       func(c *cobra.Command, w io.Writer) error { return c.GenFishCompletion(w, true) },
	"powershell": (*cobra.Command).GenPowerShellCompletionWithDesc,
}
