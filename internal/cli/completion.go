package cli

import (
	"github.com/spf13/cobra"
)

// completionCmd generates shell completion scripts.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion scripts for agrosync.

To load completions:

Bash:
  $ source <(agrosync completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ agrosync completion bash > /etc/bash_completion.d/agrosync
  # macOS:
  $ agrosync completion bash > $(brew --prefix)/etc/bash_completion.d/agrosync

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ agrosync completion zsh > "${fpath[1]}/_agrosync"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ agrosync completion fish | source

  # To load completions for each session, execute once:
  $ agrosync completion fish > ~/.config/fish/completions/agrosync.fish

PowerShell:
  PS> agrosync completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> agrosync completion powershell > agrosync.ps1
  # and source this file from your PowerShell profile.
`,
	Example: `  agrosync completion bash
  agrosync completion zsh > "${fpath[1]}/_agrosync"`,
	GroupID:               groupConfig,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(w)
		case "zsh":
			return cmd.Root().GenZshCompletion(w)
		case "fish":
			return cmd.Root().GenFishCompletion(w, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(w)
		}
		return nil
	},
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(completionCmd)
}
