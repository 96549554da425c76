package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Human-in-the-loop mediation engine for AI agents",
	Long: `parley lets concurrently running AI agents pause mid-task and ask one
human for decisions. Agents submit questions over a local API and block until
the human answers through the console or a remote connection; questions queue
up FIFO behind the single active one, and pre-authored answers can satisfy
requests without interaction.

Running 'parley' without a subcommand is equivalent to 'parley serve'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(historyCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to parley.json config file (default: search up directory tree)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
