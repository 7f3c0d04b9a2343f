package commands

import (
	"github.com/spf13/cobra"

	"github.com/user/poe/internal/commands/next"
	"github.com/user/poe/internal/commands/serve"
)

var rootCmd = &cobra.Command{
	Use:   "poe",
	Short: "Gated channel promotion for GitHub releases",
}

func init() {
	rootCmd.AddCommand(serve.NewCommand())
	rootCmd.AddCommand(next.NewCommand())
}

func Execute() error {
	return rootCmd.Execute()
}
