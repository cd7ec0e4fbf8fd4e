package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the hub admin CLI. Subcommands (bootstrap, tenant) are attached here.
var rootCmd = &cobra.Command{
	Use:           "seletor-hub",
	Short:         "Seletor hub admin CLI",
	Long:          "Administrative utilities for the hub: schema bootstrap and tenant database lifecycle.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log at debug level")
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
