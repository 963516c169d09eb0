// galaxy-params is the command-line interface for tool parameter state.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "galaxy-params",
		Short: "Tool parameter state CLI",
		Long: "Build, check and expand tool requests against tool definitions, " +
			"locally or through a galaxy-params server.",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to configuration file")
	rootCmd.PersistentFlags().String("server", os.Getenv("GALAXY_PARAMS_SERVER_URL"), "Server URL; tools are then named by id")
	rootCmd.PersistentFlags().String("token", os.Getenv("GALAXY_PARAMS_TOKEN"), "Authentication token")

	rootCmd.AddCommand(newInputsCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newExpandCmd())
	rootCmd.AddCommand(newJobCmd())
	rootCmd.AddCommand(newEncodeIDCmd())
	rootCmd.AddCommand(newDecodeIDCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
