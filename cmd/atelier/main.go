package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/atelier-assets/atelier/cmd"
)

// rootMain is the entry point for the root command. Since the root command
// only aggregates subcommands, it simply prints help.
func rootMain(command *cobra.Command, _ []string) {
	command.Help()
}

var rootCommand = &cobra.Command{
	Use:   "atelier",
	Short: "Inspection and publishing tooling for the atelier asset pipeline",
	Run:   rootMain,
}

func init() {
	rootCommand.AddCommand(
		publishCommand,
		packCommand,
		versionCommand,
	)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(cmd.ExitConfigurationError)
	}
}
