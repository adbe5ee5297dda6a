package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atelier-assets/atelier/internal/version"
)

func versionMain(_ *cobra.Command, _ []string) {
	fmt.Println(version.Semantic)
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run:   versionMain,
}
