package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atelier-assets/atelier/cmd"

	"github.com/atelier-assets/atelier/internal/assetid"
	"github.com/atelier-assets/atelier/internal/packfile"
)

func openPack(path string) *packfile.Reader {
	reader, err := packfile.Open(path)
	if err != nil {
		cmd.FatalWithCode(fmt.Errorf("unable to open packfile: %w", err), cmd.ExitIOError)
	}
	return reader
}

func packInfoMain(_ *cobra.Command, arguments []string) {
	reader := openPack(arguments[0])
	defer reader.Close()

	size, err := packfile.Stat(arguments[0])
	if err != nil {
		cmd.FatalWithCode(err, cmd.ExitIOError)
	}

	entries := reader.Entries()
	fmt.Printf("%s: %d entries, %d bytes\n", arguments[0], len(entries), size)
	for _, e := range entries {
		fmt.Printf("  %s  %-40s  %d bytes\n", e.AssetID, e.Path, e.UncompressedSize)
	}
}

func packDepsMain(_ *cobra.Command, arguments []string) {
	id, err := assetid.ParseAssetUuid(arguments[1])
	if err != nil {
		cmd.Fatal(err)
	}

	reader := openPack(arguments[0])
	defer reader.Close()

	results := reader.GetAssetMetadataWithDependencies(packfile.MetadataRequest{
		RequestedAssets: []assetid.AssetUuid{id},
	})
	for _, e := range results {
		fmt.Printf("%s  %s\n", e.AssetID, e.Path)
	}
}

func packCandidatesMain(_ *cobra.Command, arguments []string) {
	reader := openPack(arguments[0])
	defer reader.Close()

	candidates, err := reader.GetAssetCandidates(arguments[1])
	if err != nil {
		cmd.FatalWithCode(err, cmd.ExitIOError)
	}
	for _, e := range candidates.Assets {
		fmt.Printf("%s  %s\n", e.AssetID, candidates.Path)
	}
}

func packGetMain(_ *cobra.Command, arguments []string) {
	id, err := assetid.ParseAssetUuid(arguments[1])
	if err != nil {
		cmd.Fatal(err)
	}

	reader := openPack(arguments[0])
	defer reader.Close()

	blobs, err := reader.GetArtifacts([]assetid.AssetUuid{id})
	if err != nil {
		cmd.FatalWithCode(err, cmd.ExitIOError)
	}
	os.Stdout.Write(blobs[0])
}

var packCommand = &cobra.Command{
	Use:   "pack",
	Short: "Inspect a published packfile",
	Run:   func(command *cobra.Command, _ []string) { command.Help() },
}

var packInfoCommand = &cobra.Command{
	Use:   "info <packfile>",
	Short: "List a packfile's entries",
	Args:  cobra.ExactArgs(1),
	Run:   packInfoMain,
}

var packDepsCommand = &cobra.Command{
	Use:   "deps <packfile> <asset-uuid>",
	Short: "Resolve an asset's transitive load dependencies",
	Args:  cobra.ExactArgs(2),
	Run:   packDepsMain,
}

var packCandidatesCommand = &cobra.Command{
	Use:   "candidates <packfile> <path>",
	Short: "Resolve a path identifier to its assets",
	Args:  cobra.ExactArgs(2),
	Run:   packCandidatesMain,
}

var packGetCommand = &cobra.Command{
	Use:   "get <packfile> <asset-uuid>",
	Short: "Write an asset's artifact bytes to standard output",
	Args:  cobra.ExactArgs(2),
	Run:   packGetMain,
}

func init() {
	packCommand.AddCommand(
		packInfoCommand,
		packDepsCommand,
		packCandidatesCommand,
		packGetCommand,
	)
}
