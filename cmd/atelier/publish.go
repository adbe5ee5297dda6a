package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/atelier-assets/atelier/cmd"

	"github.com/atelier-assets/atelier/internal/daemon"
	"github.com/atelier-assets/atelier/internal/filesystem"
	"github.com/atelier-assets/atelier/internal/logging"
	"github.com/atelier-assets/atelier/internal/publish"
	"github.com/atelier-assets/atelier/internal/storekv"
)

// publishMain snapshots the daemon database into a packfile. bbolt holds an
// exclusive file lock on the database while a process has it open, so
// while the daemon runs, opening the database here times out and publish
// exits with an error. Without an explicit output argument, the packfile
// lands in the daemon's caches directory, where housekeeping prunes
// superseded generations while protecting the recorded current one.
func publishMain(_ *cobra.Command, arguments []string) {
	if publishConfiguration.database != "" {
		filesystem.DataDirectoryPath = publishConfiguration.database
	}

	databasePath, err := daemon.DatabasePath()
	if err != nil {
		cmd.FatalWithCode(fmt.Errorf("unable to compute database path: %w", err), cmd.ExitIOError)
	}

	var outputPath string
	if len(arguments) > 0 {
		outputPath = arguments[0]
	} else {
		cachesDir, err := filesystem.Subpath(true, filesystem.CachesDirectoryName)
		if err != nil {
			cmd.FatalWithCode(fmt.Errorf("unable to compute caches directory: %w", err), cmd.ExitIOError)
		}
		outputPath = filepath.Join(cachesDir, fmt.Sprintf("atelier-%d.pack", time.Now().Unix()))
	}

	store, err := storekv.Open(databasePath)
	if err != nil {
		cmd.FatalWithCode(fmt.Errorf("unable to open database: %w", err), cmd.ExitDatabaseError)
	}
	defer store.Close()

	count, err := publish.Publish(store, outputPath, logging.RootLogger)
	if err != nil {
		cmd.FatalWithCode(fmt.Errorf("unable to publish packfile: %w", err), cmd.ExitIOError)
	}

	fmt.Printf("published %d entries to %s\n", count, outputPath)
}

var publishCommand = &cobra.Command{
	Use:   "publish [output-packfile]",
	Short: "Snapshot the asset hub and artifact cache into a packfile",
	Args:  cobra.MaximumNArgs(1),
	Run:   publishMain,
}

var publishConfiguration struct {
	database string
}

func init() {
	flags := publishCommand.Flags()
	flags.StringVar(&publishConfiguration.database, "db", "", "Directory holding the daemon database")
}
