package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atelier-assets/atelier/cmd"

	"github.com/atelier-assets/atelier/internal/config"
	"github.com/atelier-assets/atelier/internal/daemon"
	"github.com/atelier-assets/atelier/internal/filesystem"
	"github.com/atelier-assets/atelier/internal/logging"
	"github.com/atelier-assets/atelier/internal/version"
)

// rootMain is the entry point for the daemon.
func rootMain(_ *cobra.Command, _ []string) {
	if rootConfiguration.version {
		fmt.Println(version.Semantic)
		return
	}

	configuration, err := config.Load(rootConfiguration.configFile)
	if err != nil {
		cmd.FatalWithCode(fmt.Errorf("unable to load configuration: %w", err), cmd.ExitConfigurationError)
	}

	// Flags override configuration file values.
	if rootConfiguration.database != "" {
		configuration.DataDir = rootConfiguration.database
	}
	if len(rootConfiguration.watch) > 0 {
		configuration.WatchDirectories = rootConfiguration.watch
	}
	if rootConfiguration.address != "" {
		configuration.ListenAddress = rootConfiguration.address
	}
	if rootConfiguration.logLevel != "" {
		configuration.LogLevel = rootConfiguration.logLevel
	}

	if len(configuration.WatchDirectories) == 0 {
		cmd.FatalWithCode(fmt.Errorf("no watch directories specified (use --watch)"), cmd.ExitConfigurationError)
	}

	logging.Configure(config.ParseLogLevel(configuration.LogLevel, logging.RootLogger), os.Stderr)
	logger := logging.RootLogger

	if configuration.DataDir != "" {
		filesystem.DataDirectoryPath = configuration.DataDir
	}

	lock, err := daemon.AcquireLock(logger)
	if err != nil {
		cmd.FatalWithCode(fmt.Errorf("unable to acquire daemon lock: %w", err), cmd.ExitIOError)
	}
	defer lock.Release()

	databasePath, err := daemon.DatabasePath()
	if err != nil {
		cmd.FatalWithCode(fmt.Errorf("unable to compute database path: %w", err), cmd.ExitIOError)
	}

	d, err := daemon.New(daemon.Options{
		DatabasePath:         databasePath,
		WatchDirectories:     configuration.WatchDirectories,
		Address:              configuration.ListenAddress,
		ImporterConcurrency:  configuration.ImporterConcurrency,
		DebounceWindow:       configuration.DebounceWindow,
		CompressionThreshold: configuration.ArtifactCompressionThresholdBytes,
	}, logger)
	if err != nil {
		cmd.FatalWithCode(fmt.Errorf("unable to initialize daemon: %w", err), cmd.ExitDatabaseError)
	}
	defer d.Close()

	logger.Infof("watching %s", strings.Join(configuration.WatchDirectories, ", "))

	// Run until a termination signal arrives.
	ctx, cancel := context.WithCancel(context.Background())
	terminationSignals := make(chan os.Signal, 1)
	signal.Notify(terminationSignals, cmd.TerminationSignals...)
	go func() {
		<-terminationSignals
		logger.Info("received termination signal")
		cancel()
	}()

	if err := d.Run(ctx); err != nil {
		cmd.FatalWithCode(fmt.Errorf("daemon terminated abnormally: %w", err), cmd.ExitDatabaseError)
	}
}

var rootCommand = &cobra.Command{
	Use:   "atelier-daemon",
	Short: "The atelier asset pipeline daemon watches source directories, imports changed files into typed artifacts, and serves them to runtime clients.",
	Run:   rootMain,
	Args:  cobra.NoArgs,
}

var rootConfiguration struct {
	help       bool
	version    bool
	configFile string
	database   string
	watch      []string
	address    string
	logLevel   string
}

func init() {
	flags := rootCommand.Flags()
	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")
	flags.BoolVar(&rootConfiguration.version, "version", false, "Show version information")
	flags.StringVarP(&rootConfiguration.configFile, "config", "c", "", "Path to the daemon configuration file")
	flags.StringVar(&rootConfiguration.database, "db", "", "Directory holding the daemon database and lock")
	flags.StringArrayVar(&rootConfiguration.watch, "watch", nil, "Directory to watch for source files (repeatable)")
	flags.StringVar(&rootConfiguration.address, "address", "", "Listen address for the control surface (host:port)")
	flags.StringVar(&rootConfiguration.logLevel, "log-level", "", "Minimum log level (error, warn, info, debug, trace)")
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(cmd.ExitConfigurationError)
	}
}
