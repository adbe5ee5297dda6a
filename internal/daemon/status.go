package daemon

import (
	"context"
	"fmt"
	"net"

	"gopkg.in/yaml.v3"

	"github.com/atelier-assets/atelier/internal/assethub"
	"github.com/atelier-assets/atelier/internal/logging"
	"github.com/atelier-assets/atelier/internal/version"
)

// Status is the snapshot served to control-surface clients.
type Status struct {
	Version          string   `yaml:"version"`
	WatchDirectories []string `yaml:"watch_directories"`
	AssetCount       int      `yaml:"asset_count"`
	TrackerRunning   bool     `yaml:"tracker_running"`
}

// serveStatus binds address and answers each connection with a YAML Status
// snapshot before closing it. It is deliberately not an RPC surface: the
// daemon's durable outputs are the database and published packfiles, and
// this endpoint exists only so operators and dev tools can confirm
// liveness and watch configuration.
func (d *Daemon) serveStatus(ctx context.Context, address string, logger *logging.Logger) error {
	if address == "" {
		return nil
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("unable to bind status listener: %w", err)
	}
	logger.Infof("status listener bound to %s", listener.Addr())

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go d.answerStatus(conn, logger)
		}
	}()

	return nil
}

func (d *Daemon) answerStatus(conn net.Conn, logger *logging.Logger) {
	defer conn.Close()

	status := Status{
		Version:          version.Semantic,
		WatchDirectories: d.watchDirs,
		TrackerRunning:   d.tracker.IsRunning(),
	}
	count := 0
	if err := d.hub.ForEach(func(assethub.ArtifactMetadata) error { count++; return nil }); err == nil {
		status.AssetCount = count
	}

	encoded, err := yaml.Marshal(status)
	if err != nil {
		logger.Warnf("unable to encode status: %v", err)
		return
	}
	if _, err := conn.Write(encoded); err != nil {
		logger.Debugf("unable to write status: %v", err)
	}
}
