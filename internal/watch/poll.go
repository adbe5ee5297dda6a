package watch

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// startPoller launches a background polling loop for a root that could not
// be natively watched (e.g. exhausted inotify handles, or an unsupported
// platform): a recursive walk on a fixed interval, diffing against the
// previous walk's os.FileInfo snapshot.
func (w *watcher) startPoller(root string) {
	ctx, cancel := context.WithCancel(context.Background())
	w.pollers = append(w.pollers, cancel)
	w.goroutines.Add(1)
	go func() {
		defer w.goroutines.Done()
		w.pollLoop(ctx, root)
	}()
}

func (w *watcher) cancelPollers() {
	for _, cancel := range w.pollers {
		cancel()
	}
}

func (w *watcher) pollLoop(ctx context.Context, root string) {
	timer := time.NewTimer(DefaultPollingInterval)
	defer timer.Stop()

	contents := make(map[string]os.FileInfo)
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			contents = w.pollOnce(root, contents)
			timer.Reset(DefaultPollingInterval)
		}
	}
}

// pollOnce performs a single poll pass, emitting Updated/Removed events for
// any differences from existing, and returns the new snapshot.
func (w *watcher) pollOnce(root string, existing map[string]os.FileInfo) map[string]os.FileInfo {
	result := make(map[string]os.FileInfo, len(existing))
	seen := make(map[string]bool, len(existing))

	walkErr := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root && os.IsNotExist(err) {
				return nil
			}
			return err
		}
		result[path] = info
		seen[path] = true
		if previous, ok := existing[path]; !ok || !fileInfoEqual(info, previous) {
			w.events <- Event{Kind: EventUpdated, Path: path, Metadata: metadataFromInfo(info)}
		}
		return nil
	})
	if walkErr != nil {
		w.events <- Event{Kind: EventFileError, Err: walkErr}
	}

	for path := range existing {
		if !seen[path] {
			w.events <- Event{Kind: EventRemoved, Path: path}
		}
	}

	return result
}

func fileInfoEqual(first, second os.FileInfo) bool {
	return first.Size() == second.Size() &&
		first.Mode() == second.Mode() &&
		first.ModTime().Equal(second.ModTime())
}
