package packfile

import (
	"github.com/atelier-assets/atelier/internal/assetid"
)

// Dispatcher offloads Reader operations onto a background goroutine pool
// so a caller's own goroutine is never blocked parsing packfile records.
// Completion is delivered via per-request complete/error callbacks rather
// than a return value.
type Dispatcher struct {
	reader *Reader
	work   chan func()
}

// NewDispatcher starts workers background goroutines pulling closures off
// an internal queue and running them against reader.
func NewDispatcher(reader *Reader, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{reader: reader, work: make(chan func(), 64)}
	for i := 0; i < workers; i++ {
		go d.runWorker()
	}
	return d
}

func (d *Dispatcher) runWorker() {
	for fn := range d.work {
		fn()
	}
}

// Stop closes the work queue immediately and returns without waiting;
// workers still run any requests already queued. Callers must not submit
// further requests afterward.
func (d *Dispatcher) Stop() {
	close(d.work)
}

// GetAssetMetadataWithDependencies submits a metadata BFS request,
// invoking complete with the result on the dispatcher's goroutine pool.
func (d *Dispatcher) GetAssetMetadataWithDependencies(request MetadataRequest, complete func([]Entry)) {
	d.work <- func() {
		complete(d.reader.GetAssetMetadataWithDependencies(request))
	}
}

// GetAssetCandidates submits a path-resolution request.
func (d *Dispatcher) GetAssetCandidates(path string, complete func(PathCandidates), onError func(error)) {
	d.work <- func() {
		result, err := d.reader.GetAssetCandidates(path)
		if err != nil {
			onError(err)
			return
		}
		complete(result)
	}
}

// GetArtifacts submits a blob-retrieval request. The byte slices delivered
// to complete alias the packfile's mmap and must not be retained past the
// Reader's Close.
func (d *Dispatcher) GetArtifacts(ids []assetid.AssetUuid, complete func([][]byte), onError func(error)) {
	d.work <- func() {
		result, err := d.reader.GetArtifacts(ids)
		if err != nil {
			onError(err)
			return
		}
		complete(result)
	}
}
