//go:build windows

package packfile

import (
	"fmt"
	"os"
)

// mappedFile on Windows falls back to reading the whole file into a
// regular heap buffer rather than mapping it, since the daemon does not
// otherwise pull in a Windows-specific mmap binding. The read-only,
// never-mutated contract callers depend on holds either way; only the
// backing memory's origin differs.
type mappedFile struct {
	data []byte
}

func mapFile(path string) (*mappedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("packfile: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("packfile: %s is empty", path)
	}
	return &mappedFile{data: data}, nil
}

func (m *mappedFile) close() error {
	m.data = nil
	return nil
}

func (m *mappedFile) bytes() []byte {
	return m.data
}
