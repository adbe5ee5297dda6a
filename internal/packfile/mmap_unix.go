//go:build !windows

package packfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mappedFile is a read-only memory mapping of an open file, using
// golang.org/x/sys/unix directly, the same platform-split discipline as
// internal/filesystem/locking.
type mappedFile struct {
	file *os.File
	data []byte
}

func mapFile(path string) (*mappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("packfile: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("packfile: stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		f.Close()
		return nil, fmt.Errorf("packfile: %s is empty", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("packfile: mmap %s: %w", path, err)
	}

	return &mappedFile{file: f, data: data}, nil
}

// close unmaps the region and closes the backing file. Callers must
// ensure no derived slice from bytes() is retained past this call.
func (m *mappedFile) close() error {
	err := unix.Munmap(m.data)
	if cerr := m.file.Close(); err == nil {
		err = cerr
	}
	return err
}

func (m *mappedFile) bytes() []byte {
	return m.data
}
