package batchstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// MmapStore is the memory-mapped-file-backed Store (STORAGE_MMAP): each
// batch's image data lives in its own file under dir, named by UUID.
type MmapStore struct {
	dir string

	mu   sync.Mutex
	open map[string][]byte
	fds  map[string]*os.File
}

// NewMmapStore constructs a store rooted at dir, creating it if absent.
func NewMmapStore(dir string) (*MmapStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create batchstore dir %s: %w", dir, err)
	}
	return &MmapStore{
		dir:  dir,
		open: make(map[string][]byte),
		fds:  make(map[string]*os.File),
	}, nil
}

func (s *MmapStore) path(uuid string) string {
	return filepath.Join(s.dir, uuid+".bin")
}

func (s *MmapStore) Setup(uuid string, mode Mode, sizeBytes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path(uuid), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open batch file for %s: %w", uuid, err)
	}
	if err := f.Truncate(int64(sizeBytes)); err != nil {
		f.Close()
		return fmt.Errorf("ftruncate batch file for %s: %w", uuid, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, sizeBytes, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return fmt.Errorf("mmap batch file for %s: %w", uuid, err)
	}
	s.fds[uuid] = f
	s.open[uuid] = data
	return nil
}

func (s *MmapStore) Read(uuid string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.open[uuid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uuid)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MmapStore) Upload(uuid string, data []byte, numImages, sizeBytes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mapped, ok := s.open[uuid]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, uuid)
	}
	n := copy(mapped, data)
	if err := unix.Msync(mapped[:n], unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync batch file for %s: %w", uuid, err)
	}
	return nil
}

func (s *MmapStore) Release(uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.open[uuid]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, uuid)
	}
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap batch file for %s: %w", uuid, err)
	}
	delete(s.open, uuid)
	if f, ok := s.fds[uuid]; ok {
		f.Close()
		delete(s.fds, uuid)
	}
	return os.Remove(s.path(uuid))
}
