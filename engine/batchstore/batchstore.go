// Package batchstore provides reference BatchStore implementations for the
// uplink/upload path and on-disk image data, treated as out-of-scope
// external collaborators and specified only at their interface (spec.md §1).
package batchstore

import (
	"fmt"
	"sync"
)

// Store is the BatchStore contract: setup/read/release/upload, keyed by a
// batch's UUID. The Scheduler treats storage handles (Filename, ShmID,
// Data) as opaque; only a Store interprets them.
type Store interface {
	// Setup materializes sizeBytes of storage for a newly-admitted batch,
	// keyed by its UUID. It does not modify the batch descriptor.
	Setup(uuid string, mode Mode, sizeBytes int) error
	// Read loads the batch's image data into memory, returning it.
	Read(uuid string) ([]byte, error)
	// Upload hands off completed image data (n images, sizeBytes each) to
	// the uplink path.
	Upload(uuid string, data []byte, numImages, sizeBytes int) error
	// Release frees the batch's storage handle.
	Release(uuid string) error
}

// Mode mirrors engine.StorageMode without importing the engine package, so
// batchstore has no dependency on the scheduling core.
type Mode int

const (
	ModeMMAP Mode = iota
	ModeMEM
)

var ErrNotFound = fmt.Errorf("batch storage handle not found")

type handle struct {
	mode Mode
	data []byte
}

// MemStore is the heap-backed Store (STORAGE_MEM): image data lives in a
// process-local byte slice per batch.
type MemStore struct {
	mu      sync.Mutex
	handles map[string]*handle
}

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{handles: make(map[string]*handle)}
}

func (s *MemStore) Setup(uuid string, mode Mode, sizeBytes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[uuid] = &handle{mode: mode, data: make([]byte, sizeBytes)}
	return nil
}

func (s *MemStore) Read(uuid string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[uuid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uuid)
	}
	return h.data, nil
}

func (s *MemStore) Upload(uuid string, data []byte, numImages, sizeBytes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handles[uuid]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, uuid)
	}
	// Reference implementation: nothing beyond the local process consumes
	// the uplinked bytes, so upload is a no-op past validating the handle.
	return nil
}

func (s *MemStore) Release(uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handles[uuid]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, uuid)
	}
	delete(s.handles, uuid)
	return nil
}
