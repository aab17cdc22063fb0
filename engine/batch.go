package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// StorageMode selects how a BatchStore materializes an ImageBatch's image data.
type StorageMode int

const (
	StorageMMAP StorageMode = iota
	StorageMEM
)

func (m StorageMode) String() string {
	switch m {
	case StorageMMAP:
		return "MMAP"
	case StorageMEM:
		return "MEM"
	default:
		return "UNKNOWN"
	}
}

// ParseStorageMode parses STORAGE_MODE; unrecognized values fall back to
// StorageMMAP with the caller expected to log the fallback (see config.go).
func ParseStorageMode(s string) (mode StorageMode, ok bool) {
	switch s {
	case "MEM":
		return StorageMEM, true
	case "MMAP":
		return StorageMMAP, true
	default:
		return StorageMMAP, false
	}
}

// ImageBatch is the unit of work moved between the inbox, the two PQueues,
// and the external BatchStore. Fields mirror the original C ImageBatch
// descriptor field-for-field (see SPEC_FULL.md §3).
type ImageBatch struct {
	UUID       string // 36-char identifier
	PipelineID int    // selects a Pipeline from the fixed table
	NumImages  int    // fingerprint input, BatchStore sizing
	BatchSize  int    // bytes; fingerprint input, BatchStore sizing
	Priority   int64  // absolute deadline, seconds since epoch; smaller = higher priority
	Progress   int    // index of the last successfully executed module, -1 initially

	StorageMode StorageMode // selects how BatchStore materializes Data
	Filename    string      // storage handle owned by BatchStore
	ShmID       int         // storage handle owned by BatchStore
	Data        []byte      // opaque to the Scheduler; local to one process
}

// NewBatch mints a fresh ImageBatch with a random UUID, Progress reset to -1
// (not yet started), and no local data binding.
func NewBatch(pipelineID, numImages, batchSize int, priority int64, mode StorageMode) *ImageBatch {
	return &ImageBatch{
		UUID:        uuid.NewString(),
		PipelineID:  pipelineID,
		NumImages:   numImages,
		BatchSize:   batchSize,
		Priority:    priority,
		Progress:    -1,
		StorageMode: mode,
	}
}

// Validate checks the invariants from SPEC_FULL.md §3: a well-formed
// progress index relative to a pipeline of the given length, and a
// syntactically valid UUID.
func (b *ImageBatch) Validate(pipelineLen int) error {
	if _, err := uuid.Parse(b.UUID); err != nil {
		return fmt.Errorf("image batch %q: invalid uuid: %w", b.UUID, err)
	}
	if b.Progress < -1 || b.Progress >= pipelineLen {
		return fmt.Errorf("image batch %s: progress %d out of range [-1, %d)", b.UUID, b.Progress, pipelineLen)
	}
	return nil
}

// Complete reports whether every module in a pipeline.len-length pipeline has
// run.
func (b *ImageBatch) Complete(pipelineLen int) bool {
	return b.Progress == pipelineLen-1
}

// StripLocalData erases the process-local data binding so the descriptor is
// safe to hand to a PQueue backend (mmap or mem). Per SPEC_FULL.md §4.3 and
// the re-architecture hint in spec.md §9: the descriptor is a portable
// identity plus a local binding, and only the identity survives a queue
// round-trip.
func (b *ImageBatch) StripLocalData() {
	b.Data = nil
}

// Clone returns a deep-enough copy for queue dequeue semantics: distinct from
// the backing store, sharing no mutable slice state.
func (b *ImageBatch) Clone() *ImageBatch {
	clone := *b
	if b.Data != nil {
		clone.Data = append([]byte(nil), b.Data...)
	}
	return &clone
}

// mutableFields is the subset of ImageBatch a module implementation is
// allowed to update; ModuleExecutor copies exactly these back into the
// scheduler's copy after a successful run (SPEC_FULL.md §4.5.2 step e).
type mutableFields struct {
	NumImages  int
	BatchSize  int
	PipelineID int
	Priority   int64
	Progress   int
	ShmID      int
	UUID       string
	Filename   string
}

func (b *ImageBatch) applyMutable(m mutableFields) {
	b.NumImages = m.NumImages
	b.BatchSize = m.BatchSize
	b.PipelineID = m.PipelineID
	b.Priority = m.Priority
	b.Progress = m.Progress
	b.ShmID = m.ShmID
	b.UUID = m.UUID
	b.Filename = m.Filename
}

func (b *ImageBatch) toMutable() mutableFields {
	return mutableFields{
		NumImages:  b.NumImages,
		BatchSize:  b.BatchSize,
		PipelineID: b.PipelineID,
		Priority:   b.Priority,
		Progress:   b.Progress,
		ShmID:      b.ShmID,
		UUID:       b.UUID,
		Filename:   b.Filename,
	}
}
