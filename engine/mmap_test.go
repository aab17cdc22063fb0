package engine

import (
	"path/filepath"
	"testing"
)

func TestMmapCostCache_ReopenAfterClose_PreservesEntriesAndClock(t *testing.T) {
	// GIVEN an mmap cost cache with entries inserted, then closed without a
	// clean shutdown sequence beyond Close (simulating a restart)
	path := filepath.Join(t.TempDir(), "cost_cache.bin")

	c1, err := NewMmapCostCache(path)
	if err != nil {
		t.Fatalf("NewMmapCostCache: %v", err)
	}
	c1.Insert(10, 111, 1.1)
	c1.Insert(20, 222, 2.2)
	c1.Insert(30, 333, 3.3)
	wantClock := c1.Clock()
	if err := c1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// WHEN the same backing file is reopened
	c2, err := NewMmapCostCache(path)
	if err != nil {
		t.Fatalf("reopen NewMmapCostCache: %v", err)
	}
	defer c2.Close()

	// THEN all pre-close entries are present and the clock is at least the
	// pre-close maximum
	for _, fp := range []uint32{10, 20, 30} {
		if _, _, ok := c2.Lookup(fp); !ok {
			t.Errorf("Lookup(%d) after reopen: expected hit", fp)
		}
	}
	if c2.Clock() < wantClock {
		t.Errorf("Clock after reopen: got %d, want >= %d", c2.Clock(), wantClock)
	}
}

func TestMmapCostCache_Eviction_MatchesMemBackend(t *testing.T) {
	// GIVEN an mmap cache filled to MaxEntries
	path := filepath.Join(t.TempDir(), "cost_cache.bin")
	c, err := NewMmapCostCache(path)
	if err != nil {
		t.Fatalf("NewMmapCostCache: %v", err)
	}
	defer c.Close()

	for i := 0; i < MaxEntries; i++ {
		c.Insert(uint32(i), uint32(i), float32(i))
	}

	// WHEN one more entry is inserted
	c.Insert(uint32(MaxEntries), 1, 1)

	// THEN, as in the RAM backend, fingerprint 0 (the smallest timestamp) is
	// the victim, the table stays bounded and the new entry is present
	if _, _, ok := c.Lookup(0); ok {
		t.Errorf("expected fingerprint 0 to be evicted")
	}
	if len(c.Entries()) != MaxEntries {
		t.Errorf("Entries: got %d, want %d", len(c.Entries()), MaxEntries)
	}
	if _, _, ok := c.Lookup(uint32(MaxEntries)); !ok {
		t.Errorf("expected newly inserted fingerprint present")
	}
}

func TestMmapPQueue_ReopenAfterClose_PreservesHeapContents(t *testing.T) {
	// GIVEN an mmap priority queue with three batches enqueued, then closed
	path := filepath.Join(t.TempDir(), "ingest.bin")
	q1, err := NewMmapPQueue(path, MaxQueueSize)
	if err != nil {
		t.Fatalf("NewMmapPQueue: %v", err)
	}
	for _, p := range []int64{300, 100, 200} {
		if err := q1.Enqueue(newTestBatch(p)); err != nil {
			t.Fatalf("Enqueue(%d): %v", p, err)
		}
	}
	if err := q1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// WHEN the same backing file is reopened
	q2, err := NewMmapPQueue(path, MaxQueueSize)
	if err != nil {
		t.Fatalf("reopen NewMmapPQueue: %v", err)
	}
	defer q2.Close()

	// THEN the reopened queue observes the same set of items, still in
	// strict priority order
	if q2.Size() != 3 {
		t.Fatalf("Size after reopen: got %d, want 3", q2.Size())
	}
	first, _ := q2.Dequeue()
	if first.Priority != 100 {
		t.Errorf("Dequeue after reopen: got priority %d, want 100", first.Priority)
	}
}

func TestMmapPQueue_DequeueThenReopen_ExcludesDequeuedItem(t *testing.T) {
	// GIVEN a queue with two batches, one dequeued before close
	path := filepath.Join(t.TempDir(), "partial.bin")
	q1, err := NewMmapPQueue(path, MaxPartialQueueSize)
	if err != nil {
		t.Fatalf("NewMmapPQueue: %v", err)
	}
	q1.Enqueue(newTestBatch(1))
	q1.Enqueue(newTestBatch(2))
	q1.Dequeue()
	q1.Close()

	// WHEN reopened
	q2, err := NewMmapPQueue(path, MaxPartialQueueSize)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer q2.Close()

	// THEN only the remaining item is observed
	if q2.Size() != 1 {
		t.Fatalf("Size after reopen: got %d, want 1", q2.Size())
	}
	remaining, _ := q2.Dequeue()
	if remaining.Priority != 2 {
		t.Errorf("remaining item: got priority %d, want 2", remaining.Priority)
	}
}
