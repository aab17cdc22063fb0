package engine

import (
	"container/heap"
	"fmt"
	"sync"
)

// PQueue is a bounded min-heap of ImageBatch ordered by Priority (absolute
// deadline; smaller = sooner = higher priority). Two named instances are
// used by the Scheduler: "ingest" (capacity MaxQueueSize) and "partial"
// (capacity MaxPartialQueueSize).
type PQueue interface {
	// Enqueue strips the batch's local data binding and inserts it,
	// returning ErrQueueFull if the queue is at capacity.
	Enqueue(b *ImageBatch) error
	// Dequeue pops the minimum-priority batch, or reports false if empty.
	Dequeue() (*ImageBatch, bool)
	// Peek returns the minimum-priority batch without removing it.
	Peek() (*ImageBatch, bool)
	Size() int
	Close() error
}

// batchHeap implements container/heap.Interface over ImageBatch pointers,
// the idiomatic analog of the original's hand-rolled heapifyUp/heapifyDown
// (compare the teacher's sim/cluster/event_heap.go).
type batchHeap []*ImageBatch

func (h batchHeap) Len() int            { return len(h) }
func (h batchHeap) Less(i, j int) bool  { return h[i].Priority < h[j].Priority }
func (h batchHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *batchHeap) Push(x interface{}) { *h = append(*h, x.(*ImageBatch)) }
func (h *batchHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// memPQueue is the RAM-backed PQueue.
type memPQueue struct {
	mu       sync.Mutex
	h        batchHeap
	capacity int
}

// NewMemPQueue constructs an empty RAM-backed priority queue with the given
// capacity (MaxQueueSize or MaxPartialQueueSize).
func NewMemPQueue(capacity int) PQueue {
	q := &memPQueue{capacity: capacity}
	heap.Init(&q.h)
	return q
}

func (q *memPQueue) Enqueue(b *ImageBatch) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) >= q.capacity {
		return fmt.Errorf("%w: queue at capacity %d", ErrQueueFull, q.capacity)
	}
	clone := b.Clone()
	clone.StripLocalData()
	heap.Push(&q.h, clone)
	return nil
}

func (q *memPQueue) Dequeue() (*ImageBatch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		return nil, false
	}
	return heap.Pop(&q.h).(*ImageBatch), true
}

func (q *memPQueue) Peek() (*ImageBatch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		return nil, false
	}
	return q.h[0], true
}

func (q *memPQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

func (q *memPQueue) Close() error { return nil }
