package engine

import "testing"

func newTestBatch(priority int64) *ImageBatch {
	return NewBatch(0, 4, 1024, priority, StorageMEM)
}

func TestMemPQueue_Dequeue_ReturnsMinPriorityFirst(t *testing.T) {
	// GIVEN a queue with three batches enqueued out of priority order
	q := NewMemPQueue(MaxQueueSize)
	q.Enqueue(newTestBatch(300))
	q.Enqueue(newTestBatch(100))
	q.Enqueue(newTestBatch(200))

	// WHEN batches are dequeued
	// THEN they come out in strict priority (deadline) order
	first, _ := q.Dequeue()
	second, _ := q.Dequeue()
	third, _ := q.Dequeue()

	if first.Priority != 100 || second.Priority != 200 || third.Priority != 300 {
		t.Errorf("dequeue order: got (%d, %d, %d), want (100, 200, 300)", first.Priority, second.Priority, third.Priority)
	}
}

func TestMemPQueue_Peek_DoesNotRemove(t *testing.T) {
	q := NewMemPQueue(MaxQueueSize)
	q.Enqueue(newTestBatch(50))

	peeked, ok := q.Peek()
	if !ok || peeked.Priority != 50 {
		t.Fatalf("Peek: got (%v, %v), want (50, true)", peeked, ok)
	}
	if q.Size() != 1 {
		t.Errorf("Peek modified queue size: got %d, want 1", q.Size())
	}
}

func TestMemPQueue_Dequeue_Empty_ReturnsFalse(t *testing.T) {
	q := NewMemPQueue(MaxQueueSize)
	if _, ok := q.Dequeue(); ok {
		t.Errorf("Dequeue on empty queue: expected ok=false")
	}
}

func TestMemPQueue_Enqueue_AtCapacity_ReturnsQueueFull(t *testing.T) {
	// GIVEN a queue at capacity
	q := NewMemPQueue(2)
	if err := q.Enqueue(newTestBatch(1)); err != nil {
		t.Fatalf("unexpected error on first enqueue: %v", err)
	}
	if err := q.Enqueue(newTestBatch(2)); err != nil {
		t.Fatalf("unexpected error on second enqueue: %v", err)
	}

	// WHEN one more batch is enqueued
	err := q.Enqueue(newTestBatch(3))

	// THEN it is rejected as QueueFull
	if err == nil {
		t.Fatalf("expected QueueFull error")
	}
}

func TestMemPQueue_Enqueue_StripsLocalData(t *testing.T) {
	// GIVEN a batch carrying local data
	q := NewMemPQueue(MaxQueueSize)
	b := newTestBatch(1)
	b.Data = []byte{1, 2, 3}

	// WHEN it is enqueued and dequeued
	q.Enqueue(b)
	got, _ := q.Dequeue()

	// THEN the queue's copy carries no local data binding
	if got.Data != nil {
		t.Errorf("Dequeue: expected stripped Data, got %v", got.Data)
	}
}
