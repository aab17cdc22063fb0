package engine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// On-disk record layout for the mmap-backed priority queue: a header
// (count, capacity) followed by up to capacity fixed-size ImageBatch
// records stored in heap order. Fixed-width string fields (mirroring the
// original's uuid[37]/filename[111] C buffers) keep the record size
// constant so the file can be sized up front.
const (
	pqUUIDLen     = 36
	pqFilenameLen = 128
	pqRecordSize  = pqUUIDLen + pqFilenameLen + 4*7 + 8 // uuid+filename+7 int32s+1 int64
	pqHeaderSize  = 8                                   // count(int32) + capacity(int32)
)

func pqFileSize(capacity int) int { return pqHeaderSize + capacity*pqRecordSize }

// mmapPQueue is the crash-durable PQueue backend. Like mmapCostCache, the
// synchronizing mutex lives outside the mapping (REDESIGN FLAG, spec.md §9);
// only the heap contents and count persist on disk.
type mmapPQueue struct {
	mu       sync.Mutex
	file     *os.File
	data     []byte
	capacity int
	h        batchHeap
}

// NewMmapPQueue opens (creating if absent) the queue file at path sized for
// capacity records, recovering any previously-persisted heap contents.
func NewMmapPQueue(path string, capacity int) (PQueue, error) {
	size := pqFileSize(capacity)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open pqueue %s: %v", ErrStorage, path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat pqueue %s: %v", ErrStorage, path, err)
	}
	freshFile := fi.Size() == 0
	if fi.Size() != int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: ftruncate pqueue %s: %v", ErrStorage, path, err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: mmap pqueue %s: %v", ErrStorage, path, err)
	}

	q := &mmapPQueue{file: f, data: data, capacity: capacity}
	if freshFile {
		for i := range q.data {
			q.data[i] = 0
		}
		binary.LittleEndian.PutUint32(q.data[4:8], uint32(capacity))
		if err := unix.Msync(q.data, unix.MS_SYNC); err != nil {
			q.Close()
			return nil, fmt.Errorf("%w: msync pqueue %s: %v", ErrStorage, path, err)
		}
	}
	q.load()
	return q, nil
}

func (q *mmapPQueue) load() {
	count := int(binary.LittleEndian.Uint32(q.data[0:4]))
	q.h = make(batchHeap, 0, count)
	for i := 0; i < count; i++ {
		q.h = append(q.h, q.readRecord(i))
	}
}

func recordOffsetPQ(i int) int { return pqHeaderSize + i*pqRecordSize }

func (q *mmapPQueue) readRecord(i int) *ImageBatch {
	off := recordOffsetPQ(i)
	b := q.data[off : off+pqRecordSize]
	p := 0
	uuid := string(bytes.TrimRight(b[p:p+pqUUIDLen], "\x00"))
	p += pqUUIDLen
	filename := string(bytes.TrimRight(b[p:p+pqFilenameLen], "\x00"))
	p += pqFilenameLen
	pipelineID := int(int32(binary.LittleEndian.Uint32(b[p : p+4])))
	p += 4
	numImages := int(int32(binary.LittleEndian.Uint32(b[p : p+4])))
	p += 4
	batchSize := int(int32(binary.LittleEndian.Uint32(b[p : p+4])))
	p += 4
	progress := int(int32(binary.LittleEndian.Uint32(b[p : p+4])))
	p += 4
	storageMode := StorageMode(int32(binary.LittleEndian.Uint32(b[p : p+4])))
	p += 4
	shmID := int(int32(binary.LittleEndian.Uint32(b[p : p+4])))
	p += 4
	_ = p
	priority := int64(binary.LittleEndian.Uint64(b[pqRecordSize-8 : pqRecordSize]))

	return &ImageBatch{
		UUID:        uuid,
		Filename:    filename,
		PipelineID:  pipelineID,
		NumImages:   numImages,
		BatchSize:   batchSize,
		Progress:    progress,
		StorageMode: storageMode,
		ShmID:       shmID,
		Priority:    priority,
	}
}

func (q *mmapPQueue) writeRecord(i int, b *ImageBatch) {
	off := recordOffsetPQ(i)
	rec := q.data[off : off+pqRecordSize]
	for j := range rec {
		rec[j] = 0
	}
	p := 0
	copy(rec[p:p+pqUUIDLen], b.UUID)
	p += pqUUIDLen
	copy(rec[p:p+pqFilenameLen], b.Filename)
	p += pqFilenameLen
	binary.LittleEndian.PutUint32(rec[p:p+4], uint32(int32(b.PipelineID)))
	p += 4
	binary.LittleEndian.PutUint32(rec[p:p+4], uint32(int32(b.NumImages)))
	p += 4
	binary.LittleEndian.PutUint32(rec[p:p+4], uint32(int32(b.BatchSize)))
	p += 4
	binary.LittleEndian.PutUint32(rec[p:p+4], uint32(int32(b.Progress)))
	p += 4
	binary.LittleEndian.PutUint32(rec[p:p+4], uint32(int32(b.StorageMode)))
	p += 4
	binary.LittleEndian.PutUint32(rec[p:p+4], uint32(int32(b.ShmID)))
	p += 4
	binary.LittleEndian.PutUint64(rec[pqRecordSize-8:pqRecordSize], uint64(b.Priority))
}

// persist rewrites the full heap contents and count, then msyncs. Cheap at
// MaxQueueSize=100 records; matches the original's "sync after every
// mutating op" durability model.
func (q *mmapPQueue) persist() error {
	binary.LittleEndian.PutUint32(q.data[0:4], uint32(len(q.h)))
	for i, b := range q.h {
		q.writeRecord(i, b)
	}
	if err := unix.Msync(q.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("%w: msync pqueue: %v", ErrStorage, err)
	}
	return nil
}

func (q *mmapPQueue) Enqueue(b *ImageBatch) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) >= q.capacity {
		return fmt.Errorf("%w: queue at capacity %d", ErrQueueFull, q.capacity)
	}
	clone := b.Clone()
	clone.StripLocalData()
	q.h = append(q.h, clone)
	siftUp(q.h, len(q.h)-1)
	return q.persist()
}

func (q *mmapPQueue) Dequeue() (*ImageBatch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		return nil, false
	}
	n := len(q.h)
	top := q.h[0]
	q.h[0] = q.h[n-1]
	q.h = q.h[:n-1]
	if len(q.h) > 0 {
		siftDown(q.h, 0)
	}
	q.persist()
	return top, true
}

func (q *mmapPQueue) Peek() (*ImageBatch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		return nil, false
	}
	return q.h[0], true
}

func (q *mmapPQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

func (q *mmapPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := unix.Munmap(q.data); err != nil {
		q.file.Close()
		return fmt.Errorf("%w: munmap pqueue: %v", ErrStorage, err)
	}
	return q.file.Close()
}

// siftUp/siftDown operate directly on a batchHeap without going through
// container/heap. The mmap backend persists the whole heap once after each
// Enqueue/Dequeue, not after individual sift steps.
func siftUp(h batchHeap, i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if h[parent].Priority <= h[i].Priority {
			break
		}
		h[parent], h[i] = h[i], h[parent]
		i = parent
	}
}

func siftDown(h batchHeap, i int) {
	n := len(h)
	for {
		left, right, smallest := 2*i+1, 2*i+2, i
		if left < n && h[left].Priority < h[smallest].Priority {
			smallest = left
		}
		if right < n && h[right].Priority < h[smallest].Priority {
			smallest = right
		}
		if smallest == i {
			break
		}
		h[i], h[smallest] = h[smallest], h[i]
		i = smallest
	}
}
