package engine

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// On-disk record layout for the mmap-backed cost cache. A fixed byte layout
// (rather than an unsafe struct cast over the mapping) keeps the format
// portable across builds and lets mmapCostCache be tested without cgo or
// platform-specific struct packing assumptions.
//
//	offset 0:  uint64 clock               (8 bytes, header)
//	offset 8:  MaxEntries * costRecordSize (entries, little-endian)
//	  per record: hash(u32) latency_us(u32) energy_uwh(f32 bits) ts(u64) valid(u8) + 3 pad
const (
	costHeaderSize = 8
	costRecordSize = 24
	costFileSize   = costHeaderSize + MaxEntries*costRecordSize
)

// mmapCostCache is the crash-durable CostCache backend: a fixed-size file
// memory-mapped MAP_SHARED. Per the REDESIGN FLAG in spec.md §9, the
// synchronizing mutex is an ordinary in-process sync.Mutex, NOT embedded in
// the mapping — the original's pthread_mutex_t-in-shared-memory is a
// non-portable hazard this backend deliberately does not reproduce.
type mmapCostCache struct {
	mu    sync.Mutex
	file  *os.File
	data  []byte
	clock uint64
}

// NewMmapCostCache opens (creating if absent) the cost cache file at path,
// mapping it MAP_SHARED. On first-time creation the region is zeroed and
// msync'd; on reopen, clock is recovered as max(ts) over valid entries.
func NewMmapCostCache(path string) (CostCache, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open cost cache %s: %v", ErrStorage, path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat cost cache %s: %v", ErrStorage, path, err)
	}
	freshFile := fi.Size() == 0
	if fi.Size() != costFileSize {
		if err := f.Truncate(costFileSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: ftruncate cost cache %s: %v", ErrStorage, path, err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, costFileSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: mmap cost cache %s: %v", ErrStorage, path, err)
	}

	c := &mmapCostCache{file: f, data: data}
	if freshFile {
		for i := range c.data {
			c.data[i] = 0
		}
		if err := unix.Msync(c.data, unix.MS_SYNC); err != nil {
			c.Close()
			return nil, fmt.Errorf("%w: msync cost cache %s: %v", ErrStorage, path, err)
		}
	}
	c.recoverClock()
	return c, nil
}

func (c *mmapCostCache) recoverClock() {
	var maxTS uint64
	for i := 0; i < MaxEntries; i++ {
		e := c.readRecord(i)
		if e.Valid && e.TS > maxTS {
			maxTS = e.TS
		}
	}
	c.clock = maxTS
}

func recordOffset(i int) int { return costHeaderSize + i*costRecordSize }

func (c *mmapCostCache) readRecord(i int) CostEntry {
	off := recordOffset(i)
	b := c.data[off : off+costRecordSize]
	return CostEntry{
		Hash:      binary.LittleEndian.Uint32(b[0:4]),
		LatencyUS: binary.LittleEndian.Uint32(b[4:8]),
		EnergyUWh: math.Float32frombits(binary.LittleEndian.Uint32(b[8:12])),
		TS:        binary.LittleEndian.Uint64(b[12:20]),
		Valid:     b[20] != 0,
	}
}

func (c *mmapCostCache) writeRecord(i int, e CostEntry) {
	off := recordOffset(i)
	b := c.data[off : off+costRecordSize]
	binary.LittleEndian.PutUint32(b[0:4], e.Hash)
	binary.LittleEndian.PutUint32(b[4:8], e.LatencyUS)
	binary.LittleEndian.PutUint32(b[8:12], math.Float32bits(e.EnergyUWh))
	binary.LittleEndian.PutUint64(b[12:20], e.TS)
	if e.Valid {
		b[20] = 1
	} else {
		b[20] = 0
	}
}

func (c *mmapCostCache) sync() error {
	binary.LittleEndian.PutUint64(c.data[0:8], c.clock)
	if err := unix.Msync(c.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("%w: msync cost cache: %v", ErrStorage, err)
	}
	return nil
}

func (c *mmapCostCache) Lookup(fp uint32) (uint32, float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < MaxEntries; i++ {
		e := c.readRecord(i)
		if e.Valid && e.Hash == fp {
			c.clock++
			e.TS = c.clock
			c.writeRecord(i, e)
			c.sync()
			return e.LatencyUS, e.EnergyUWh, true
		}
	}
	return 0, 0, false
}

func (c *mmapCostCache) Insert(fp uint32, lat uint32, eng float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock++

	for i := 0; i < MaxEntries; i++ {
		e := c.readRecord(i)
		if e.Valid && e.Hash == fp {
			e.LatencyUS, e.EnergyUWh, e.TS = lat, eng, c.clock
			c.writeRecord(i, e)
			c.sync()
			return
		}
	}
	for i := 0; i < MaxEntries; i++ {
		e := c.readRecord(i)
		if !e.Valid {
			c.writeRecord(i, CostEntry{Hash: fp, LatencyUS: lat, EnergyUWh: eng, TS: c.clock, Valid: true})
			c.sync()
			return
		}
	}

	victim, victimTS := 0, c.readRecord(0).TS
	for i := 1; i < MaxEntries; i++ {
		ts := c.readRecord(i).TS
		if ts < victimTS {
			victim, victimTS = i, ts
		}
	}
	c.writeRecord(victim, CostEntry{Hash: fp, LatencyUS: lat, EnergyUWh: eng, TS: c.clock, Valid: true})
	c.sync()
}

func (c *mmapCostCache) Clock() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock
}

func (c *mmapCostCache) Entries() []CostEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CostEntry, 0, MaxEntries)
	for i := 0; i < MaxEntries; i++ {
		e := c.readRecord(i)
		if e.Valid {
			out = append(out, e)
		}
	}
	return out
}

func (c *mmapCostCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := unix.Munmap(c.data); err != nil {
		c.file.Close()
		return fmt.Errorf("%w: munmap cost cache: %v", ErrStorage, err)
	}
	return c.file.Close()
}
