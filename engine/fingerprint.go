package engine

import (
	"encoding/binary"

	"github.com/spaolacci/murmur3"
)

// Fingerprint is the 32-bit cache key: a Murmur3 hash of
// (num_images, batch_size, pipeline_id) seeded with a module implementation's
// parameter hash. Same-shape/same-pipeline batches collapse onto the same
// cache line regardless of which batch they came from.
func Fingerprint(b *ImageBatch, implHash uint32) uint32 {
	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(b.NumImages))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(b.BatchSize))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(b.PipelineID))
	return murmur3.Sum32WithSeed(buf[:], implHash)
}
