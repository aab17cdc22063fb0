package cmd

import (
	"math"
	"math/rand"
	"time"

	"github.com/satimg/dipp/engine"
)

// syntheticInbox generates ImageBatch arrivals at a Poisson rate, the same
// arrival-process shape the teacher's simulator uses for request arrivals,
// adapted here to mint ImageBatch descriptors instead of inference requests.
// It exists only to drive the reference CLI end-to-end without a real
// parameter-plane producer.
type syntheticInbox struct {
	rng          *rand.Rand
	rate         float64 // batches/sec
	nextArrival  time.Time
	deadlineSlop time.Duration
	numPipelines int
	nextID       int
}

func newSyntheticInbox(rate float64, deadlineSlop time.Duration, numPipelines int, seed int64) *syntheticInbox {
	return &syntheticInbox{
		rng:          rand.New(rand.NewSource(seed)),
		rate:         rate,
		nextArrival:  time.Now(),
		deadlineSlop: deadlineSlop,
		numPipelines: numPipelines,
	}
}

// TryReceive implements engine.Inbox: it yields a fresh batch once per
// simulated Poisson interarrival interval, and nothing otherwise.
func (s *syntheticInbox) TryReceive() (*engine.ImageBatch, bool) {
	now := time.Now()
	if now.Before(s.nextArrival) {
		return nil, false
	}

	interarrival := -math.Log(1-s.rng.Float64()) / s.rate
	s.nextArrival = now.Add(time.Duration(interarrival * float64(time.Second)))

	s.nextID++
	pipelineID := s.nextID % s.numPipelines
	deadline := now.Add(s.deadlineSlop).Unix()
	numImages := 4 + s.rng.Intn(12)
	batchSize := 1 << (10 + s.rng.Intn(8))

	batch := engine.NewBatch(pipelineID, numImages, batchSize, deadline, engine.StorageMMAP)
	return batch, true
}
