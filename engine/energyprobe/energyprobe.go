// Package energyprobe provides the future real-telemetry energy reading
// path, stubbed per spec.md §9's open question: "keep the probe behind an
// interface and make the stub selectable." The Scheduler never uses a
// Probe reading for admission (that comes from BatterySim); a probe
// reading is logged only as a corroborating observation.
package energyprobe

import (
	"math/rand"
	"sync"
)

// Probe is the EnergyProbe contract: start a measurement window, then read
// back the measured energy in Wh.
type Probe interface {
	Start()
	StopAndRead() (float32, error)
}

// MockProbe returns a jittered reading around a configured mean, standing
// in for the remote telemetry channel until one exists.
type MockProbe struct {
	mu      sync.Mutex
	rng     *rand.Rand
	MeanWh  float32
	JitterWh float32

	running bool
}

// NewMockProbe constructs a probe with the given mean/jitter, seeded for
// determinism in tests.
func NewMockProbe(meanWh, jitterWh float32, seed int64) *MockProbe {
	return &MockProbe{
		rng:      rand.New(rand.NewSource(seed)),
		MeanWh:   meanWh,
		JitterWh: jitterWh,
	}
}

func (p *MockProbe) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = true
}

func (p *MockProbe) StopAndRead() (float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	jitter := (p.rng.Float32()*2 - 1) * p.JitterWh
	return p.MeanWh + jitter, nil
}
