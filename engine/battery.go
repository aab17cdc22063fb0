package engine

import (
	"sync/atomic"
	"time"
)

// OrbitalPhase is Sunlit or Eclipse, driving whether the battery is
// currently being charged.
type OrbitalPhase int

const (
	Sunlit OrbitalPhase = iota
	Eclipse
)

func (p OrbitalPhase) String() string {
	if p == Sunlit {
		return "sunlit"
	}
	return "eclipse"
}

// BatteryParams configures the orbit model. Fields are used exactly as
// given (a zero field is not replaced by a default); DefaultBatteryParams
// supplies the defaults named in spec.md §3.
type BatteryParams struct {
	TotalWh     float64
	InitialSoC  float64
	LoadW       float64
	GenerationW float64
	OrbitPeriod time.Duration
	EclipseDur  time.Duration
	MinSoC      float64
	MaxSoC      float64
}

// DefaultBatteryParams returns the defaults named in spec.md §3.
func DefaultBatteryParams() BatteryParams {
	return BatteryParams{
		TotalWh:     92.0,
		InitialSoC:  0.7,
		LoadW:       16.5,
		GenerationW: 26.0,
		OrbitPeriod: 98 * time.Minute,
		EclipseDur:  33 * time.Minute,
		MinSoC:      0.2,
		MaxSoC:      1.0,
	}
}

// BatterySim is the single-threaded periodic task producing the current
// battery energy signal consumed by the Scheduler's heuristics.
// CurrentEnergyWh is safe to call concurrently with the simulator's own
// tick goroutine: energy is stored behind atomic.Value so readers never
// observe a torn value.
//
// The orbital phase is driven by a simulated time counter, not wall-clock
// elapsed: each tick advances simulated time by SimStep regardless of how
// often Run's ticker actually fires (battery_simulator.c's
// current_time_s += time_step_s). UpdatePeriod (the real tick interval) and
// SimStep (the simulated time advanced per tick) are independent knobs —
// conflating them would make the orbit cycle at the wrong rate relative to
// the energy integrated per tick.
type BatterySim struct {
	params BatteryParams

	simulated time.Duration // simulated time elapsed since start, advanced by SimStep per step()

	energyWh atomic.Value // float64

	stop chan struct{}
}

// NewBatterySim constructs a simulator starting at params.InitialSoC *
// params.TotalWh, with its simulated orbital clock at zero. epoch is
// retained only for API compatibility with callers that previously
// anchored a wall-clock start time; it no longer drives the orbit phase.
func NewBatterySim(params BatteryParams, epoch time.Time) *BatterySim {
	b := &BatterySim{params: params, stop: make(chan struct{})}
	b.energyWh.Store(params.InitialSoC * params.TotalWh)
	return b
}

// Run advances the simulator every UpdatePeriod until Stop is called, each
// tick integrating SimStep seconds of simulated energy flow regardless of
// UpdatePeriod's real-world pacing. Intended to run in its own goroutine for
// the process lifetime.
func (b *BatterySim) Run() {
	ticker := time.NewTicker(UpdatePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.step()
		case <-b.stop:
			return
		}
	}
}

// Stop halts the simulator's tick goroutine.
func (b *BatterySim) Stop() {
	close(b.stop)
}

func (b *BatterySim) step() {
	b.simulated += SimStep
	phase := b.phaseAt(b.simulated)

	pIn := 0.0
	if phase == Sunlit {
		pIn = b.params.GenerationW
	}
	deltaWh := (pIn - b.params.LoadW) * SimStep.Hours()

	cur := b.energyWh.Load().(float64)
	next := cur + deltaWh
	minWh := b.params.MinSoC * b.params.TotalWh
	maxWh := b.params.MaxSoC * b.params.TotalWh
	if next < minWh {
		next = minWh
	}
	if next > maxWh {
		next = maxWh
	}
	b.energyWh.Store(next)
}

func (b *BatterySim) phaseAt(elapsed time.Duration) OrbitalPhase {
	inOrbit := elapsed % b.params.OrbitPeriod
	if inOrbit < b.params.OrbitPeriod-b.params.EclipseDur {
		return Sunlit
	}
	return Eclipse
}

// CurrentEnergyWh returns the current battery charge. Safe for concurrent
// callers.
func (b *BatterySim) CurrentEnergyWh() float64 {
	return b.energyWh.Load().(float64)
}

// ApplyLoad atomically subtracts energyUWh (converted to Wh) from the
// current charge, floored at 0 — called by the Scheduler immediately after
// measuring a module's energy cost (spec.md §4.5.2 step d).
func (b *BatterySim) ApplyLoad(energyUWh float64) {
	deltaWh := energyUWh / 1e6
	for {
		cur := b.energyWh.Load().(float64)
		next := cur - deltaWh
		if next < 0 {
			next = 0
		}
		// CompareAndSwap on atomic.Value requires identical concrete
		// values; float64 equality on a value we just loaded is safe here
		// since nothing else narrows it between Load and CompareAndSwap
		// failing only forces a harmless retry.
		if b.energyWh.CompareAndSwap(cur, next) {
			return
		}
	}
}
