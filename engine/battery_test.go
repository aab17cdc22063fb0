package engine

import (
	"testing"
	"time"
)

func TestBatterySim_PhaseAt_SunlitThenEclipse(t *testing.T) {
	params := DefaultBatteryParams()
	epoch := time.Unix(0, 0)
	b := NewBatterySim(params, epoch)

	// WHEN elapsed time is well inside the sunlit portion of the orbit
	if got := b.phaseAt(1 * time.Minute); got != Sunlit {
		t.Errorf("phaseAt(1m): got %v, want Sunlit", got)
	}

	// THEN elapsed time inside the last EclipseDur of the orbit is Eclipse
	eclipseStart := params.OrbitPeriod - params.EclipseDur
	if got := b.phaseAt(eclipseStart + 1*time.Minute); got != Eclipse {
		t.Errorf("phaseAt(eclipseStart+1m): got %v, want Eclipse", got)
	}

	// AND the phase wraps around on the next orbit
	if got := b.phaseAt(params.OrbitPeriod + 1*time.Minute); got != Sunlit {
		t.Errorf("phaseAt(next orbit +1m): got %v, want Sunlit", got)
	}
}

func TestBatterySim_Step_ClampsToMaxSoC(t *testing.T) {
	// GIVEN a battery already at its max state of charge, in sunlight
	params := DefaultBatteryParams()
	params.InitialSoC = params.MaxSoC
	epoch := time.Unix(0, 0)
	b := NewBatterySim(params, epoch)

	// WHEN a step integrates net-positive energy flow
	b.step()

	// THEN the charge stays clamped at the max, never exceeding it
	maxWh := params.MaxSoC * params.TotalWh
	if got := b.CurrentEnergyWh(); got > maxWh {
		t.Errorf("CurrentEnergyWh after step: got %f, want <= %f", got, maxWh)
	}
}

func TestBatterySim_Step_ClampsToMinSoC(t *testing.T) {
	// GIVEN a battery already at its min state of charge
	params := DefaultBatteryParams()
	params.InitialSoC = params.MinSoC
	epoch := time.Unix(0, 0)
	b := NewBatterySim(params, epoch)

	// WHEN the simulated clock sits at the start of eclipse, so the next
	// step integrates net-negative energy flow (load only, no generation)
	eclipseStart := params.OrbitPeriod - params.EclipseDur
	b.simulated = eclipseStart
	b.step()

	// THEN the charge stays clamped at the min, never dropping below it
	minWh := params.MinSoC * params.TotalWh
	if got := b.CurrentEnergyWh(); got < minWh {
		t.Errorf("CurrentEnergyWh after step: got %f, want >= %f", got, minWh)
	}
}

func TestBatterySim_ApplyLoad_SubtractsAndFloorsAtZero(t *testing.T) {
	params := DefaultBatteryParams()
	params.InitialSoC = 0
	b := NewBatterySim(params, time.Now())

	// WHEN a load larger than the (zero) charge is applied
	b.ApplyLoad(1_000_000) // 1 Wh in uWh

	// THEN the charge is floored at zero rather than going negative
	if got := b.CurrentEnergyWh(); got != 0 {
		t.Errorf("CurrentEnergyWh after over-draining ApplyLoad: got %f, want 0", got)
	}
}

func TestBatterySim_ApplyLoad_SubtractsExpectedDelta(t *testing.T) {
	params := DefaultBatteryParams()
	params.InitialSoC = 1.0 // TotalWh = 92 -> starts at 92Wh
	b := NewBatterySim(params, time.Now())

	// WHEN 1,000,000 uWh (1Wh) of load is applied
	b.ApplyLoad(1_000_000)

	// THEN exactly 1Wh is subtracted
	want := params.TotalWh - 1.0
	if got := b.CurrentEnergyWh(); got != want {
		t.Errorf("CurrentEnergyWh after ApplyLoad: got %f, want %f", got, want)
	}
}
