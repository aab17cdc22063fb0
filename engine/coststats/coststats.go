// Package coststats computes read-only diagnostics over a CostCache's valid
// entries: a periodic window into whether the heuristic is thrashing
// between effort levels, logged by the Scheduler at debug level. This has
// no analog in the original, which only printf-prints individual cache
// inserts; it is a supplementary, cheap, read-only feature.
package coststats

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Entry is the subset of engine.CostEntry coststats needs; kept local so
// this package has no dependency on the engine package.
type Entry struct {
	LatencyUS uint32
	EnergyUWh float32
}

// Summary reports distributional stats over a cache snapshot.
type Summary struct {
	Count        int
	LatencyP50US float64
	LatencyP95US float64
	LatencyMaxUS float64
	EnergyMeanUWh float64
}

// Summarize computes p50/p95/max latency and mean energy across entries.
// Returns the zero Summary for an empty snapshot.
func Summarize(entries []Entry) Summary {
	if len(entries) == 0 {
		return Summary{}
	}

	latencies := make([]float64, len(entries))
	energies := make([]float64, len(entries))
	maxLat := 0.0
	for i, e := range entries {
		latencies[i] = float64(e.LatencyUS)
		energies[i] = float64(e.EnergyUWh)
		if latencies[i] > maxLat {
			maxLat = latencies[i]
		}
	}

	sortedLat := append([]float64(nil), latencies...)
	sort.Float64s(sortedLat)

	return Summary{
		Count:         len(entries),
		LatencyP50US:  stat.Quantile(0.50, stat.Empirical, sortedLat, nil),
		LatencyP95US:  stat.Quantile(0.95, stat.Empirical, sortedLat, nil),
		LatencyMaxUS:  maxLat,
		EnergyMeanUWh: stat.Mean(energies, nil),
	}
}
