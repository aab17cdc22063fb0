package engine

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Tunable constants, all named after their original C counterparts.
const (
	MaxEntries               = 100              // CostCache slot count
	MaxQueueSize              = 100              // PQueue capacity (ingest)
	MaxPartialQueueSize       = 10                // PQueue capacity (partial)
	LowQueueDepthThreshold    = 30                // ingest.size+partial.size threshold for heuristic switch

	BestEffortMaxLatencyMediumUS int64 = 3_000_000 // gate for considering Medium
	BestEffortMaxLatencyLowUS    int64 = 1_000_000 // gate for considering Low

	SafetyMarginWh = 64.4

	UpdatePeriod    = 10 * time.Millisecond // BatterySim tick interval
	SimStep         = 1 * time.Second       // simulated time advanced per tick
	StepsPerUpdate  = int(SimStep / UpdatePeriod)

	IdleSleep = 1 * time.Millisecond // Scheduler sleep when both queues are empty
)

// Heuristic selects which effort-selection policy the Scheduler runs.
type Heuristic string

const (
	HeuristicBestEffort   Heuristic = "BEST_EFFORT"
	HeuristicLowestEffort Heuristic = "LOWEST_EFFORT"
)

// EnvStorageMode reads STORAGE_MODE, defaulting to StorageMMAP and logging a
// warning on an unrecognized value (spec.md §6).
func EnvStorageMode() StorageMode {
	v := os.Getenv("STORAGE_MODE")
	if v == "" {
		return StorageMMAP
	}
	mode, ok := ParseStorageMode(v)
	if !ok {
		logrus.Warnf("STORAGE_MODE=%q not recognized, falling back to MMAP", v)
	}
	return mode
}

// EnvHeuristic reads HEURISTIC, defaulting to best-effort. This is the
// starting heuristic only — the Scheduler still switches per iteration based
// on queue depth (spec.md §4.5.1); the env var seeds the process before any
// batch has been observed.
func EnvHeuristic() Heuristic {
	v := os.Getenv("HEURISTIC")
	switch v {
	case string(HeuristicLowestEffort):
		return HeuristicLowestEffort
	case string(HeuristicBestEffort), "":
		return HeuristicBestEffort
	default:
		logrus.Warnf("HEURISTIC=%q not recognized, falling back to BEST_EFFORT", v)
		return HeuristicBestEffort
	}
}
