package engine

import "time"

// LookupResult classifies the outcome of one heuristic decision for a
// single module, matching the original's COST_MODEL_LOOKUP_RESULT enum.
type LookupResult int

const (
	// FoundCached means the chosen implementation's cost came from the
	// CostCache.
	FoundCached LookupResult = iota
	// FoundNotCached means the chosen implementation ran on static cost
	// hints; the caller must measure and insert after execution.
	FoundNotCached
	// NotFound means no implementation fits the current budgets.
	NotFound
)

func (r LookupResult) String() string {
	switch r {
	case FoundCached:
		return "found_cached"
	case FoundNotCached:
		return "found_not_cached"
	default:
		return "not_found"
	}
}

// Decision is one heuristic call's output: the outcome, the chosen effort
// level (meaningless when NotFound), and the fingerprint used for the cache
// lookup (also meaningless when NotFound, since no implementation was
// resolved to hash against).
type Decision struct {
	Result LookupResult
	Level  EffortLevel
	Fp     uint32
}

// requirements is the pair of per-call budgets every heuristic computes
// before considering any implementation (spec.md §4.5.1).
type requirements struct {
	modulesLeft  int
	latencyReqUS int64 // may be used as ∞ via hasNoLatencyLimit
	energyReqUWh float64
}

const infiniteLatency = int64(1) << 62

// computeRequirements derives modules_left, latency_req_µs and
// energy_req_µWh for the next undone module in batch's pipeline.
func computeRequirements(batch *ImageBatch, pipelineLen int, now time.Time, currentEnergyWh float64) requirements {
	modulesLeft := pipelineLen - (batch.Progress + 1)
	if modulesLeft < 1 {
		modulesLeft = 1
	}
	deadlineS := batch.Priority - now.Unix()
	latencyReqUS := (deadlineS * 1_000_000) / int64(modulesLeft)
	energyReqUWh := (currentEnergyWh - SafetyMarginWh) * 1e6
	return requirements{modulesLeft: modulesLeft, latencyReqUS: latencyReqUS, energyReqUWh: energyReqUWh}
}

// scaledEnergy scales a per-simulated-step energy cost hint by
// StepsPerUpdate, matching the battery sim's integration pacing.
func scaledEnergy(costUWh float32) float64 {
	return float64(costUWh) * float64(StepsPerUpdate)
}

// HeuristicPolicy picks an effort level (and resolves its fingerprint) for
// the next module of a batch, given the current CostCache and energy budget.
// Named apart from the Heuristic string type (config.go) that selects which
// policy is active.
type HeuristicPolicy interface {
	Select(module *Module, batch *ImageBatch, pipelineLen int, now time.Time, currentEnergyWh float64, cache CostCache) Decision
}

// NewHeuristic is the named-constructor factory for the two HeuristicPolicy
// implementations, panicking on an unknown name — mirrors the teacher's
// NewScheduler/NewPriorityPolicy factories.
func NewHeuristic(name Heuristic) HeuristicPolicy {
	switch name {
	case HeuristicBestEffort:
		return bestEffortHeuristic{}
	case HeuristicLowestEffort:
		return lowestEffortHeuristic{}
	default:
		panic("engine: unknown heuristic " + string(name))
	}
}

// judgeLevel evaluates a single effort level: resolves its implementation,
// computes its fingerprint, and decides FoundCached/FoundNotCached/NotFound
// against the given requirements. isLowest forces latencyReqUS to infinity,
// matching "if this is the lowest available level, finish the pipeline
// anyway" (spec.md §4.5.1).
func judgeLevel(module *Module, level EffortLevel, batch *ImageBatch, req requirements, isLowest bool, cache CostCache) Decision {
	impl, ok := module.impl(level)
	if !ok {
		return Decision{Result: NotFound, Level: level}
	}
	fp := Fingerprint(batch, impl.Hash)

	latencyReqUS := req.latencyReqUS
	if isLowest {
		latencyReqUS = infiniteLatency
	}

	if lat, eng, ok := cache.Lookup(fp); ok {
		scaledEng := scaledEnergy(eng)
		if int64(lat) <= latencyReqUS && scaledEng <= req.energyReqUWh {
			return Decision{Result: FoundCached, Level: level, Fp: fp}
		}
		return Decision{Result: NotFound, Level: level, Fp: fp}
	}

	lat := impl.latencyCostOrDefault()
	scaledEng := scaledEnergy(impl.energyCostOrDefault())
	if int64(lat) <= latencyReqUS && scaledEng <= req.energyReqUWh {
		return Decision{Result: FoundNotCached, Level: level, Fp: fp}
	}
	return Decision{Result: NotFound, Level: level, Fp: fp}
}

// judgeDefault implements get_default_implementation: energy-only
// admission, since there is nothing to choose between.
func judgeDefault(module *Module, batch *ImageBatch, req requirements, cache CostCache) Decision {
	impl, ok := module.impl(EffortDefault)
	if !ok {
		return Decision{Result: NotFound}
	}
	fp := Fingerprint(batch, impl.Hash)

	if _, eng, ok := cache.Lookup(fp); ok {
		if scaledEnergy(eng) <= req.energyReqUWh {
			return Decision{Result: FoundCached, Level: EffortDefault, Fp: fp}
		}
		return Decision{Result: NotFound, Fp: fp}
	}
	if scaledEnergy(impl.energyCostOrDefault()) <= req.energyReqUWh {
		return Decision{Result: FoundNotCached, Level: EffortDefault, Fp: fp}
	}
	return Decision{Result: NotFound, Fp: fp}
}

// bestEffortHeuristic descends High → Medium → Low, skipping levels whose
// latency gate the current requirement does not clear (spec.md §4.5.1).
type bestEffortHeuristic struct{}

func (bestEffortHeuristic) Select(module *Module, batch *ImageBatch, pipelineLen int, now time.Time, currentEnergyWh float64, cache CostCache) Decision {
	if module.isDefaultOnly() {
		req := computeRequirements(batch, pipelineLen, now, currentEnergyWh)
		return judgeDefault(module, batch, req, cache)
	}

	req := computeRequirements(batch, pipelineLen, now, currentEnergyWh)

	_, hasHigh := module.impl(EffortHigh)
	_, hasMedium := module.impl(EffortMedium)
	_, hasLow := module.impl(EffortLow)

	considerMedium := hasHigh && req.latencyReqUS < BestEffortMaxLatencyMediumUS
	considerLow := (hasHigh || hasMedium) && req.latencyReqUS < BestEffortMaxLatencyLowUS

	lowestAvailable := lowestAvailableLevel(hasHigh, hasMedium, hasLow)

	if hasHigh {
		if d := judgeLevel(module, EffortHigh, batch, req, lowestAvailable == EffortHigh, cache); d.Result != NotFound {
			return d
		}
	}
	if hasMedium && considerMedium {
		if d := judgeLevel(module, EffortMedium, batch, req, lowestAvailable == EffortMedium, cache); d.Result != NotFound {
			return d
		}
	}
	if hasLow && considerLow {
		if d := judgeLevel(module, EffortLow, batch, req, lowestAvailable == EffortLow, cache); d.Result != NotFound {
			return d
		}
	}
	return Decision{Result: NotFound}
}

// lowestEffortHeuristic skips High and Medium entirely, picking the lowest
// available effort level that meets its (possibly-infinite) latency and the
// energy budget — throughput over quality under queue pressure.
type lowestEffortHeuristic struct{}

func (lowestEffortHeuristic) Select(module *Module, batch *ImageBatch, pipelineLen int, now time.Time, currentEnergyWh float64, cache CostCache) Decision {
	if module.isDefaultOnly() {
		req := computeRequirements(batch, pipelineLen, now, currentEnergyWh)
		return judgeDefault(module, batch, req, cache)
	}

	req := computeRequirements(batch, pipelineLen, now, currentEnergyWh)

	for _, level := range []EffortLevel{EffortLow, EffortMedium, EffortHigh} {
		if _, ok := module.impl(level); ok {
			return judgeLevel(module, level, batch, req, true, cache)
		}
	}
	return Decision{Result: NotFound}
}

func lowestAvailableLevel(hasHigh, hasMedium, hasLow bool) EffortLevel {
	switch {
	case hasLow:
		return EffortLow
	case hasMedium:
		return EffortMedium
	default:
		return EffortHigh
	}
}
