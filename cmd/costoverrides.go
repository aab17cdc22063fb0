package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/satimg/dipp/engine"
)

// costOverrideFile is the on-disk shape of a --cost-overrides YAML file, a
// human-editable complement to the compressed protobuf descriptors
// FileConfigSource reads: a quick way to tune static cost hints for the
// built-in demo pipeline table during local testing, without touching Go
// source.
//
// module_name:
//
//	level: {latency_us: 1000, energy_uwh: 2.5}
type costOverrideFile map[string]map[string]struct {
	LatencyUS uint32  `yaml:"latency_us"`
	EnergyUWh float32 `yaml:"energy_uwh"`
}

// loadCostOverrides reads and parses a cost-overrides YAML file.
func loadCostOverrides(path string) (costOverrideFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cost overrides %s: %w", path, err)
	}
	var overrides costOverrideFile
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parse cost overrides %s: %w", path, err)
	}
	return overrides, nil
}

// apply rewrites the static cost hints of pipelines' modules in place,
// leaving unmentioned modules/levels untouched.
func (overrides costOverrideFile) apply(pipelines map[int]*engine.Pipeline) {
	for _, pipeline := range pipelines {
		for _, module := range pipeline.Modules {
			levels, ok := overrides[module.Name]
			if !ok {
				continue
			}
			for levelName, cost := range levels {
				level, ok := effortLevelFromName(levelName)
				if !ok {
					continue
				}
				impl, ok := module.Implementations[level]
				if !ok {
					continue
				}
				impl.LatencyCostUS = cost.LatencyUS
				impl.EnergyCostUWh = cost.EnergyUWh
			}
		}
	}
}

func effortLevelFromName(name string) (engine.EffortLevel, bool) {
	switch name {
	case "default":
		return engine.EffortDefault, true
	case "low":
		return engine.EffortLow, true
	case "medium":
		return engine.EffortMedium, true
	case "high":
		return engine.EffortHigh, true
	default:
		return 0, false
	}
}
