package cmd

import (
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/satimg/dipp/engine"
)

// demoPipelines builds a small fixed pipeline table usable without a real
// ConfigSource, exercising both the default-only and multi-effort branches
// of the heuristic. Used when --config-dir is not supplied.
func demoPipelines() map[int]*engine.Pipeline {
	emptyParams, _ := structpb.NewStruct(map[string]interface{}{})

	decode := &engine.Module{
		Name: "decode",
		Implementations: map[engine.EffortLevel]*engine.Implementation{
			engine.EffortDefault: {Hash: 1, LatencyCostUS: 2000, EnergyCostUWh: 2.0, Parameters: emptyParams, Entry: "decode"},
		},
	}
	calibrate := &engine.Module{
		Name: "calibrate",
		Implementations: map[engine.EffortLevel]*engine.Implementation{
			engine.EffortHigh:   {Hash: 2, LatencyCostUS: 2_500_000, EnergyCostUWh: 8.0, Parameters: emptyParams, Entry: "calibrate"},
			engine.EffortMedium: {Hash: 3, LatencyCostUS: 800_000, EnergyCostUWh: 4.0, Parameters: emptyParams, Entry: "calibrate"},
			engine.EffortLow:    {Hash: 4, LatencyCostUS: 300_000, EnergyCostUWh: 1.5, Parameters: emptyParams, Entry: "calibrate"},
		},
	}
	detect := &engine.Module{
		Name: "detect",
		Implementations: map[engine.EffortLevel]*engine.Implementation{
			engine.EffortHigh:   {Hash: 5, LatencyCostUS: 1_800_000, EnergyCostUWh: 6.0, Parameters: emptyParams, Entry: "detect"},
			engine.EffortMedium: {Hash: 6, LatencyCostUS: 600_000, EnergyCostUWh: 3.0, Parameters: emptyParams, Entry: "detect"},
		},
	}
	compress := &engine.Module{
		Name: "compress",
		Implementations: map[engine.EffortLevel]*engine.Implementation{
			engine.EffortDefault: {Hash: 7, LatencyCostUS: 1500, EnergyCostUWh: 1.0, Parameters: emptyParams, Entry: "compress"},
		},
	}

	return map[int]*engine.Pipeline{
		0: {ID: 0, Modules: []*engine.Module{decode, calibrate, detect, compress}},
		1: {ID: 1, Modules: []*engine.Module{decode, compress}},
	}
}
