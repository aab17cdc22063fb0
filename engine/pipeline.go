package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"google.golang.org/protobuf/types/known/structpb"
)

// EffortLevel selects which precompiled variant of a module to run.
type EffortLevel int

const (
	EffortDefault EffortLevel = iota
	EffortLow
	EffortMedium
	EffortHigh
)

func (e EffortLevel) String() string {
	switch e {
	case EffortDefault:
		return "default"
	case EffortLow:
		return "low"
	case EffortMedium:
		return "medium"
	case EffortHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Default uncached cost hints, used when CostCache has no entry yet and the
// implementation's own static hints are zero (SPEC_FULL.md §4.5.1).
const (
	DefaultLatencyCostUS   = 3000
	DefaultEnergyCostUWh   = 3.0
)

// Implementation is one precompiled effort-level variant of a Module.
type Implementation struct {
	Hash           uint32            // fingerprint seed component
	LatencyCostUS  uint32            // static cost hint, 0 => use DefaultLatencyCostUS
	EnergyCostUWh  float32           // static cost hint, 0 => use DefaultEnergyCostUWh
	Parameters     *structpb.Struct  // decoded module parameter list
	Entry          string            // ModuleRegistry lookup key for the callable entry point
}

func (impl *Implementation) latencyCostOrDefault() uint32 {
	if impl.LatencyCostUS == 0 {
		return DefaultLatencyCostUS
	}
	return impl.LatencyCostUS
}

func (impl *Implementation) energyCostOrDefault() float32 {
	if impl.EnergyCostUWh == 0 {
		return DefaultEnergyCostUWh
	}
	return impl.EnergyCostUWh
}

// Module holds up to four Implementations, keyed by effort level. Per
// spec.md §3: exactly one of {Default alone} or {one-or-more of Low/Medium/High}
// is populated.
type Module struct {
	Name            string
	Implementations map[EffortLevel]*Implementation
}

// impl looks up an implementation, reporting absence rather than panicking —
// NotFound is a routine outcome in the heuristic, not a programming error.
func (m *Module) impl(level EffortLevel) (*Implementation, bool) {
	impl, ok := m.Implementations[level]
	return impl, ok
}

func (m *Module) isDefaultOnly() bool {
	_, ok := m.Implementations[EffortDefault]
	return ok
}

// Pipeline is an ordered list of up to 20 Modules.
type Pipeline struct {
	ID      int
	Modules []*Module
}

func (p *Pipeline) Len() int { return len(p.Modules) }

const (
	MaxPipelines = 6
	MaxModules   = 20
)

// ConfigTable is the process-wide, interior-mutable Pipeline/Module state
// described in spec.md §9: an invalidate → lazy-rebuild singleton guarded by
// a version counter. Readers (the Scheduler) observe a consistent snapshot.
// Invalidate (called by ModuleExecutor on a module crash) only marks the
// table unloaded, so the next EnsureLoaded rebuilds it via the configured
// Loader; the previous pipelines stay readable until then. The version is
// bumped on every successful load or Set.
type ConfigTable struct {
	mu       sync.Mutex
	version  atomic.Uint64
	loaded   atomic.Bool
	pipelines map[int]*Pipeline

	// Loader rebuilds the pipeline table from the external config source
	// (engine/configsource). Left nil in tests that populate pipelines
	// directly via Set.
	Loader func() (map[int]*Pipeline, error)
}

// NewConfigTable constructs an empty, not-yet-loaded table.
func NewConfigTable(loader func() (map[int]*Pipeline, error)) *ConfigTable {
	return &ConfigTable{
		pipelines: make(map[int]*Pipeline),
		Loader:    loader,
	}
}

// EnsureLoaded rebuilds the table if it has been invalidated (or never
// loaded). Idempotent when already loaded — mirrors the original
// setup_cache_if_needed's is_setup guard.
func (c *ConfigTable) EnsureLoaded() error {
	if c.loaded.Load() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded.Load() {
		return nil
	}
	if c.Loader != nil {
		pipelines, err := c.Loader()
		if err != nil {
			return fmt.Errorf("loading pipeline/module config: %w", err)
		}
		c.pipelines = pipelines
	}
	c.loaded.Store(true)
	c.version.Add(1)
	return nil
}

// Invalidate forces the next EnsureLoaded to rebuild. Called by the
// ModuleExecutor after a module crash/timeout/nonzero exit, per
// SPEC_FULL.md §4.4 step 4.
func (c *ConfigTable) Invalidate() {
	c.loaded.Store(false)
}

// Version returns the current config generation, bumped on every successful
// (re)load.
func (c *ConfigTable) Version() uint64 {
	return c.version.Load()
}

// Set installs pipelines directly (test/bootstrap helper) and marks the
// table loaded.
func (c *ConfigTable) Set(pipelines map[int]*Pipeline) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pipelines = pipelines
	c.loaded.Store(true)
	c.version.Add(1)
}

// Pipeline looks up a pipeline by id.
func (c *ConfigTable) Pipeline(id int) (*Pipeline, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pipelines[id]
	if !ok {
		return nil, fmt.Errorf("%w: pipeline id %d", ErrPipelineNotFound, id)
	}
	return p, nil
}
