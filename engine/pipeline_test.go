package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigTable_EnsureLoaded_CallsLoaderOnce(t *testing.T) {
	// GIVEN a table whose loader counts invocations
	calls := 0
	table := NewConfigTable(func() (map[int]*Pipeline, error) {
		calls++
		return map[int]*Pipeline{0: {ID: 0}}, nil
	})

	// WHEN EnsureLoaded is called twice in a row
	assert.NoError(t, table.EnsureLoaded())
	assert.NoError(t, table.EnsureLoaded())

	// THEN the loader only ran once, since the table was already loaded
	assert.Equal(t, 1, calls)
}

func TestConfigTable_Invalidate_ForcesReload(t *testing.T) {
	calls := 0
	table := NewConfigTable(func() (map[int]*Pipeline, error) {
		calls++
		return map[int]*Pipeline{0: {ID: 0}}, nil
	})
	table.EnsureLoaded()
	table.Invalidate()
	table.EnsureLoaded()

	assert.Equal(t, 2, calls)
}

func TestConfigTable_Version_BumpsOnEachLoad(t *testing.T) {
	table := NewConfigTable(func() (map[int]*Pipeline, error) {
		return map[int]*Pipeline{}, nil
	})
	v0 := table.Version()
	table.EnsureLoaded()
	v1 := table.Version()
	table.Invalidate()
	table.EnsureLoaded()
	v2 := table.Version()

	assert.Less(t, v0, v1)
	assert.Less(t, v1, v2)
}

func TestConfigTable_Set_InstallsAndMarksLoaded(t *testing.T) {
	// GIVEN a table constructed with no loader (test/bootstrap path)
	table := NewConfigTable(nil)

	// WHEN pipelines are installed directly via Set
	table.Set(map[int]*Pipeline{7: {ID: 7}})

	// THEN the table is immediately readable without invoking EnsureLoaded
	p, err := table.Pipeline(7)
	assert.NoError(t, err)
	assert.Equal(t, 7, p.ID)
}

func TestConfigTable_Pipeline_Unknown_ReturnsPipelineNotFound(t *testing.T) {
	table := NewConfigTable(nil)
	table.Set(map[int]*Pipeline{0: {ID: 0}})

	_, err := table.Pipeline(99)
	assert.ErrorIs(t, err, ErrPipelineNotFound)
}

func TestConfigTable_EnsureLoaded_LoaderError_LeavesTableUnloaded(t *testing.T) {
	// GIVEN a loader that always fails
	table := NewConfigTable(func() (map[int]*Pipeline, error) {
		return nil, errors.New("boom")
	})

	// WHEN EnsureLoaded is called
	err := table.EnsureLoaded()

	// THEN the error propagates and the table remains unloaded, so a later
	// successful load still gets a chance to run
	assert.Error(t, err)
	assert.False(t, table.loaded.Load())
}

func TestModule_IsDefaultOnly(t *testing.T) {
	defaultOnly := &Module{Implementations: map[EffortLevel]*Implementation{EffortDefault: {}}}
	multiEffort := &Module{Implementations: map[EffortLevel]*Implementation{EffortLow: {}, EffortHigh: {}}}

	assert.True(t, defaultOnly.isDefaultOnly())
	assert.False(t, multiEffort.isDefaultOnly())
}

func TestImplementation_CostDefaults_ApplyOnlyWhenZero(t *testing.T) {
	withHints := &Implementation{LatencyCostUS: 500, EnergyCostUWh: 1.5}
	assert.EqualValues(t, 500, withHints.latencyCostOrDefault())
	assert.EqualValues(t, 1.5, withHints.energyCostOrDefault())

	bare := &Implementation{}
	assert.EqualValues(t, DefaultLatencyCostUS, bare.latencyCostOrDefault())
	assert.EqualValues(t, DefaultEnergyCostUWh, bare.energyCostOrDefault())
}
