// cmd/root.go
package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/satimg/dipp/engine"
	"github.com/satimg/dipp/engine/batchstore"
	"github.com/satimg/dipp/engine/configsource"
	"github.com/satimg/dipp/engine/energyprobe"
)

var (
	logLevel          string
	storageMode       string
	heuristicName     string
	moduleTimeout     time.Duration
	horizon           time.Duration
	stateDir          string
	configDir         string
	moduleDir         string
	arrivalRate       float64
	mockProbe         bool
	costOverridesPath string
)

var rootCmd = &cobra.Command{
	Use:   "dipp",
	Short: "Batch processing core of an on-satellite image pipeline",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler",
	Run:   runScheduler,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&storageMode, "storage-mode", "", "STORAGE_MODE override (MEM or MMAP); defaults to env or MMAP")
	runCmd.Flags().StringVar(&heuristicName, "heuristic", "", "HEURISTIC override (BEST_EFFORT or LOWEST_EFFORT); defaults to env or BEST_EFFORT")
	runCmd.Flags().DurationVar(&moduleTimeout, "module-timeout", 2*time.Second, "Per-module wall-clock timeout")
	runCmd.Flags().DurationVar(&horizon, "horizon", 0, "Run duration; 0 runs until interrupted")
	runCmd.Flags().StringVar(&stateDir, "state-dir", "./dipp-state", "Directory for mmap-backed cost cache and queue files")
	runCmd.Flags().StringVar(&configDir, "config-dir", "", "Directory of compressed protobuf pipeline descriptors; empty uses a built-in demo pipeline table")
	runCmd.Flags().StringVar(&moduleDir, "module-dir", "", "Directory of precompiled .wasm module implementations; empty uses built-in passthrough modules")
	runCmd.Flags().Float64Var(&arrivalRate, "rate", 2.0, "Synthetic inbox Poisson arrival rate, batches/sec")
	runCmd.Flags().BoolVar(&mockProbe, "mock-energy-probe", false, "Attach an energyprobe.MockProbe for a corroborating (non-admission) energy reading")
	runCmd.Flags().StringVar(&costOverridesPath, "cost-overrides", "", "YAML file of per-module/per-level static cost hint overrides for the demo pipeline table")

	rootCmd.AddCommand(runCmd)
}

func runScheduler(_ *cobra.Command, _ []string) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)

	if storageMode != "" {
		os.Setenv("STORAGE_MODE", storageMode)
	}
	if heuristicName != "" {
		os.Setenv("HEURISTIC", heuristicName)
	}
	if moduleDir != "" {
		os.Setenv("DIPP_MODULE_DIR", moduleDir)
	}
	mode := engine.EnvStorageMode()
	startHeuristic := engine.EnvHeuristic()

	logrus.Infof("starting scheduler: storage=%s heuristic=%s module_timeout=%s", mode, startHeuristic, moduleTimeout)

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		logrus.Fatalf("create state dir: %v", err)
	}

	cache, err := newCostCache(mode, stateDir)
	if err != nil {
		logrus.Fatalf("init cost cache: %v", err)
	}
	ingest, err := newPQueue(mode, stateDir, "ingest.bin", engine.MaxQueueSize)
	if err != nil {
		logrus.Fatalf("init ingest queue: %v", err)
	}
	partial, err := newPQueue(mode, stateDir, "partial.bin", engine.MaxPartialQueueSize)
	if err != nil {
		logrus.Fatalf("init partial queue: %v", err)
	}

	cfg := engine.NewConfigTable(configLoader())
	if err := cfg.EnsureLoaded(); err != nil {
		logrus.Fatalf("load pipeline config: %v", err)
	}

	battery := engine.NewBatterySim(engine.DefaultBatteryParams(), time.Now())
	go battery.Run()
	defer battery.Stop()

	executor := engine.NewModuleExecutor(cfg)

	store, err := newBatchStore(mode, stateDir)
	if err != nil {
		logrus.Fatalf("init batch store: %v", err)
	}

	inbox := newSyntheticInbox(arrivalRate, 30*time.Second, len(demoPipelines()), time.Now().UnixNano())

	scheduler := engine.NewScheduler(ingest, partial, cache, cfg, battery, executor, store, inbox, moduleTimeout)
	if mockProbe {
		scheduler.Probe = energyprobe.NewMockProbe(20.0, 2.0, 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if horizon > 0 {
		ctx, cancel = context.WithTimeout(ctx, horizon)
		defer cancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logrus.Info("received shutdown signal")
		cancel()
	}()

	scheduler.Run(ctx)
	logrus.Info("scheduler stopped")
}

func configLoader() func() (map[int]*engine.Pipeline, error) {
	if configDir == "" {
		return func() (map[int]*engine.Pipeline, error) {
			pipelines := demoPipelines()
			if costOverridesPath != "" {
				overrides, err := loadCostOverrides(costOverridesPath)
				if err != nil {
					return nil, err
				}
				overrides.apply(pipelines)
			}
			return pipelines, nil
		}
	}
	return func() (map[int]*engine.Pipeline, error) {
		src, err := configsource.NewFileConfigSource(configDir)
		if err != nil {
			return nil, err
		}
		defer src.Close()
		descriptors, err := src.Load()
		if err != nil {
			return nil, err
		}
		return pipelinesFromDescriptors(descriptors), nil
	}
}

func pipelinesFromDescriptors(descriptors []configsource.Descriptor) map[int]*engine.Pipeline {
	pipelines := make(map[int]*engine.Pipeline, len(descriptors))
	for _, d := range descriptors {
		pipeline := &engine.Pipeline{ID: d.PipelineID}
		for _, md := range d.Modules {
			module := &engine.Module{Name: md.Name, Implementations: make(map[engine.EffortLevel]*engine.Implementation)}
			for level, params := range md.Implementations {
				module.Implementations[engine.EffortLevel(level)] = &engine.Implementation{Parameters: params, Entry: md.Name}
			}
			pipeline.Modules = append(pipeline.Modules, module)
		}
		pipelines[d.PipelineID] = pipeline
	}
	return pipelines
}

func newCostCache(mode engine.StorageMode, stateDir string) (engine.CostCache, error) {
	if mode == engine.StorageMEM {
		return engine.NewMemCostCache(), nil
	}
	return engine.NewMmapCostCache(filepath.Join(stateDir, "cost_cache.bin"))
}

func newPQueue(mode engine.StorageMode, stateDir, filename string, capacity int) (engine.PQueue, error) {
	if mode == engine.StorageMEM {
		return engine.NewMemPQueue(capacity), nil
	}
	return engine.NewMmapPQueue(filepath.Join(stateDir, filename), capacity)
}

func newBatchStore(mode engine.StorageMode, stateDir string) (batchstore.Store, error) {
	if mode == engine.StorageMEM {
		return batchstore.NewMemStore(), nil
	}
	return batchstore.NewMmapStore(filepath.Join(stateDir, "batches"))
}
