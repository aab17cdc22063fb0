package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/satimg/dipp/engine/batchstore"
	"github.com/satimg/dipp/engine/coststats"
	"github.com/satimg/dipp/engine/energyprobe"
)

// Inbox is the external producer's message channel: an OS message-queue
// analog, drained non-blockingly by the Scheduler's main loop. A real
// deployment's Inbox implementation owns whatever IPC mechanism backs the
// parameter plane; the Scheduler only ever calls TryReceive.
type Inbox interface {
	// TryReceive returns the next pending batch, or ok=false if none is
	// currently available (never blocks).
	TryReceive() (batch *ImageBatch, ok bool)
}

// Scheduler is the heart of the system: the dual-queue admission loop and
// per-module effort-level selection via the current heuristic
// (SPEC_FULL.md §4.5).
type Scheduler struct {
	Ingest  PQueue
	Partial PQueue
	Cache   CostCache
	Config  *ConfigTable
	Battery *BatterySim
	Executor *ModuleExecutor
	Store   batchstore.Store
	Inbox   Inbox
	Probe   energyprobe.Probe // optional; nil disables the corroborating reading

	ModuleTimeout time.Duration

	coststatsEvery int
	iterations     uint64
}

// NewScheduler wires the five core components together. ModuleTimeout
// bounds each module invocation; a coststats summary is logged every 100
// iterations.
func NewScheduler(ingest, partial PQueue, cache CostCache, cfg *ConfigTable, battery *BatterySim, executor *ModuleExecutor, store batchstore.Store, inbox Inbox, moduleTimeout time.Duration) *Scheduler {
	return &Scheduler{
		Ingest:         ingest,
		Partial:        partial,
		Cache:          cache,
		Config:         cfg,
		Battery:        battery,
		Executor:       executor,
		Store:          store,
		Inbox:          inbox,
		ModuleTimeout:  moduleTimeout,
		coststatsEvery: 100,
	}
}

func storageModeFor(m StorageMode) batchstore.Mode {
	if m == StorageMEM {
		return batchstore.ModeMEM
	}
	return batchstore.ModeMMAP
}

// Run drives the main loop until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.Step(ctx)
	}
}

// Step runs exactly one main-loop iteration (spec.md §4.5): drain the
// inbox, pick the next batch, ensure config is loaded, update the
// heuristic, and run process (as many modules as the budgets allow) for up
// to two batches.
func (s *Scheduler) Step(ctx context.Context) {
	s.drainInbox()

	batch, ok := s.pickNext()
	if !ok {
		time.Sleep(IdleSleep)
		return
	}

	s.runOneTurn(ctx, batch)

	if s.Partial.Size() < MaxPartialQueueSize {
		if next, ok := s.Ingest.Dequeue(); ok {
			s.runOneTurn(ctx, next)
		}
	}

	s.iterations++
	if s.coststatsEvery > 0 && s.iterations%uint64(s.coststatsEvery) == 0 {
		s.logCostStats()
	}
}

func (s *Scheduler) drainInbox() {
	if s.Inbox == nil {
		return
	}
	for {
		batch, ok := s.Inbox.TryReceive()
		if !ok {
			return
		}
		if err := s.Store.Setup(batch.UUID, storageModeFor(batch.StorageMode), batch.NumImages*batch.BatchSize); err != nil {
			logrus.Errorf("batchstore setup failed for %s: %v", batch.UUID, err)
			setLastError(newErr(CodeStorageError, batch.UUID, err))
			continue
		}
		if err := s.Ingest.Enqueue(batch); err != nil {
			logrus.Warnf("ingest queue full, dropping batch %s: %v", batch.UUID, err)
			setLastError(err)
		}
	}
}

func (s *Scheduler) pickNext() (*ImageBatch, bool) {
	if batch, ok := s.Partial.Dequeue(); ok {
		return batch, true
	}
	return s.Ingest.Dequeue()
}

func (s *Scheduler) runOneTurn(ctx context.Context, batch *ImageBatch) {
	if err := s.Config.EnsureLoaded(); err != nil {
		logrus.Errorf("config reload failed: %v", err)
		setLastError(newErr(CodeConfigDecode, batch.UUID, err))
		return
	}

	heuristic := s.currentHeuristic()
	result, err := s.process(ctx, heuristic, batch)
	if err != nil {
		logrus.Errorf("process(%s) failed: %v", batch.UUID, err)
		setLastError(err)
		return
	}

	switch result {
	case processComplete:
		s.finishBatch(batch)
	case processPartial, processNotFound:
		if err := s.Partial.Enqueue(batch); err != nil {
			logrus.Warnf("partial queue full, dropping batch %s: %v", batch.UUID, err)
			setLastError(err)
		}
	}
}

// currentHeuristic implements the switching policy: best-effort while
// queue depth is below LowQueueDepthThreshold, else lowest-effort
// (spec.md §4.5.1).
func (s *Scheduler) currentHeuristic() HeuristicPolicy {
	depth := s.Ingest.Size() + s.Partial.Size()
	if depth < LowQueueDepthThreshold {
		return NewHeuristic(HeuristicBestEffort)
	}
	logrus.Infof("queue depth %d >= %d, switching to lowest-effort heuristic", depth, LowQueueDepthThreshold)
	return NewHeuristic(HeuristicLowestEffort)
}

type processOutcome int

const (
	processComplete processOutcome = iota
	processPartial
	processNotFound
)

// process implements load_pipeline_and_execute (spec.md §4.5.2): run as
// many of the batch's remaining modules as the current budgets allow, then
// report whether the pipeline is complete.
func (s *Scheduler) process(ctx context.Context, heuristic HeuristicPolicy, batch *ImageBatch) (processOutcome, error) {
	pipeline, err := s.Config.Pipeline(batch.PipelineID)
	if err != nil {
		return processNotFound, newErr(CodePipelineNotFound, batch.UUID, err)
	}

	for i := batch.Progress + 1; i < pipeline.Len(); i++ {
		module := pipeline.Modules[i]
		now := time.Now()
		decision := heuristic.Select(module, batch, pipeline.Len(), now, s.Battery.CurrentEnergyWh(), s.Cache)

		if decision.Result == NotFound {
			logrus.Debugf("batch %s: no implementation fits at module %d (%s), stopping this turn", batch.UUID, i, module.Name)
			return processPartial, nil
		}

		impl, _ := module.impl(decision.Level)
		start := time.Now()
		updated, err := s.Executor.Run(ctx, module.Name, decision.Level, impl.Parameters, batch, s.ModuleTimeout)
		if err != nil {
			return processNotFound, err
		}
		elapsedUS := time.Since(start).Microseconds()

		if decision.Result == FoundNotCached {
			energy := scaledEnergy(impl.EnergyCostUWh)
			s.Cache.Insert(decision.Fp, uint32(elapsedUS), impl.EnergyCostUWh)
			s.Battery.ApplyLoad(energy)
			s.maybeProbe()
		}

		batch.applyMutable(updated.toMutable())
	}

	if batch.Complete(pipeline.Len()) {
		return processComplete, nil
	}
	return processPartial, nil
}

// maybeProbe takes an optional corroborating energy reading. Per spec.md
// §6/§9, the Scheduler never uses this for admission — only BatterySim
// feeds the heuristic — and tolerates a probe that fails or is absent.
func (s *Scheduler) maybeProbe() {
	if s.Probe == nil {
		return
	}
	s.Probe.Start()
	reading, err := s.Probe.StopAndRead()
	if err != nil {
		logrus.Debugf("energy probe read failed (ignored, using static cost): %v", err)
		return
	}
	logrus.Debugf("energy probe corroborating reading: %.3f Wh", reading)
}

func (s *Scheduler) finishBatch(batch *ImageBatch) {
	data, err := s.Store.Read(batch.UUID)
	if err != nil {
		logrus.Errorf("batchstore read failed for %s: %v", batch.UUID, err)
		setLastError(newErr(CodeStorageError, batch.UUID, err))
		return
	}
	if err := s.Store.Upload(batch.UUID, data, batch.NumImages, batch.BatchSize); err != nil {
		logrus.Errorf("batchstore upload failed for %s: %v", batch.UUID, err)
		setLastError(newErr(CodeStorageError, batch.UUID, err))
		return
	}
	if err := s.Store.Release(batch.UUID); err != nil {
		logrus.Errorf("batchstore release failed for %s: %v", batch.UUID, err)
		setLastError(newErr(CodeStorageError, batch.UUID, err))
	}
}

func (s *Scheduler) logCostStats() {
	entries := s.Cache.Entries()
	costEntries := make([]coststats.Entry, len(entries))
	for i, e := range entries {
		costEntries[i] = coststats.Entry{LatencyUS: e.LatencyUS, EnergyUWh: e.EnergyUWh}
	}
	summary := coststats.Summarize(costEntries)
	logrus.Debugf("cost cache: %d entries, p50=%.0fµs p95=%.0fµs max=%.0fµs meanEnergy=%.2fµWh",
		summary.Count, summary.LatencyP50US, summary.LatencyP95US, summary.LatencyMaxUS, summary.EnergyMeanUWh)
}
