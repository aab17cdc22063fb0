// Package engine implements the batch-processing core of the on-satellite
// image pipeline: the scheduler, its deadline/energy-aware effort-level
// heuristic, the cost cache, the persistent priority queue, the battery
// signal, and the isolated module executor.
//
// # Reading Guide
//
// Start with these files to understand the core:
//   - batch.go: ImageBatch, the unit of work, and its invariants.
//   - pipeline.go: Pipeline/Module/Implementation and the config lifecycle.
//   - heuristic.go: the effort-level selection interface and judge logic.
//   - scheduler.go: the main loop tying queues, cache, heuristic and executor together.
//
// # Architecture
//
// engine defines the core types and the scheduler loop; pluggable collaborators
// that are out of scope for the core (config ingestion, dynamic module loading,
// image data storage, remote energy telemetry) live in sibling packages and are
// reached only through interfaces:
//   - engine/configsource: parameter-plane pipeline/module descriptor ingestion.
//   - engine/registry: dynamic loading of module effort-level implementations.
//   - engine/batchstore: image data materialization, upload and release.
//   - engine/energyprobe: real energy telemetry (mocked by default).
//   - engine/coststats: read-only cost-cache diagnostics.
//
// Two backends exist for CostCache and PQueue: an in-memory one and an
// mmap-backed one for crash-durable state across restarts. Both satisfy the
// same interface; callers pick a backend via STORAGE_MODE.
package engine
