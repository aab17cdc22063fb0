package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/wasmerio/wasmer-go/wasmer"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// WasmRegistry loads one precompiled .wasm binary per module name from a
// directory, the sandboxed analog of the original's per-module .so file.
// Each module is expected to export:
//
//	alloc(size: i32) -> i32            // allocate size bytes in the module's linear memory
//	run(inPtr, inLen, paramsPtr, paramsLen: i32) -> i64 // packed (outPtr<<32 | outLen)
//
// and a memory named "memory". Modules are instantiated lazily on first
// lookup and cached for the registry's lifetime.
type WasmRegistry struct {
	dir    string
	engine *wasmer.Engine
	store  *wasmer.Store

	mu        sync.Mutex
	instances map[string]*wasmInstance
}

type wasmInstance struct {
	instance *wasmer.Instance
	memory   *wasmer.Memory
	alloc    *wasmer.Function
	run      *wasmer.Function
}

// NewWasmRegistry constructs a registry that loads "<dir>/<module>.wasm" on
// demand.
func NewWasmRegistry(dir string) *WasmRegistry {
	engine := wasmer.NewEngine()
	store := wasmer.NewStore(engine)
	return &WasmRegistry{
		dir:       dir,
		engine:    engine,
		store:     store,
		instances: make(map[string]*wasmInstance),
	}
}

func (r *WasmRegistry) loadInstance(name string) (*wasmInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[name]; ok {
		return inst, nil
	}

	path := filepath.Join(r.dir, name+".wasm")
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read wasm module %s: %v", ErrModuleNotRegistered, path, err)
	}

	module, err := wasmer.NewModule(r.store, bytes)
	if err != nil {
		return nil, fmt.Errorf("compile wasm module %s: %w", path, err)
	}
	importObject := wasmer.NewImportObject()
	instance, err := wasmer.NewInstance(module, importObject)
	if err != nil {
		return nil, fmt.Errorf("instantiate wasm module %s: %w", path, err)
	}

	memory, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, fmt.Errorf("wasm module %s missing exported memory: %w", name, err)
	}
	alloc, err := instance.Exports.GetFunction("alloc")
	if err != nil {
		return nil, fmt.Errorf("wasm module %s missing exported alloc: %w", name, err)
	}
	run, err := instance.Exports.GetFunction("run")
	if err != nil {
		return nil, fmt.Errorf("wasm module %s missing exported run: %w", name, err)
	}

	inst := &wasmInstance{instance: instance, memory: memory, alloc: alloc, run: run}
	r.instances[name] = inst
	return inst, nil
}

func (r *WasmRegistry) Lookup(name string) (ProcessFunction, error) {
	inst, err := r.loadInstance(name)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, batchIn []byte, params *structpb.Struct, errCh ErrorChannel) ([]byte, error) {
		return runWasm(inst, batchIn, params)
	}, nil
}

func runWasm(inst *wasmInstance, batchIn []byte, params *structpb.Struct) ([]byte, error) {
	paramsJSON, err := protojson.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params for wasm call: %w", err)
	}

	inPtr, err := writeBytes(inst, batchIn)
	if err != nil {
		return nil, err
	}
	paramsPtr, err := writeBytes(inst, paramsJSON)
	if err != nil {
		return nil, err
	}

	packed, err := inst.run.Call(int32(inPtr), int32(len(batchIn)), int32(paramsPtr), int32(len(paramsJSON)))
	if err != nil {
		return nil, fmt.Errorf("wasm run call: %w", err)
	}
	ret, ok := packed.(int64)
	if !ok {
		return nil, fmt.Errorf("wasm run returned unexpected type %T", packed)
	}
	outPtr := int32(ret >> 32)
	outLen := int32(ret & 0xffffffff)

	mem := inst.memory.Data()
	if int(outPtr)+int(outLen) > len(mem) {
		return nil, fmt.Errorf("wasm run returned out-of-bounds output region")
	}
	out := make([]byte, outLen)
	copy(out, mem[outPtr:outPtr+outLen])
	return out, nil
}

// Close drops the cached module instances, so the next Lookup of a name
// loads its .wasm file again. The wasmer engine and store are not released.
func (r *WasmRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances = make(map[string]*wasmInstance)
}

func writeBytes(inst *wasmInstance, data []byte) (int32, error) {
	ptr, err := inst.alloc.Call(int32(len(data)))
	if err != nil {
		return 0, fmt.Errorf("wasm alloc call: %w", err)
	}
	p, ok := ptr.(int32)
	if !ok {
		return 0, fmt.Errorf("wasm alloc returned unexpected type %T", ptr)
	}
	mem := inst.memory.Data()
	if int(p)+len(data) > len(mem) {
		return 0, fmt.Errorf("wasm alloc returned out-of-bounds region")
	}
	copy(mem[p:], data)
	return p, nil
}
