// Package registry resolves a module name to a callable entry point. It is
// the Go-native analog of the original's dlopen("/usr/share/pipeline/%s.so")
// dynamic loading: the Scheduler never calls a module directly, it asks a
// Registry to look one up, and the worker subcommand (cmd/worker.go) is the
// only process that ever calls the resolved function.
package registry

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// ErrorChannel lets a module write a code < 100 (remapped by the executor
// to CodeModuleCustomBase+code) before returning a non-nil error, matching
// the original's explicit error_channel parameter.
type ErrorChannel interface {
	WriteCode(code uint16)
}

// ProcessFunction is the callable signature every registered module
// implementation satisfies: fn(ctx, batch_in, params, error_channel) -> batch_out.
type ProcessFunction func(ctx context.Context, batchIn []byte, params *structpb.Struct, errCh ErrorChannel) ([]byte, error)

// Registry resolves a module name to its ProcessFunction.
type Registry interface {
	Lookup(name string) (ProcessFunction, error)
}

var ErrModuleNotRegistered = fmt.Errorf("module not registered")

// InProcessRegistry is a static map of Go closures, used by tests and for
// locally-defined modules that don't need wasm sandboxing.
type InProcessRegistry struct {
	fns map[string]ProcessFunction
}

// NewInProcessRegistry constructs a registry from a name->function map.
func NewInProcessRegistry(fns map[string]ProcessFunction) *InProcessRegistry {
	return &InProcessRegistry{fns: fns}
}

func (r *InProcessRegistry) Lookup(name string) (ProcessFunction, error) {
	fn, ok := r.fns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotRegistered, name)
	}
	return fn, nil
}
