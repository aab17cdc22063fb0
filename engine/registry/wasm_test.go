package registry

import (
	"errors"
	"testing"
)

func TestWasmRegistry_Lookup_MissingModuleFile(t *testing.T) {
	r := NewWasmRegistry(t.TempDir())

	_, err := r.Lookup("nonexistent")
	if !errors.Is(err, ErrModuleNotRegistered) {
		t.Errorf("Lookup error: got %v, want wrapping ErrModuleNotRegistered", err)
	}
}

func TestWasmRegistry_Close_ClearsCachedInstances(t *testing.T) {
	r := NewWasmRegistry(t.TempDir())
	r.instances["fake"] = &wasmInstance{}

	r.Close()

	if len(r.instances) != 0 {
		t.Errorf("instances after Close: got %d, want 0", len(r.instances))
	}
}
