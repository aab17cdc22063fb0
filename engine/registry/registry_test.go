package registry

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/protobuf/types/known/structpb"
)

func TestInProcessRegistry_Lookup_Found(t *testing.T) {
	called := false
	fn := func(ctx context.Context, batchIn []byte, params *structpb.Struct, errCh ErrorChannel) ([]byte, error) {
		called = true
		return batchIn, nil
	}
	r := NewInProcessRegistry(map[string]ProcessFunction{"decode": fn})

	got, err := r.Lookup("decode")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if _, callErr := got(context.Background(), []byte("x"), nil, nil); callErr != nil {
		t.Fatalf("calling resolved function: %v", callErr)
	}
	if !called {
		t.Errorf("expected resolved function to be invoked")
	}
}

func TestInProcessRegistry_Lookup_Missing(t *testing.T) {
	r := NewInProcessRegistry(map[string]ProcessFunction{})
	_, err := r.Lookup("nonexistent")
	if !errors.Is(err, ErrModuleNotRegistered) {
		t.Errorf("Lookup error: got %v, want wrapping ErrModuleNotRegistered", err)
	}
}
