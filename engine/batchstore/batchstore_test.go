package batchstore

import (
	"bytes"
	"errors"
	"testing"
)

func TestMemStore_SetupReadUploadRelease_RoundTrips(t *testing.T) {
	s := NewMemStore()
	uuid := "batch-1"

	if err := s.Setup(uuid, ModeMEM, 16); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	data, err := s.Read(uuid)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(data) != 16 {
		t.Errorf("Read: got %d bytes, want 16", len(data))
	}

	payload := bytes.Repeat([]byte{0xAB}, 16)
	if err := s.Upload(uuid, payload, 1, 16); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := s.Release(uuid); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := s.Read(uuid); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read after Release: got %v, want ErrNotFound", err)
	}
}

func TestMemStore_Read_UnknownUUID_ReturnsNotFound(t *testing.T) {
	s := NewMemStore()
	if _, err := s.Read("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read: got %v, want ErrNotFound", err)
	}
}

func TestMemStore_Release_UnknownUUID_ReturnsNotFound(t *testing.T) {
	s := NewMemStore()
	if err := s.Release("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Release: got %v, want ErrNotFound", err)
	}
}
