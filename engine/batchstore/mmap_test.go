package batchstore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestMmapStore_SetupReadUploadRelease_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	s, err := NewMmapStore(dir)
	if err != nil {
		t.Fatalf("NewMmapStore: %v", err)
	}
	uuid := "batch-mmap-1"

	if err := s.Setup(uuid, ModeMMAP, 32); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	payload := bytes.Repeat([]byte{0xCD}, 32)
	if err := s.Upload(uuid, payload, 1, 32); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	data, err := s.Read(uuid)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("Read: got %x, want %x", data, payload)
	}

	if err := s.Release(uuid); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, uuid+".bin")); !os.IsNotExist(err) {
		t.Errorf("expected backing file removed after Release")
	}
}

func TestMmapStore_Read_UnknownUUID_ReturnsNotFound(t *testing.T) {
	s, err := NewMmapStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewMmapStore: %v", err)
	}
	if _, err := s.Read("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read: got %v, want ErrNotFound", err)
	}
}
