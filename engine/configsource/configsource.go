// Package configsource models the parameter-plane pipeline/module descriptor
// feed: protobuf-encoded, compressed Pipeline/Module descriptors arriving
// out-of-band and decoded into the engine's ConfigTable. It is an
// out-of-scope external collaborator, specified here only as a reference
// implementation (spec.md §1, §6).
package configsource

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Descriptor is one decoded pipeline/module descriptor: a pipeline id plus
// its modules, each carrying a decoded parameter list per effort level.
type Descriptor struct {
	PipelineID int
	Modules    []ModuleDescriptor
}

// ModuleDescriptor carries one module's per-effort-level parameter structs,
// keyed by the same small integer encoding as engine.EffortLevel, decoupled
// from the engine package so configsource has no dependency on it.
type ModuleDescriptor struct {
	Name       string
	Implementations map[int]*structpb.Struct
}

// Decompressor abstracts the wire compression codec. True brotli is not
// present anywhere in the dependency set this package was grounded on;
// zstdDecompressor stands in behind this interface so swapping in a real
// brotli codec later touches only this one type.
type Decompressor interface {
	Decompress(compressed []byte) ([]byte, error)
}

type zstdDecompressor struct {
	decoder *zstd.Decoder
}

// NewZstdDecompressor constructs the default Decompressor.
func NewZstdDecompressor() (Decompressor, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd decoder: %w", err)
	}
	return &zstdDecompressor{decoder: dec}, nil
}

func (d *zstdDecompressor) Decompress(compressed []byte) ([]byte, error) {
	return d.decoder.DecodeAll(compressed, nil)
}

// Source is the ConfigSource contract: fetch the current set of descriptors
// on demand, and notify a callback when they change.
type Source interface {
	Load() ([]Descriptor, error)
	Watch(onChange func()) error
	Close() error
}

// FileConfigSource watches a directory of "<pipeline_id>.pb.zst" files, each
// holding a compressed, protobuf-encoded structpb.Struct describing one
// pipeline's modules — a filesystem stand-in for the real parameter plane.
type FileConfigSource struct {
	dir          string
	decompressor Decompressor
	watcher      *fsnotify.Watcher
}

// NewFileConfigSource constructs a source rooted at dir.
func NewFileConfigSource(dir string) (*FileConfigSource, error) {
	dec, err := NewZstdDecompressor()
	if err != nil {
		return nil, err
	}
	return &FileConfigSource{dir: dir, decompressor: dec}, nil
}

func (s *FileConfigSource) Load() ([]Descriptor, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read config dir %s: %w", s.dir, err)
	}

	var descriptors []Descriptor
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".zst" {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		d, err := s.loadOne(path)
		if err != nil {
			// Config decode errors are per-descriptor: skip and continue
			// (spec.md §7).
			logrus.Warnf("skipping unreadable config descriptor %s: %v", path, err)
			continue
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

func (s *FileConfigSource) loadOne(path string) (Descriptor, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("read %s: %w", path, err)
	}
	raw, err := s.decompressor.Decompress(compressed)
	if err != nil {
		return Descriptor{}, fmt.Errorf("decompress %s: %w", path, err)
	}

	var msg structpb.Struct
	if err := proto.Unmarshal(raw, &msg); err != nil {
		return Descriptor{}, fmt.Errorf("unmarshal protobuf %s: %w", path, err)
	}
	return structToDescriptor(&msg)
}

// Watch installs an fsnotify watcher on dir, calling onChange for every
// write/create/remove event — the direct analog of the original's
// parameter-plane push model, reduced to a filesystem for a self-contained
// reference implementation.
func (s *FileConfigSource) Watch(onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir %s: %w", s.dir, err)
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					logrus.Infof("config descriptor changed: %s", event.Name)
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logrus.Warnf("config watcher error: %v", err)
			}
		}
	}()
	return nil
}

func (s *FileConfigSource) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

// structToDescriptor unpacks a generic structpb.Struct into a Descriptor.
// Expected shape: {"pipeline_id": number, "modules": [{"name": string,
// "implementations": {"default"|"low"|"medium"|"high": {...params}}}]}.
func structToDescriptor(msg *structpb.Struct) (Descriptor, error) {
	fields := msg.GetFields()
	pipelineIDVal, ok := fields["pipeline_id"]
	if !ok {
		return Descriptor{}, fmt.Errorf("descriptor missing pipeline_id")
	}
	d := Descriptor{PipelineID: int(pipelineIDVal.GetNumberValue())}

	modulesVal, ok := fields["modules"]
	if !ok {
		return d, nil
	}
	for _, modVal := range modulesVal.GetListValue().GetValues() {
		modFields := modVal.GetStructValue().GetFields()
		md := ModuleDescriptor{
			Name:            modFields["name"].GetStringValue(),
			Implementations: make(map[int]*structpb.Struct),
		}
		implsVal := modFields["implementations"].GetStructValue()
		for levelName, implStruct := range implsVal.GetFields() {
			level, ok := levelFromName(levelName)
			if !ok {
				continue
			}
			md.Implementations[level] = implStruct.GetStructValue()
		}
		d.Modules = append(d.Modules, md)
	}
	return d, nil
}

func levelFromName(name string) (int, bool) {
	switch name {
	case "default":
		return 0, true
	case "low":
		return 1, true
	case "medium":
		return 2, true
	case "high":
		return 3, true
	default:
		return 0, false
	}
}
