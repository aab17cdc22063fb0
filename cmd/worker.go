package cmd

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/satimg/dipp/engine"
	"github.com/satimg/dipp/engine/registry"
)

// errFD is the fd inherited from the parent's cmd.ExtraFiles — the
// original's error_pipe, reborn as fd 3 in the child (SPEC_FULL.md §4.4).
const errFD = 3

var workerCmd = &cobra.Command{
	Use:    engine.WorkerSubcommand + " <module> <level>",
	Hidden: true,
	Args:   cobra.ExactArgs(2),
	Run:    runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(_ *cobra.Command, args []string) {
	moduleName, levelName := args[0], args[1]
	errChan := os.NewFile(errFD, "error-channel")

	var req engine.WorkerRequest
	if err := gob.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorCode(errChan, uint16(engine.CodeIPCError))
		logrus.Errorf("worker: decode request failed: %v", err)
		os.Exit(1)
	}

	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	timer := time.AfterFunc(timeout, func() {
		writeErrorCode(errChan, uint16(engine.CodeModuleTimeout))
		os.Exit(1)
	})
	defer timer.Stop()

	reg := buildRegistry()
	fn, err := reg.Lookup(moduleName)
	if err != nil {
		writeErrorCode(errChan, uint16(engine.CodeModuleCrash))
		logrus.Errorf("worker: %v", err)
		os.Exit(1)
	}

	var params structpb.Struct
	if err := protojson.Unmarshal(req.ParamsJSON, &params); err != nil {
		writeErrorCode(errChan, uint16(engine.CodeConfigDecode))
		logrus.Errorf("worker: decode params failed: %v", err)
		os.Exit(1)
	}

	ch := &errorChannel{f: errChan}
	out, err := fn(context.Background(), req.Batch.Data, &params, ch)
	if err != nil {
		if !ch.wrote {
			writeErrorCode(errChan, uint16(engine.CodeModuleCrash))
		}
		logrus.Errorf("worker: module %s/%s failed: %v", moduleName, levelName, err)
		os.Exit(1)
	}

	resultBatch := req.Batch
	resultBatch.Data = out
	resultBatch.Progress++

	var stdout bytes.Buffer
	if err := gob.NewEncoder(&stdout).Encode(engine.WorkerResponse{Batch: resultBatch}); err != nil {
		writeErrorCode(errChan, uint16(engine.CodeIPCError))
		logrus.Errorf("worker: encode response failed: %v", err)
		os.Exit(1)
	}
	os.Stdout.Write(stdout.Bytes())
}

func writeErrorCode(f *os.File, code uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], code)
	f.Write(buf[:])
}

type errorChannel struct {
	f     *os.File
	wrote bool
}

func (c *errorChannel) WriteCode(code uint16) {
	writeErrorCode(c.f, code)
	c.wrote = true
}

// buildRegistry selects InProcessRegistry or WasmRegistry based on
// DIPP_MODULE_DIR, inherited from the parent process's environment (exec.Cmd
// copies the parent's environment to the child unless overridden).
func buildRegistry() registry.Registry {
	if dir := os.Getenv("DIPP_MODULE_DIR"); dir != "" {
		return registry.NewWasmRegistry(dir)
	}
	return registry.NewInProcessRegistry(builtinModules())
}

// builtinModules provides a small set of locally-defined modules usable
// without a wasm module directory, so the reference CLI runs end-to-end out
// of the box. Real deployments supply their precompiled implementations via
// DIPP_MODULE_DIR.
func builtinModules() map[string]registry.ProcessFunction {
	passthrough := func(_ context.Context, in []byte, _ *structpb.Struct, _ registry.ErrorChannel) ([]byte, error) {
		return in, nil
	}
	return map[string]registry.ProcessFunction{
		"decode":    passthrough,
		"calibrate": passthrough,
		"detect":    passthrough,
		"compress":  passthrough,
	}
}
