package engine

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// WorkerSubcommand is the hidden CLI subcommand the executor re-execs into;
// cmd/worker.go registers a cobra command with this name.
const WorkerSubcommand = "__module-worker"

// BackstopMargin is added to ModuleTimeout to produce the parent's context
// deadline: the worker's own time.AfterFunc alarm should always fire first,
// so the parent-side deadline only catches a worker stuck somewhere that
// can't observe its own alarm (e.g. blocked in an uninterruptible syscall).
const BackstopMargin = 500 * time.Millisecond

// WorkerRequest is gob-encoded to the worker's stdin: the input batch, the
// module/effort-level to run, and its decoded parameter list.
type WorkerRequest struct {
	Module     string
	Level      EffortLevel
	ParamsJSON []byte // structpb.Struct, protojson-encoded (gob can't handle proto messages directly)
	Batch      ImageBatch
	TimeoutMS  int64
}

// WorkerResponse is gob-decoded from the worker's stdout on a clean exit.
type WorkerResponse struct {
	Batch ImageBatch
}

// ModuleExecutor runs one module implementation in an isolated subordinate
// process (a re-exec of the current binary into WorkerSubcommand), per
// SPEC_FULL.md §4.4.
type ModuleExecutor struct {
	Config *ConfigTable // invalidated when the subordinate fails or returns no valid output
}

// NewModuleExecutor constructs an executor that invalidates cfg on module
// failure, forcing the Scheduler to reload pipeline/module config before
// the next attempt (spec.md §4.4 step 4).
func NewModuleExecutor(cfg *ConfigTable) *ModuleExecutor {
	return &ModuleExecutor{Config: cfg}
}

// Run executes moduleName at the given effort level against batch, with
// params as its decoded ModuleParameterList. timeout is the module's own
// wall-clock budget; the parent additionally bounds the whole call at
// timeout+BackstopMargin.
func (e *ModuleExecutor) Run(ctx context.Context, moduleName string, level EffortLevel, params *structpb.Struct, batch *ImageBatch, timeout time.Duration) (*ImageBatch, error) {
	paramsJSON, err := protojson.Marshal(params)
	if err != nil {
		return nil, newErr(CodeConfigDecode, batch.UUID, fmt.Errorf("marshal module params: %w", err))
	}

	req := WorkerRequest{
		Module:     moduleName,
		Level:      level,
		ParamsJSON: paramsJSON,
		Batch:      *batch,
		TimeoutMS:  timeout.Milliseconds(),
	}
	var stdin bytes.Buffer
	if err := gob.NewEncoder(&stdin).Encode(req); err != nil {
		return nil, newErr(CodeIPCError, batch.UUID, fmt.Errorf("encode worker request: %w", err))
	}

	errRead, errWrite, err := os.Pipe()
	if err != nil {
		return nil, newErr(CodeIPCError, batch.UUID, fmt.Errorf("create error channel: %w", err))
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout+BackstopMargin)
	defer cancel()

	cmd := exec.CommandContext(runCtx, os.Args[0], WorkerSubcommand, moduleName, level.String())
	cmd.Stdin = &stdin
	cmd.ExtraFiles = []*os.File{errWrite}
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr

	startErr := cmd.Start()
	errWrite.Close() // parent's copy; the child keeps its own (fd 3)
	if startErr != nil {
		errRead.Close()
		return nil, newErr(CodeIPCError, batch.UUID, fmt.Errorf("launch subordinate: %w", startErr))
	}

	errChanBuf := make([]byte, 2)
	errChanN, _ := readFull(errRead, errChanBuf)
	errRead.Close()

	waitErr := cmd.Wait()

	if waitErr != nil {
		code := classifyExit(waitErr, errChanBuf[:errChanN])
		logrus.Errorf("module %s/%s failed for batch %s: %v (code=%s)", moduleName, level, batch.UUID, waitErr, code)
		e.Config.Invalidate()
		return nil, newErr(code, batch.UUID, waitErr)
	}

	var resp WorkerResponse
	if err := gob.NewDecoder(&stdout).Decode(&resp); err != nil {
		logrus.Errorf("module %s/%s produced no valid output for batch %s: %v", moduleName, level, batch.UUID, err)
		e.Config.Invalidate()
		return nil, newErr(CodeIPCError, batch.UUID, fmt.Errorf("decode worker response: %w", err))
	}
	return &resp.Batch, nil
}

// classifyExit maps a subordinate's failure onto the error taxonomy: a
// timeout/custom code read from the error channel, or ModuleCrash if the
// subordinate died without writing one (e.g. a signal).
func classifyExit(waitErr error, errChan []byte) Code {
	if len(errChan) == 2 {
		code := Code(binary.LittleEndian.Uint16(errChan))
		if code == CodeModuleTimeout {
			return CodeModuleTimeout
		}
		if code < 100 {
			return CodeModuleCustomBase + code
		}
		return code
	}
	return CodeModuleCrash
}

func readFull(r *os.File, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		k, err := r.Read(buf[n:])
		n += k
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
