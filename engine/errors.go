package engine

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Code is the 16-bit wire error code shared across the output/error channels
// and the inbox. Values below 100 are module-defined and get remapped to
// CodeModuleCustomBase+code by the executor; values >= 100 are system-defined.
type Code uint16

const (
	CodeNone Code = 0

	// System-defined, >= 100, mirroring the original's MODULE_EXIT_* family.
	CodeModuleTimeout Code = 100
	CodeModuleCrash   Code = 101
	CodeIPCError      Code = 102
	CodeStorageError  Code = 103
	CodeConfigDecode  Code = 104
	CodeQueueFull     Code = 105
	CodeNotFound      Code = 106
	CodePipelineNotFound Code = 107

	// CodeModuleCustomBase: module-defined codes (< 100) are remapped to
	// CodeModuleCustomBase+code before leaving the executor, so a caller
	// inspecting a Code can always tell a module-raised error from a
	// system one without also having the original raw byte.
	CodeModuleCustomBase Code = 1000
)

func (c Code) String() string {
	switch {
	case c == CodeNone:
		return "none"
	case c == CodeModuleTimeout:
		return "module_timeout"
	case c == CodeModuleCrash:
		return "module_crash"
	case c == CodeIPCError:
		return "ipc_error"
	case c == CodeStorageError:
		return "storage_error"
	case c == CodeConfigDecode:
		return "config_decode_error"
	case c == CodeQueueFull:
		return "queue_full"
	case c == CodeNotFound:
		return "not_found"
	case c == CodePipelineNotFound:
		return "pipeline_not_found"
	case c >= CodeModuleCustomBase:
		return fmt.Sprintf("module_custom(%d)", c-CodeModuleCustomBase)
	default:
		return fmt.Sprintf("code(%d)", uint16(c))
	}
}

// Error pairs a wire Code with an optional underlying cause (an IPC, storage
// or decode error), so callers can errors.As/Is against sentinel Codes while
// still getting the causal chain in logs.
type Error struct {
	Code  Code
	Batch string // ImageBatch.UUID, when known; empty for batch-independent errors
	Cause error
}

func (e *Error) Error() string {
	if e.Batch != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s (batch %s): %v", e.Code, e.Batch, e.Cause)
		}
		return fmt.Sprintf("%s (batch %s)", e.Code, e.Batch)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Cause)
	}
	return e.Code.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on Code alone, letting callers write errors.Is(err, &Error{Code: CodeModuleTimeout}).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

func newErr(code Code, batch string, cause error) *Error {
	return &Error{Code: code, Batch: batch, Cause: cause}
}

// Sentinel errors for errors.Is against the taxonomy in SPEC_FULL.md §7.
// Admission denial (a NotFound heuristic decision) is deliberately not
// reported as an error — it is a routine outcome of heuristic selection,
// not a failure (spec.md §7); the Scheduler never returns ErrNotFound for it.
var (
	ErrModuleTimeout     = &Error{Code: CodeModuleTimeout}
	ErrModuleCrash       = &Error{Code: CodeModuleCrash}
	ErrIPC               = &Error{Code: CodeIPCError}
	ErrStorage           = &Error{Code: CodeStorageError}
	ErrConfigDecode      = &Error{Code: CodeConfigDecode}
	ErrQueueFull         = &Error{Code: CodeQueueFull}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrPipelineNotFound  = &Error{Code: CodePipelineNotFound}
)

// lastError mirrors spec.md §7's "single process-wide current error
// parameter" the outside world may read, exposed as an atomically-swapped
// pointer rather than a global mutable struct field. ModuleExecutor.Run
// returns its error directly; Scheduler.Step returns none, so the Scheduler
// records its failures here, for parity with the original's read-back
// behavior.
var lastError atomic.Pointer[Error]

// setLastError records err as the current process-wide error, if err is (or
// wraps) an *Error. No-op otherwise.
func setLastError(err error) {
	if err == nil {
		return
	}
	var e *Error
	if errors.As(err, &e) {
		lastError.Store(e)
	}
}

// LastError returns the most recently recorded *Error, or nil if none has
// been recorded yet.
func LastError() *Error {
	return lastError.Load()
}
