package engine

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestClassifyExit_ErrorChannelTimeoutCode(t *testing.T) {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, uint16(CodeModuleTimeout))

	got := classifyExit(errors.New("exit status 1"), buf)
	if got != CodeModuleTimeout {
		t.Errorf("classifyExit: got %v, want CodeModuleTimeout", got)
	}
}

func TestClassifyExit_ErrorChannelCustomCodeBelow100_Remapped(t *testing.T) {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, 7)

	got := classifyExit(errors.New("exit status 1"), buf)
	if got != CodeModuleCustomBase+7 {
		t.Errorf("classifyExit: got %v, want %v", got, CodeModuleCustomBase+7)
	}
}

func TestClassifyExit_ErrorChannelKnownCodeAbove100_Passthrough(t *testing.T) {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, uint16(CodeStorageError))

	got := classifyExit(errors.New("exit status 1"), buf)
	if got != CodeStorageError {
		t.Errorf("classifyExit: got %v, want CodeStorageError", got)
	}
}

func TestClassifyExit_NoErrorChannelBytes_ModuleCrash(t *testing.T) {
	got := classifyExit(errors.New("signal: killed"), nil)
	if got != CodeModuleCrash {
		t.Errorf("classifyExit: got %v, want CodeModuleCrash", got)
	}
}
