//go:build !windows
// +build !windows

package stonebed

import (
	"errors"
	"unsafe"

	"github.com/ebitengine/purego"
)

// Load the engine library on Unix systems using purego
func loadDynamicLibrary(path string) (unsafe.Pointer, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, err
	}
	return unsafe.Pointer(handle), nil
}

// Close the library
func closeLibrary(handle unsafe.Pointer) {
	if handle != nil {
		purego.Dlclose(uintptr(handle))
	}
}

// Get a symbol from the library
func getSymbol(handle unsafe.Pointer, name string) (uintptr, error) {
	if handle == nil {
		return 0, errors.New("invalid library handle")
	}

	sym, err := purego.Dlsym(uintptr(handle), name)
	if err != nil {
		return 0, err
	}

	return sym, nil
}

// syscallN invokes a resolved engine function.
func syscallN(fn uintptr, args ...uintptr) uintptr {
	r1, _, _ := purego.SyscallN(fn, args...)
	return r1
}
