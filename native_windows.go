//go:build windows
// +build windows

package stonebed

import (
	"errors"
	"syscall"
	"unsafe"
)

// Load the engine library on Windows systems
func loadDynamicLibrary(path string) (unsafe.Pointer, error) {
	handle, err := syscall.LoadLibrary(path)
	if err != nil {
		return nil, err
	}
	return unsafe.Pointer(uintptr(handle)), nil
}

// Close the library
func closeLibrary(handle unsafe.Pointer) {
	if handle != nil {
		syscall.FreeLibrary(syscall.Handle(uintptr(handle)))
	}
}

// Get a symbol from the library
func getSymbol(handle unsafe.Pointer, name string) (uintptr, error) {
	if handle == nil {
		return 0, errors.New("invalid library handle")
	}

	proc, err := syscall.GetProcAddress(syscall.Handle(uintptr(handle)), name)
	if err != nil {
		return 0, err
	}

	return uintptr(proc), nil
}

// syscallN invokes a resolved engine function.
func syscallN(fn uintptr, args ...uintptr) uintptr {
	r1, _, _ := syscall.SyscallN(fn, args...)
	return r1
}
