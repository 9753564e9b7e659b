//go:build windows

package dylib

import (
	"github.com/ebitengine/purego"
	"golang.org/x/sys/windows"
)

func loadLibrary(path string) (uintptr, error) {
	h, err := windows.LoadLibrary(path)
	return uintptr(h), err
}

func librarySymbol(handle uintptr, name string) (uintptr, error) {
	return windows.GetProcAddress(windows.Handle(handle), name)
}

func releaseLibrary(handle uintptr) error {
	return windows.FreeLibrary(windows.Handle(handle))
}

func registerFunc(fptr any, addr uintptr) {
	purego.RegisterFunc(fptr, addr)
}
