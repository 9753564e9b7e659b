//go:build darwin || freebsd || linux

package dylib

import "github.com/ebitengine/purego"

func loadLibrary(path string) (uintptr, error) {
	// RTLD_LOCAL keeps each plugin's symbols private so two plugins exporting the
	// same contract names do not shadow each other.
	return purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
}

func librarySymbol(handle uintptr, name string) (uintptr, error) {
	return purego.Dlsym(handle, name)
}

func releaseLibrary(handle uintptr) error {
	return purego.Dlclose(handle)
}

func registerFunc(fptr any, addr uintptr) {
	purego.RegisterFunc(fptr, addr)
}
