//go:build !darwin && !freebsd && !linux && !windows

package dylib

func loadLibrary(string) (uintptr, error) {
	return 0, ErrUnsupportedPlatform
}

func librarySymbol(uintptr, string) (uintptr, error) {
	return 0, ErrUnsupportedPlatform
}

func releaseLibrary(uintptr) error {
	return nil
}

func registerFunc(any, uintptr) {
	panic(ErrUnsupportedPlatform)
}
