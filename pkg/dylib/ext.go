package dylib

import (
	"path/filepath"
	"runtime"
	"strings"
)

// Extension returns the dynamic library file extension for the host OS.
func Extension() string {
	return extensionFor(runtime.GOOS)
}

func extensionFor(goos string) string {
	switch goos {
	case "windows":
		return ".dll"
	case "darwin", "ios":
		return ".dylib"
	default:
		return ".so"
	}
}

// IsCandidate reports whether path names a plugin library for the host OS.
func IsCandidate(path string) bool {
	return strings.EqualFold(filepath.Ext(path), Extension())
}
