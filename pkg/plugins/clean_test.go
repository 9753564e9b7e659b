package plugins

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/llx/pkg/protocol"
)

func TestRegistry_CleanRemovesInvalidLibraries(t *testing.T) {
	dir := t.TempDir()
	libs := newFakeLibraries()
	good := libs.add(t, dir, "libgood", gitPlugin{})
	bad := libs.add(t, dir, "libbad", sizePlugin{})
	libs.versions["libbad"] = 99
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("keep me"), 0o644))

	registry := NewRegistry(WithRegistryLogger(quietLogger()))
	defer registry.Close()
	l := newTestLoader([]string{dir}, libs)

	report, err := registry.Clean(context.Background(), l, dir)
	require.NoError(t, err)

	assert.Equal(t, []string{good}, report.Valid)
	assert.Equal(t, []string{bad}, report.Removed)
	require.Contains(t, report.Invalid, bad)
	var mismatch *VersionMismatchError
	assert.ErrorAs(t, report.Invalid[bad], &mismatch)
	assert.Empty(t, report.Failed)

	assert.FileExists(t, good)
	assert.NoFileExists(t, bad)
	assert.FileExists(t, notes)
	assert.Equal(t, 0, registry.Len(), "validation does not register anything")
}

func TestRegistry_CleanRevalidatesLoadedPlugins(t *testing.T) {
	dir := t.TempDir()
	libs := newFakeLibraries()
	path := libs.add(t, dir, "libgit", gitPlugin{})

	registry := NewRegistry(WithRegistryLogger(quietLogger()))
	defer registry.Close()
	l := newTestLoader([]string{dir}, libs)
	l.Discover(context.Background(), registry)
	require.Equal(t, 1, registry.Len())

	report, err := registry.Clean(context.Background(), l, dir)
	require.NoError(t, err)

	assert.Equal(t, []string{path}, report.Valid)
	assert.Equal(t, 1, libs.openCount("libgit"), "a loaded library is checked through its handle")
	assert.Equal(t, 2, libs.last("libgit").count(protocol.KindGetName))
	assert.Equal(t, 1, registry.Len())
}

func TestRegistry_CleanUnloadsBrokenPlugin(t *testing.T) {
	dir := t.TempDir()
	libs := newFakeLibraries()
	path := libs.add(t, dir, "libgit", gitPlugin{})

	registry := NewRegistry(WithRegistryLogger(quietLogger()))
	defer registry.Close()
	l := newTestLoader([]string{dir}, libs)
	l.Discover(context.Background(), registry)
	require.Equal(t, 1, registry.Len())

	ft := libs.last("libgit")
	ft.intercept = func(req protocol.Message) ([]byte, error, bool) {
		if req.Kind() != protocol.KindGetName {
			return nil, nil, false
		}
		b, err := protocol.Encode(&protocol.NameResponse{Name: "impostor"})
		return b, err, true
	}

	report, err := registry.Clean(context.Background(), l, dir)
	require.NoError(t, err)

	assert.Equal(t, []string{path}, report.Removed)
	assert.ErrorIs(t, report.Invalid[path], ErrMalformedPlugin)
	assert.Equal(t, 0, registry.Len())
	assert.Equal(t, 1, ft.closeCount())
	assert.NoFileExists(t, path)
}

func TestRegistry_CleanMissingDirectory(t *testing.T) {
	registry := NewRegistry(WithRegistryLogger(quietLogger()))
	l := newTestLoader(nil, newFakeLibraries())

	_, err := registry.Clean(context.Background(), l, filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
