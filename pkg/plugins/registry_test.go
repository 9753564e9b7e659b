package plugins

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/llx/pkg/observability"
	"github.com/platinummonkey/llx/pkg/protocol"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()

	assert.NotNil(t, r)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.List())
	assert.Empty(t, r.Enabled())
	assert.NotNil(t, r.Health())
	assert.NotNil(t, r.Capabilities())
}

func TestRegistry_Register(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	r := NewRegistry(WithRegistryLogger(quietLogger()), WithRegistryMetrics(m, nil))
	defer r.Close()

	h, _ := newTestHandle(t, gitPlugin{})
	require.NoError(t, r.Register(h))

	got, err := r.Get("git")
	require.NoError(t, err)
	assert.Same(t, h, got)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PluginsLoaded))
	assert.False(t, r.IsEnabled("git"), "plugins start disabled")

	dup, _ := newTestHandle(t, gitPlugin{})
	assert.ErrorIs(t, r.Register(dup), ErrDuplicatePlugin)
	assert.Error(t, r.Register(nil))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Get_NotFound(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("missing")
	assert.ErrorIs(t, err, ErrPluginNotFound)
}

func TestRegistry_List(t *testing.T) {
	r, _ := newTestRegistry(t, sizePlugin{}, gitPlugin{}, gitPlugin{name: "alpha"})

	var names []string
	for _, h := range r.List() {
		names = append(names, h.Name())
	}
	assert.Equal(t, []string{"alpha", "git", "size"}, names)
}

func TestRegistry_Unregister(t *testing.T) {
	r, transports := newTestRegistry(t, gitPlugin{})

	require.NoError(t, r.Unregister("git"))
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 1, transports["git"].closeCount())
	assert.ErrorIs(t, r.Unregister("git"), ErrPluginNotFound)
}

func TestRegistry_UnregisterWaitsForCallers(t *testing.T) {
	r, transports := newTestRegistry(t, gitPlugin{})
	ft := transports["git"]
	ft.delay = 50 * time.Millisecond

	h, release, err := r.acquire("git")
	require.NoError(t, err)

	started := make(chan struct{})
	finished := make(chan protocol.Message, 1)
	go func() {
		defer release()
		close(started)
		finished <- h.Call(context.Background(), &protocol.GetVersion{})
	}()
	<-started

	require.NoError(t, r.Unregister("git"))

	select {
	case resp := <-finished:
		assert.IsType(t, &protocol.VersionResponse{}, resp, "the pinned call completes before the handle closes")
	default:
		t.Fatal("Unregister returned while a caller still held the plugin")
	}
	assert.Equal(t, 1, ft.closeCount())
}

func TestRegistry_EnableDisable(t *testing.T) {
	r := NewRegistry(WithRegistryLogger(quietLogger()), WithEnabled("size"))
	defer r.Close()

	git, _ := newTestHandle(t, gitPlugin{})
	size, _ := newTestHandle(t, sizePlugin{})
	require.NoError(t, r.Register(git))
	require.NoError(t, r.Register(size))

	assert.Equal(t, []string{"size"}, r.Enabled())

	require.NoError(t, r.Enable("git"))
	assert.True(t, r.IsEnabled("git"))
	assert.Equal(t, []string{"git", "size"}, r.Enabled())

	require.NoError(t, r.Disable("size"))
	assert.False(t, r.IsEnabled("size"))
	assert.Equal(t, []string{"git"}, r.Enabled())

	assert.ErrorIs(t, r.Enable("missing"), ErrPluginNotFound)
	assert.ErrorIs(t, r.Disable("missing"), ErrPluginNotFound)
}

func TestRegistry_EnabledBeforeLoad(t *testing.T) {
	r := NewRegistry(WithRegistryLogger(quietLogger()), WithEnabled("git", "never-loaded"))
	defer r.Close()

	assert.Empty(t, r.Enabled())

	h, _ := newTestHandle(t, gitPlugin{})
	require.NoError(t, r.Register(h))
	assert.Equal(t, []string{"git"}, r.Enabled())
}

func TestRegistry_Close(t *testing.T) {
	r := NewRegistry(WithRegistryLogger(quietLogger()))
	git, gitFT := newTestHandle(t, gitPlugin{})
	size, sizeFT := newTestHandle(t, sizePlugin{})
	require.NoError(t, r.Register(git))
	require.NoError(t, r.Register(size))

	require.NoError(t, r.Close())
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 1, gitFT.closeCount())
	assert.Equal(t, 1, sizeFT.closeCount())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r, _ := newTestRegistry(t, gitPlugin{}, sizePlugin{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = r.Decorate(context.Background(), entriesN(5), protocol.FormatDefault)
			_ = r.List()
			_ = r.Enabled()
			if i%2 == 0 {
				_ = r.Disable("size")
			} else {
				_ = r.Enable("size")
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2, r.Len())
}

func TestRegistry_PerformAction(t *testing.T) {
	ops := &opsPlugin{}
	r, _ := newTestRegistry(t, ops, gitPlugin{})
	ctx := context.Background()

	require.NoError(t, r.PerformAction(ctx, "ops", "refresh", []string{"a", "b"}))
	assert.Equal(t, []string{"refresh:a,b"}, ops.actions)
	assert.True(t, r.Health().Snapshot("ops").Healthy())

	err := r.PerformAction(ctx, "ops", "explode", nil)
	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, "it exploded", actionErr.Reason)
	assert.Equal(t, "explode", actionErr.Action)

	err = r.PerformAction(ctx, "git", "refresh", nil)
	var unsupported *UnsupportedRequestError
	require.ErrorAs(t, err, &unsupported)
	assert.Len(t, r.Health().Snapshot("git").Errors, 1)

	err = r.PerformAction(ctx, "missing", "refresh", nil)
	assert.ErrorIs(t, err, ErrPluginNotFound)
	assert.Len(t, r.Health().Snapshot("missing").Errors, 1)
}

func TestRegistry_PerformActionDisabled(t *testing.T) {
	ops := &opsPlugin{}
	r, transports := newTestRegistry(t, ops)
	require.NoError(t, r.Disable("ops"))

	err := r.PerformAction(context.Background(), "ops", "refresh", nil)
	assert.ErrorIs(t, err, ErrPluginDisabled)
	assert.Zero(t, transports["ops"].count(protocol.KindPerformAction))
}

func TestRegistry_DeliverConfig(t *testing.T) {
	ops := &opsPlugin{}
	r, _ := newTestRegistry(t, ops)
	h, err := r.Get("ops")
	require.NoError(t, err)

	payload := NewConfigPayload(ConfigOptions{HostVersion: "0.4.0", Theme: "dark", DefaultFormat: "long"})
	r.deliverConfig(context.Background(), h, payload)

	require.Len(t, ops.configured, 1)
	assert.Equal(t, "dark", ops.configured[0].Theme)
	assert.Equal(t, "0.4.0", ops.configured[0].Values["version"])
	assert.True(t, r.Health().Snapshot("ops").Healthy())
}

func TestRegistry_DeliverConfigMissingDependencies(t *testing.T) {
	ops := &opsPlugin{}
	r, _ := newTestRegistry(t, ops)
	h, err := r.Get("ops")
	require.NoError(t, err)

	r.deliverConfig(context.Background(), h, protocol.ConfigPayload{Theme: "needs-tools"})

	rec := r.Health().Snapshot("ops")
	assert.Equal(t, []string{"git", "rg"}, rec.MissingDependencies)
	require.Len(t, rec.Errors, 1)
	assert.Contains(t, rec.Errors[0].Message, "config: missing dependencies")
	_, err = r.Get("ops")
	assert.NoError(t, err, "a refused configuration does not unload the plugin")
}

func TestNewConfigPayload(t *testing.T) {
	payload := NewConfigPayload(ConfigOptions{
		HostVersion:   "0.4.0",
		Theme:         "solarized",
		DefaultFormat: "long",
		ShowIcons:     true,
		Shortcuts: map[string]Shortcut{
			"gs": {Plugin: "git", Action: "status"},
		},
	})

	assert.Equal(t, "solarized", payload.Theme)
	assert.Equal(t, "long", payload.DefaultFormat)
	assert.True(t, payload.ShowIcons)
	assert.Equal(t, map[string]string{"gs": "git:status"}, payload.Shortcuts)
	assert.Equal(t, map[string]string{
		"version":        "0.4.0",
		"api_version":    "1",
		"theme":          "solarized",
		"default_format": "long",
		"show_icons":     "true",
	}, payload.Values)
	assert.Nil(t, NewConfigPayload(ConfigOptions{}).Shortcuts)
}

func TestRegistry_Describe(t *testing.T) {
	ops := &opsPlugin{}
	r, _ := newTestRegistry(t, gitPlugin{}, ops)
	require.NoError(t, r.Disable("ops"))
	r.Health().RecordError("git", "once")

	infos := r.Describe(context.Background())
	require.Len(t, infos, 2)

	git := infos[0]
	assert.Equal(t, "git", git.Name)
	assert.Equal(t, "1.2.0", git.Version)
	assert.Equal(t, "git status badges", git.Description)
	assert.Equal(t, uint32(protocol.Version), git.ProtocolVersion)
	assert.Equal(t, testPath("git"), git.Path)
	assert.True(t, git.Enabled)
	assert.Equal(t, FormatSet{protocol.FormatDefault, protocol.FormatLong}, git.Formats)
	assert.Contains(t, git.Features, protocol.FeatureBatchDecorate)
	assert.Len(t, git.Health.Errors, 1)

	assert.Equal(t, "ops", infos[1].Name)
	assert.False(t, infos[1].Enabled)
	assert.Contains(t, infos[1].Features, protocol.FeatureActions)
	assert.Empty(t, infos[1].Formats)
}
