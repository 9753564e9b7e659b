package plugins

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/llx/pkg/dylib"
	"github.com/platinummonkey/llx/pkg/pluginsdk"
	"github.com/platinummonkey/llx/pkg/protocol"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakeTransport runs a pluginsdk plugin in process behind the Transport
// interface, counting requests and optionally overriding answers.
type fakeTransport struct {
	version uint32
	router  *pluginsdk.Router
	delay   time.Duration

	// intercept, when it returns ok, replaces the plugin's answer.
	intercept func(req protocol.Message) (raw []byte, err error, ok bool)

	mu       sync.Mutex
	requests []protocol.Message
	closed   int

	inflight    int32
	maxInflight int32
}

func newFakeTransport(p pluginsdk.Plugin) *fakeTransport {
	return &fakeTransport{version: protocol.Version, router: pluginsdk.NewRouter(p)}
}

func (f *fakeTransport) ProtocolVersion() (uint32, error) {
	return f.version, nil
}

func (f *fakeTransport) Call(req []byte) ([]byte, error) {
	n := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		max := atomic.LoadInt32(&f.maxInflight)
		if n <= max || atomic.CompareAndSwapInt32(&f.maxInflight, max, n) {
			break
		}
	}

	msg, err := protocol.Decode(req)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.requests = append(f.requests, msg)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.intercept != nil {
		if raw, err, ok := f.intercept(msg); ok {
			return raw, err
		}
	}
	return f.router.HandleRaw(req), nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// count returns how many requests of kind the plugin received.
func (f *fakeTransport) count(kind protocol.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.requests {
		if m.Kind() == kind {
			n++
		}
	}
	return n
}

// decorated returns the paths of Decorate requests in arrival order.
func (f *fakeTransport) decorated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var paths []string
	for _, m := range f.requests {
		if d, ok := m.(*protocol.Decorate); ok {
			paths = append(paths, d.Entry.Path)
		}
	}
	return paths
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func mustEncode(t *testing.T, m protocol.Message) []byte {
	t.Helper()
	b, err := protocol.Encode(m)
	require.NoError(t, err)
	return b
}

// gitPlugin decorates single entries and batches with a status badge.
type gitPlugin struct{ name string }

func (p gitPlugin) Name() string {
	if p.name != "" {
		return p.name
	}
	return "git"
}
func (gitPlugin) Version() string     { return "1.2.0" }
func (gitPlugin) Description() string { return "git status badges" }

func (p gitPlugin) Decorate(e protocol.Entry) (protocol.Entry, error) {
	if strings.HasSuffix(e.Path, ".broken") {
		return e, errors.New("cannot read status")
	}
	e.CustomFields = map[string]string{p.Name(): "M " + filepath.Base(e.Path)}
	e.FieldTypes = map[string]protocol.FieldType{p.Name(): {Kind: protocol.FieldBadge, Format: "yellow"}}
	return e, nil
}

func (p gitPlugin) DecorateBatch(entries []protocol.Entry, _ string) ([]protocol.Entry, error) {
	out := make([]protocol.Entry, len(entries))
	for i, e := range entries {
		d, err := p.Decorate(e)
		if err != nil {
			d = e
		}
		out[i] = d
	}
	return out, nil
}

func (p gitPlugin) FormatField(e protocol.Entry, format string) (string, bool, error) {
	if format != protocol.FormatLong {
		return "", false, nil
	}
	return "[" + p.Name() + "]", true, nil
}

// sizePlugin decorates one entry at a time only.
type sizePlugin struct{}

func (sizePlugin) Name() string        { return "size" }
func (sizePlugin) Version() string     { return "0.3.0" }
func (sizePlugin) Description() string { return "human readable sizes" }

func (sizePlugin) Decorate(e protocol.Entry) (protocol.Entry, error) {
	e.CustomFields = map[string]string{"size": "1K"}
	return e, nil
}

// opsPlugin supports configuration and actions.
type opsPlugin struct {
	mu         sync.Mutex
	configured []protocol.ConfigPayload
	actions    []string
}

func (*opsPlugin) Name() string        { return "ops" }
func (*opsPlugin) Version() string     { return "2.0.0" }
func (*opsPlugin) Description() string { return "operations" }

func (p *opsPlugin) Configure(payload protocol.ConfigPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configured = append(p.configured, payload)
	if payload.Theme == "needs-tools" {
		return &pluginsdk.MissingDependencyError{Dependencies: []string{"git", "rg"}}
	}
	return nil
}

func (p *opsPlugin) PerformAction(action string, args []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if action == "explode" {
		return errors.New("it exploded")
	}
	p.actions = append(p.actions, action+":"+strings.Join(args, ","))
	return nil
}

func testPath(name string) string {
	return filepath.Join("/plugins", "lib"+name+dylib.Extension())
}

func newTestHandle(t *testing.T, p pluginsdk.Plugin) (*Handle, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport(p)
	return newTestHandleWith(t, p.Name(), ft), ft
}

func newTestHandleWith(t *testing.T, name string, ft *fakeTransport) *Handle {
	t.Helper()
	h, err := NewHandle(context.Background(), testPath(name), ft, protocol.SupportedVersions, WithHandleLogger(quietLogger()))
	require.NoError(t, err)
	return h
}

// newTestRegistry registers and enables every plugin.
func newTestRegistry(t *testing.T, ps ...pluginsdk.Plugin) (*Registry, map[string]*fakeTransport) {
	t.Helper()
	r := NewRegistry(WithRegistryLogger(quietLogger()))
	transports := make(map[string]*fakeTransport)
	for _, p := range ps {
		h, ft := newTestHandle(t, p)
		require.NoError(t, r.Register(h))
		require.NoError(t, r.Enable(h.Name()))
		transports[h.Name()] = ft
	}
	t.Cleanup(func() { _ = r.Close() })
	return r, transports
}

func entriesN(n int) []protocol.Entry {
	entries := make([]protocol.Entry, n)
	for i := range entries {
		entries[i] = protocol.Entry{
			Path:     filepath.Join("/data", "file"+itoa(i)+".txt"),
			Metadata: &protocol.EntryMetadata{Size: uint64(i), IsFile: true},
		}
	}
	return entries
}

func itoa(i int) string {
	const digits = "0123456789"
	if i == 0 {
		return "0"
	}
	var b []byte
	for ; i > 0; i /= 10 {
		b = append([]byte{digits[i%10]}, b...)
	}
	return string(b)
}
