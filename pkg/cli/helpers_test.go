package cli

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/llx/pkg/config"
	"github.com/platinummonkey/llx/pkg/dylib"
	"github.com/platinummonkey/llx/pkg/plugins"
	"github.com/platinummonkey/llx/pkg/pluginsdk"
	"github.com/platinummonkey/llx/pkg/protocol"
)

// captureOutput runs fn with os.Stdout redirected and returns what it printed.
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		io.Copy(&buf, r)
		close(done)
	}()

	runErr := fn()

	w.Close()
	os.Stdout = oldStdout
	<-done
	return buf.String(), runErr
}

// routerTransport runs a pluginsdk plugin in process.
type routerTransport struct {
	router *pluginsdk.Router
}

func (t routerTransport) ProtocolVersion() (uint32, error) { return protocol.Version, nil }
func (t routerTransport) Call(req []byte) ([]byte, error)  { return t.router.HandleRaw(req), nil }
func (routerTransport) Close() error                       { return nil }

// testEnv is a configuration file and a plugin directory whose libraries are
// served by in-process plugins.
type testEnv struct {
	configPath string
	pluginsDir string
	dataDir    string
}

func libName(name string) string {
	return "lib" + name + dylib.Extension()
}

// setupEnv installs ps in a fresh plugin directory, writes a configuration
// enabling the plugins named in enabled, and points LLX_CONFIG at it. Library
// files without a plugin fail to open.
func setupEnv(t *testing.T, cfg *config.Config, ps ...pluginsdk.Plugin) *testEnv {
	t.Helper()

	root := t.TempDir()
	env := &testEnv{
		configPath: filepath.Join(root, "config.yaml"),
		pluginsDir: filepath.Join(root, "plugins"),
		dataDir:    filepath.Join(root, "data"),
	}
	require.NoError(t, os.MkdirAll(env.pluginsDir, 0o755))
	require.NoError(t, os.MkdirAll(env.dataDir, 0o755))

	var mu sync.Mutex
	installed := make(map[string]pluginsdk.Plugin)
	for _, p := range ps {
		installed[libName(p.Name())] = p
		require.NoError(t, os.WriteFile(filepath.Join(env.pluginsDir, libName(p.Name())), nil, 0o755))
	}

	oldOpen := openLibrary
	openLibrary = func(path string) (plugins.Transport, error) {
		mu.Lock()
		defer mu.Unlock()
		p, ok := installed[filepath.Base(path)]
		if !ok {
			return nil, errors.New("not a plugin library")
		}
		return routerTransport{router: pluginsdk.NewRouter(p)}, nil
	}
	t.Cleanup(func() { openLibrary = oldOpen })

	if cfg == nil {
		cfg = config.Default()
	}
	cfg.PluginsDir = env.pluginsDir
	cfg.LogLevel = "error"
	require.NoError(t, cfg.Save(env.configPath))
	t.Setenv("LLX_CONFIG", env.configPath)
	return env
}

func (e *testEnv) writeData(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(e.dataDir, name), []byte(name), 0o644))
	}
}

func (e *testEnv) addJunk(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.pluginsDir, libName(name))
	require.NoError(t, os.WriteFile(path, []byte("junk"), 0o644))
	return path
}

func (e *testEnv) loadConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(e.configPath)
	require.NoError(t, err)
	return cfg
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return captureOutput(t, func() error {
		return NewRootCommand().ExecuteArgs(args)
	})
}

// tagPlugin tags every entry with its own name and fails on *.broken files.
type tagPlugin struct {
	name string
	long string
}

func (p tagPlugin) Name() string      { return p.name }
func (tagPlugin) Version() string     { return "0.1.0" }
func (tagPlugin) Description() string { return "tags entries" }

func (p tagPlugin) Decorate(e protocol.Entry) (protocol.Entry, error) {
	if strings.HasSuffix(e.Path, ".broken") {
		return e, errors.New("unreadable")
	}
	e.CustomFields = map[string]string{p.name: p.name + ":" + filepath.Base(e.Path)}
	e.FieldTypes = map[string]protocol.FieldType{p.name: {Kind: protocol.FieldBadge}}
	return e, nil
}

func (p tagPlugin) FormatField(e protocol.Entry, format string) (string, bool, error) {
	if format != protocol.FormatLong || p.long == "" {
		return "", false, nil
	}
	return p.long, true, nil
}

// actionPlugin records the actions it runs.
type actionPlugin struct {
	mu      sync.Mutex
	actions []string
}

func (*actionPlugin) Name() string        { return "ops" }
func (*actionPlugin) Version() string     { return "1.0.0" }
func (*actionPlugin) Description() string { return "runs actions" }

func (p *actionPlugin) PerformAction(action string, args []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if action == "fail" {
		return errors.New("action failed")
	}
	p.actions = append(p.actions, action+"("+strings.Join(args, ",")+")")
	return nil
}

func (p *actionPlugin) performed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.actions...)
}
