package cli

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/llx/pkg/config"
	"github.com/platinummonkey/llx/pkg/lister"
	"github.com/platinummonkey/llx/pkg/observability"
	"github.com/platinummonkey/llx/pkg/plugins"
	"github.com/platinummonkey/llx/pkg/plugins/healthstore"
	"github.com/platinummonkey/llx/pkg/protocol"
)

// openLibrary opens plugin libraries for every command. Tests replace it with
// in-process plugins.
var openLibrary plugins.Opener = plugins.OpenLibrary

// globalFlags are accepted by every command that touches configuration.
type globalFlags struct {
	configPath string
	logLevel   string
}

func addGlobalFlags(fs *flag.FlagSet) {
	defaultPath := os.Getenv("LLX_CONFIG")
	if defaultPath == "" {
		defaultPath = config.DefaultPath()
	}
	fs.String("config", defaultPath, "Path to the llx configuration file")
	fs.String("log-level", "", "Log level (debug, info, warn, error); overrides the configuration")
}

// globals reads the global flags from a parsed flag set.
func globals(fs *flag.FlagSet) *globalFlags {
	return &globalFlags{
		configPath: fs.Lookup("config").Value.String(),
		logLevel:   fs.Lookup("log-level").Value.String(),
	}
}

// app is the plugin runtime wired from configuration.
type app struct {
	cfg        *config.Config
	configPath string
	log        *logrus.Logger

	gatherer *prometheus.Registry
	registry *plugins.Registry
	loader   *plugins.Loader
	store    *healthstore.Store
	lister   *lister.Lister

	shutdown *observability.ShutdownManager
}

// newApp loads configuration and builds the runtime. Plugins are not loaded
// until discover is called. The caller must call close.
func newApp(ctx context.Context, g *globalFlags) (*app, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if g.logLevel != "" {
		level = g.logLevel
	}
	log, err := observability.NewLogger(level, os.Stderr)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		configPath: g.configPath,
		log:        log,
		gatherer:   prometheus.NewRegistry(),
		lister:     lister.New(cfg.Workers, log),
		shutdown:   observability.NewShutdownManager(log, 10*time.Second),
	}

	// Steps run in reverse: the metrics file sees the plugins still loaded,
	// telemetry is flushed last.
	otelCfg := cfg.OTel
	otelCfg.ServiceVersion = Version
	providers, err := observability.InitOTel(ctx, otelCfg, log)
	if err != nil {
		log.Warnf("OpenTelemetry disabled: %v", err)
	} else if providers != nil {
		a.shutdown.Register("opentelemetry", func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, log)
		})
	}

	otelMetrics, err := observability.NewOTelMetrics()
	if err != nil {
		log.Warnf("OpenTelemetry metrics disabled: %v", err)
	}
	metrics := observability.NewMetrics(a.gatherer)

	healthOpts := []plugins.HealthOption{
		plugins.WithHealthLogger(log),
		plugins.WithHealthMetrics(metrics),
	}
	if cfg.HealthDB != "" {
		store, err := healthstore.Open(cfg.HealthDB)
		if err != nil {
			a.close()
			return nil, err
		}
		a.store = store
		a.shutdown.Register("health store", func(context.Context) error { return store.Close() })
		healthOpts = append(healthOpts, plugins.WithHealthStore(store))
	}

	a.registry = plugins.NewRegistry(
		plugins.WithRegistryLogger(log),
		plugins.WithRegistryMetrics(metrics, otelMetrics),
		plugins.WithHealthLedger(plugins.NewHealthLedger(healthOpts...)),
		plugins.WithWorkers(cfg.Workers),
		plugins.WithDecorationCacheSize(cfg.DecorationCacheSize),
		plugins.WithEnabled(cfg.EnabledPlugins...),
	)
	a.shutdown.Register("plugins", func(context.Context) error { return a.registry.Close() })
	if cfg.MetricsFile != "" {
		a.shutdown.Register("metrics file", func(context.Context) error {
			return observability.WriteMetricsFile(cfg.MetricsFile, a.gatherer)
		})
	}

	a.loader = plugins.NewLoader([]string{cfg.PluginsDir}, log,
		plugins.WithOpener(openLibrary),
		plugins.WithLoaderMetrics(metrics, otelMetrics),
		plugins.WithConfigPayload(plugins.NewConfigPayload(configOptions(cfg))),
	)
	return a, nil
}

// discover loads every plugin in the plugin directory. Rejected libraries are
// reported as warnings and never fail the command.
func (a *app) discover(ctx context.Context) *plugins.LoadReport {
	report := a.loader.Discover(ctx, a.registry)
	log := observability.FromContext(ctx, a.log)
	for _, rejected := range report.Rejected {
		log.Warnf("Skipping plugin: %v", rejected)
	}
	log.Debugf("Loaded %d plugins: %v", len(report.Loaded), report.Loaded)
	return report
}

func (a *app) close() {
	if err := a.shutdown.Shutdown(); err != nil {
		a.log.Warnf("Shutdown: %v", err)
	}
}

// withApp builds the runtime, runs fn under a signal-aware context and shuts
// the runtime down afterwards.
func withApp(g *globalFlags, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := observability.SignalContext(context.Background())
	defer stop()

	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	ctx = observability.WithLogger(ctx, a.log)
	return fn(ctx, a)
}

func configOptions(cfg *config.Config) plugins.ConfigOptions {
	opts := plugins.ConfigOptions{
		HostVersion:   Version,
		Theme:         cfg.Theme,
		DefaultFormat: cfg.DefaultFormat,
		ShowIcons:     cfg.ShowIcons,
	}
	if len(cfg.Shortcuts) > 0 {
		opts.Shortcuts = make(map[string]plugins.Shortcut, len(cfg.Shortcuts))
		for name, sc := range cfg.Shortcuts {
			opts.Shortcuts[name] = plugins.Shortcut{Plugin: sc.Plugin, Action: sc.Action}
		}
	}
	return opts
}

func supportedProtocols() string {
	return protocol.SupportedVersions.String()
}
