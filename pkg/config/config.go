package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/llx/pkg/observability"
)

// DefaultDecorationCacheSize is the default number of cached single-entry
// decorations.
const DefaultDecorationCacheSize = 4096

// Formats lists the output formats llx can render.
var Formats = []string{"default", "long", "tree", "grid", "table"}

// Config holds all llx configuration
type Config struct {
	PluginsDir     string   `yaml:"plugins_dir"`
	EnabledPlugins []string `yaml:"enabled_plugins"`

	Theme         string              `yaml:"theme"`
	DefaultFormat string              `yaml:"default_format"`
	ShowIcons     bool                `yaml:"show_icons"`
	Shortcuts     map[string]Shortcut `yaml:"shortcuts,omitempty"`

	// Workers bounds concurrent plugin calls and file stats; 0 means one per CPU.
	Workers             int `yaml:"workers"`
	DecorationCacheSize int `yaml:"decoration_cache_size"`

	// HealthDB is the SQLite file keeping plugin health across runs. Empty
	// keeps health in memory only.
	HealthDB    string                   `yaml:"health_db,omitempty"`
	LogLevel    string                   `yaml:"log_level"`
	MetricsFile string                   `yaml:"metrics_file,omitempty"`
	OTel        observability.OTelConfig `yaml:"otel,omitempty"`
}

// Shortcut names a plugin action.
type Shortcut struct {
	Plugin      string `yaml:"plugin"`
	Action      string `yaml:"action"`
	Description string `yaml:"description,omitempty"`
}

// Dir returns the llx configuration directory.
func Dir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "llx")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "llx")
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		PluginsDir:          filepath.Join(Dir(), "plugins"),
		Theme:               "default",
		DefaultFormat:       "default",
		DecorationCacheSize: DefaultDecorationCacheSize,
		LogLevel:            "warn",
		OTel: observability.OTelConfig{
			ServiceName: "llx",
			Insecure:    true,
		},
	}
}

// Load reads the YAML file at path over the defaults, applies LLX_*
// environment overrides and validates the result. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.PluginsDir = expandHome(cfg.PluginsDir)
	cfg.HealthDB = expandHome(cfg.HealthDB)
	cfg.MetricsFile = expandHome(cfg.MetricsFile)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides file settings from the environment
func (c *Config) applyEnv() {
	c.PluginsDir = getEnv("LLX_PLUGINS_DIR", c.PluginsDir)
	if enabled := getEnv("LLX_ENABLED_PLUGINS", ""); enabled != "" {
		c.EnabledPlugins = splitList(enabled)
	}
	c.Theme = getEnv("LLX_THEME", c.Theme)
	c.DefaultFormat = getEnv("LLX_DEFAULT_FORMAT", c.DefaultFormat)
	c.ShowIcons = getEnvBool("LLX_SHOW_ICONS", c.ShowIcons)
	c.Workers = getEnvInt("LLX_WORKERS", c.Workers)
	c.DecorationCacheSize = getEnvInt("LLX_DECORATION_CACHE_SIZE", c.DecorationCacheSize)
	c.HealthDB = getEnv("LLX_HEALTH_DB", c.HealthDB)
	c.LogLevel = getEnv("LLX_LOG_LEVEL", c.LogLevel)
	c.MetricsFile = getEnv("LLX_METRICS_FILE", c.MetricsFile)
	c.OTel.Endpoint = getEnv("LLX_OTEL_ENDPOINT", c.OTel.Endpoint)
	c.OTel.ServiceName = getEnv("LLX_OTEL_SERVICE_NAME", c.OTel.ServiceName)
	c.OTel.Insecure = getEnvBool("LLX_OTEL_INSECURE", c.OTel.Insecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.PluginsDir == "" {
		return fmt.Errorf("plugins directory is required")
	}
	if !IsFormat(c.DefaultFormat) {
		return fmt.Errorf("invalid default format: %s (must be one of %s)", c.DefaultFormat, strings.Join(Formats, ", "))
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if c.DecorationCacheSize <= 0 {
		return fmt.Errorf("decoration cache size must be positive")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	for name, sc := range c.Shortcuts {
		if sc.Plugin == "" || sc.Action == "" {
			return fmt.Errorf("shortcut %s needs both a plugin and an action", name)
		}
	}
	if c.OTel.Enabled() && c.OTel.ServiceName == "" {
		return fmt.Errorf("OpenTelemetry service name is required when an endpoint is set")
	}
	return nil
}

// Save writes the configuration to path, replacing the file atomically.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return writeFile(path, data)
}

// UpdateEnabledPlugins applies update to the enabled plugin list stored in the
// file at path and writes the list back when update reports a change. The
// rest of the file is kept as written: defaults and LLX_* overrides are never
// saved. A missing file is created.
func UpdateEnabledPlugins(path string, update func(c *Config) bool) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	var stored Config
	if err := yaml.Unmarshal(data, &stored); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if !update(&stored) {
		return false, nil
	}

	if raw == nil {
		raw = make(map[string]interface{})
	}
	enabled := stored.EnabledPlugins
	if enabled == nil {
		enabled = []string{}
	}
	raw["enabled_plugins"] = enabled

	out, err := yaml.Marshal(raw)
	if err != nil {
		return false, fmt.Errorf("failed to marshal config: %w", err)
	}
	return true, writeFile(path, out)
}

// writeFile replaces path with data atomically.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// IsEnabled reports whether name is in the enabled plugin list.
func (c *Config) IsEnabled(name string) bool {
	for _, p := range c.EnabledPlugins {
		if p == name {
			return true
		}
	}
	return false
}

// EnablePlugin adds name to the enabled list. It reports whether the list changed.
func (c *Config) EnablePlugin(name string) bool {
	if c.IsEnabled(name) {
		return false
	}
	c.EnabledPlugins = append(c.EnabledPlugins, name)
	sort.Strings(c.EnabledPlugins)
	return true
}

// DisablePlugin removes name from the enabled list. It reports whether the
// list changed.
func (c *Config) DisablePlugin(name string) bool {
	for i, p := range c.EnabledPlugins {
		if p == name {
			c.EnabledPlugins = append(c.EnabledPlugins[:i], c.EnabledPlugins[i+1:]...)
			return true
		}
	}
	return false
}

// IsFormat reports whether format is a known output format.
func IsFormat(format string) bool {
	for _, f := range Formats {
		if f == format {
			return true
		}
	}
	return false
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
