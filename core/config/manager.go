// Package config loads varelim settings from layered YAML files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/adalundhe/varelim/core/storage"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

type Manager struct {
	config      atomic.Pointer[Config]
	dirs        *storage.Dirs
	projectRoot string
	watchers    []func(*Config)
	watcherMu   sync.RWMutex
}

type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	Logging     LoggingConfig     `yaml:"logging"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type EngineConfig struct {
	// DefaultOrder is a heuristic name used when no order is given.
	DefaultOrder   string `yaml:"default_order"`
	OrderCacheSize int    `yaml:"order_cache_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DiagnosticsConfig struct {
	Enabled bool `yaml:"enabled"`
	// TracePath overrides the timestamped file under the state directory.
	TracePath string `yaml:"trace_path"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Textfile receives the metric families in Prometheus text format after
	// each CLI invocation.
	Textfile string `yaml:"textfile"`
}

// NewManager returns a manager holding DefaultConfig. projectRoot locates
// the .varelim directory; an empty root means the working directory.
func NewManager(dirs *storage.Dirs, projectRoot string) *Manager {
	if projectRoot == "" {
		projectRoot = "."
	}
	m := &Manager{dirs: dirs, projectRoot: projectRoot}
	m.config.Store(DefaultConfig())
	return m
}

func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			DefaultOrder:   "least-incoming-arcs",
			OrderCacheSize: 64,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

func (m *Manager) Get() *Config {
	return m.config.Load()
}

// Load rebuilds the config from defaults, the project file, the user file,
// the local file and the environment, in that order.
func (m *Manager) Load() error {
	cfg := DefaultConfig()
	project := storage.ResolveProjectDirs(m.projectRoot)

	if err := loadYAMLFile(project.Config, cfg); err != nil {
		return fmt.Errorf("project config: %w", err)
	}
	if m.dirs != nil {
		if err := loadYAMLFile(m.dirs.ConfigFile(), cfg); err != nil {
			return fmt.Errorf("user config: %w", err)
		}
	}
	if err := loadYAMLFile(project.Local, cfg); err != nil {
		return fmt.Errorf("local config: %w", err)
	}
	if err := applyEnvironment(cfg); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.config.Store(cfg)
	m.notifyWatchers(cfg)
	return nil
}

// Apply merges overlay onto the current config. Zero fields in overlay
// leave the current value in place.
func (m *Manager) Apply(overlay *Config) error {
	cfg := *m.Get()
	DeepMerge(&cfg, overlay)
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.config.Store(&cfg)
	m.notifyWatchers(&cfg)
	return nil
}

func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func applyEnvironment(cfg *Config) error {
	if v := os.Getenv("VARELIM_ORDER"); v != "" {
		cfg.Engine.DefaultOrder = v
	}
	if v := os.Getenv("VARELIM_ORDER_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VARELIM_ORDER_CACHE_SIZE: %w", err)
		}
		cfg.Engine.OrderCacheSize = n
	}
	if v := os.Getenv("VARELIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("VARELIM_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := os.Getenv("VARELIM_TRACE_PATH"); v != "" {
		cfg.Diagnostics.Enabled = true
		cfg.Diagnostics.TracePath = v
	}
	if v := os.Getenv("VARELIM_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Textfile = v
	}
	return nil
}

// normalize folds the case of enumerated settings so files, flags and the
// environment accept the same spellings.
func (c *Config) normalize() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
}

// Validate checks the values the CLI cannot fall back from.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level %q", ErrInvalidConfig, c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: logging.format %q", ErrInvalidConfig, c.Logging.Format)
	}
	if c.Engine.OrderCacheSize < 0 {
		return fmt.Errorf("%w: engine.order_cache_size %d", ErrInvalidConfig, c.Engine.OrderCacheSize)
	}
	return nil
}

func (m *Manager) OnChange(fn func(*Config)) {
	m.watcherMu.Lock()
	m.watchers = append(m.watchers, fn)
	m.watcherMu.Unlock()
}

func (m *Manager) notifyWatchers(cfg *Config) {
	m.watcherMu.RLock()
	watchers := m.watchers
	m.watcherMu.RUnlock()

	for _, fn := range watchers {
		fn(cfg)
	}
}

func (m *Manager) Reload() error {
	return m.Load()
}
