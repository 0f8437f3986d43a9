package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adalundhe/varelim/core/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestManager(t *testing.T) (*Manager, *storage.Dirs, string) {
	t.Helper()
	dirs := &storage.Dirs{Config: t.TempDir(), State: t.TempDir()}
	root := t.TempDir()
	return NewManager(dirs, root), dirs, root
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "least-incoming-arcs", cfg.Engine.DefaultOrder)
	assert.Equal(t, 64, cfg.Engine.OrderCacheSize)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.False(t, cfg.Diagnostics.Enabled)
	assert.False(t, cfg.Metrics.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestManagerGet(t *testing.T) {
	m, _, _ := newTestManager(t)
	require.NotNil(t, m.Get())
	assert.Equal(t, DefaultConfig(), m.Get())
}

func TestManagerLoadLayers(t *testing.T) {
	m, dirs, root := newTestManager(t)
	project := storage.ResolveProjectDirs(root)

	writeFile(t, project.Config, `
engine:
  default_order: network
  order_cache_size: 8
logging:
  level: info
`)
	writeFile(t, dirs.ConfigFile(), `
engine:
  default_order: fewest-factors
diagnostics:
  enabled: true
`)
	writeFile(t, project.Local, `
logging:
  format: json
`)

	require.NoError(t, m.Load())
	cfg := m.Get()
	assert.Equal(t, "fewest-factors", cfg.Engine.DefaultOrder, "user file overrides project file")
	assert.Equal(t, 8, cfg.Engine.OrderCacheSize)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Diagnostics.Enabled)
}

func TestManagerLoadMissingFiles(t *testing.T) {
	m, _, _ := newTestManager(t)
	require.NoError(t, m.Load())
	assert.Equal(t, DefaultConfig(), m.Get())
}

func TestManagerLoadErrors(t *testing.T) {
	t.Run("bad yaml", func(t *testing.T) {
		m, dirs, _ := newTestManager(t)
		writeFile(t, dirs.ConfigFile(), "engine: [unclosed")
		err := m.Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "user config")
	})

	t.Run("bad level", func(t *testing.T) {
		m, _, root := newTestManager(t)
		writeFile(t, storage.ResolveProjectDirs(root).Config, "logging:\n  level: loud\n")
		assert.ErrorIs(t, m.Load(), ErrInvalidConfig)
		assert.Equal(t, "warn", m.Get().Logging.Level, "failed load keeps previous config")
	})

	t.Run("bad cache size env", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		t.Setenv("VARELIM_ORDER_CACHE_SIZE", "many")
		err := m.Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "VARELIM_ORDER_CACHE_SIZE")
	})
}

func TestManagerEnvironment(t *testing.T) {
	m, dirs, _ := newTestManager(t)
	writeFile(t, dirs.ConfigFile(), "engine:\n  default_order: network\n")

	t.Setenv("VARELIM_ORDER", "fewest")
	t.Setenv("VARELIM_ORDER_CACHE_SIZE", "0")
	t.Setenv("VARELIM_LOG_LEVEL", "DEBUG")
	t.Setenv("VARELIM_LOG_FORMAT", "json")
	t.Setenv("VARELIM_TRACE_PATH", "/tmp/trace.log")
	t.Setenv("VARELIM_METRICS_TEXTFILE", "/tmp/varelim.prom")

	require.NoError(t, m.Load())
	cfg := m.Get()
	assert.Equal(t, "fewest", cfg.Engine.DefaultOrder)
	assert.Equal(t, 0, cfg.Engine.OrderCacheSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Diagnostics.Enabled)
	assert.Equal(t, "/tmp/trace.log", cfg.Diagnostics.TracePath)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/tmp/varelim.prom", cfg.Metrics.Textfile)
}

func TestManagerApply(t *testing.T) {
	m, _, _ := newTestManager(t)
	before := m.Get()

	require.NoError(t, m.Apply(&Config{Logging: LoggingConfig{Level: "debug"}}))
	assert.Equal(t, "debug", m.Get().Logging.Level)
	assert.Equal(t, "text", m.Get().Logging.Format)
	assert.Equal(t, "warn", before.Logging.Level, "previous snapshot is not mutated")

	assert.ErrorIs(t, m.Apply(&Config{Logging: LoggingConfig{Format: "xml"}}), ErrInvalidConfig)
	assert.Equal(t, "text", m.Get().Logging.Format)
}

func TestManagerOnChange(t *testing.T) {
	m, _, _ := newTestManager(t)

	var seen []*Config
	m.OnChange(func(c *Config) { seen = append(seen, c) })

	require.NoError(t, m.Load())
	require.NoError(t, m.Reload())
	require.NoError(t, m.Apply(&Config{Engine: EngineConfig{DefaultOrder: "network"}}))

	require.Len(t, seen, 3)
	assert.Same(t, m.Get(), seen[2])
	assert.Equal(t, "network", seen[2].Engine.DefaultOrder)
}

func TestManagerNormalizesCase(t *testing.T) {
	m, dirs, _ := newTestManager(t)
	writeFile(t, dirs.ConfigFile(), "logging:\n  level: INFO\n  format: JSON\n")
	require.NoError(t, m.Load())
	assert.Equal(t, "info", m.Get().Logging.Level)
	assert.Equal(t, "json", m.Get().Logging.Format)

	require.NoError(t, m.Apply(&Config{Logging: LoggingConfig{Level: "DEBUG", Format: " Text "}}))
	assert.Equal(t, "debug", m.Get().Logging.Level)
	assert.Equal(t, "text", m.Get().Logging.Format)
}
