package storage

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetGlobalDirs() {
	globalDirs = nil
	globalDirsOnce = sync.Once{}
}

func TestResolveDirs(t *testing.T) {
	resetGlobalDirs()
	t.Cleanup(resetGlobalDirs)

	dirs := ResolveDirs()
	assert.NotEmpty(t, dirs.Config)
	assert.NotEmpty(t, dirs.State)
	assert.True(t, strings.Contains(dirs.Config, appName), dirs.Config)
	assert.Same(t, dirs, ResolveDirs())
}

func TestResolveDirsXDGOverride(t *testing.T) {
	resetGlobalDirs()
	t.Cleanup(resetGlobalDirs)

	cfg, state := t.TempDir(), t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", cfg)
	t.Setenv("XDG_STATE_HOME", state)

	dirs := ResolveDirs()
	assert.Equal(t, filepath.Join(cfg, appName), dirs.Config)
	assert.Equal(t, filepath.Join(cfg, appName, "config.yaml"), dirs.ConfigFile())
	assert.Equal(t, filepath.Join(state, appName, "traces"), dirs.TraceDir())
}

func TestResolveProjectDirs(t *testing.T) {
	dirs := ResolveProjectDirs("/work/model")
	assert.Equal(t, filepath.Join("/work/model", ".varelim"), dirs.Root)
	assert.Equal(t, filepath.Join("/work/model", ".varelim", "config.yaml"), dirs.Config)
	assert.Equal(t, filepath.Join("/work/model", ".varelim", "local.yaml"), dirs.Local)
}

func TestTraceFile(t *testing.T) {
	d := &Dirs{State: "/state"}
	at := time.Date(2024, 3, 1, 12, 30, 5, 250_000_000, time.UTC)
	assert.Equal(t, filepath.Join("/state", "traces", "Alarm-20240301T123005.250.log"), d.TraceFile("Alarm", at))
	assert.Equal(t, filepath.Join("/state", "a", "b"), d.StateDir("a", "b"))
}

func TestEnsureParent(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nested", "dir", "trace.log")
	require.NoError(t, EnsureParent(file))

	info, err := os.Stat(filepath.Dir(file))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, EnsureParent(file), "idempotent")
}
