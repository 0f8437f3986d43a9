// Package storage resolves where varelim keeps its configuration and run
// artifacts, honoring the XDG base directory variables.
package storage

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

const appName = "varelim"

// Dirs holds the per-user directories.
type Dirs struct {
	Config string // config.yaml
	State  string // traces, metric text files
}

// ProjectDirs holds the directories local to a working tree.
type ProjectDirs struct {
	Root   string // .varelim/
	Config string // .varelim/config.yaml (committed)
	Local  string // .varelim/local.yaml (gitignored)
}

var (
	globalDirs     *Dirs
	globalDirsOnce sync.Once
)

// ResolveDirs returns the platform directories. The result is computed once.
func ResolveDirs() *Dirs {
	globalDirsOnce.Do(func() {
		globalDirs = &Dirs{
			Config: resolveDir("XDG_CONFIG_HOME", platformConfigDefault()),
			State:  resolveDir("XDG_STATE_HOME", platformStateDefault()),
		}
	})
	return globalDirs
}

func resolveDir(envVar, fallback string) string {
	if dir := os.Getenv(envVar); dir != "" {
		return filepath.Join(dir, appName)
	}
	return fallback
}

// ResolveProjectDirs returns the project directories under projectRoot.
func ResolveProjectDirs(projectRoot string) *ProjectDirs {
	root := filepath.Join(projectRoot, "."+appName)
	return &ProjectDirs{
		Root:   root,
		Config: filepath.Join(root, "config.yaml"),
		Local:  filepath.Join(root, "local.yaml"),
	}
}

// ConfigFile is the user-level configuration file.
func (d *Dirs) ConfigFile() string {
	return filepath.Join(d.Config, "config.yaml")
}

// StateDir joins subpath onto the state directory.
func (d *Dirs) StateDir(subpath ...string) string {
	return filepath.Join(append([]string{d.State}, subpath...)...)
}

// TraceDir holds elimination traces written by the CLI.
func (d *Dirs) TraceDir() string {
	return d.StateDir("traces")
}

// TraceFile returns a timestamped trace path for a query.
func (d *Dirs) TraceFile(query string, at time.Time) string {
	return filepath.Join(d.TraceDir(), query+"-"+at.UTC().Format("20060102T150405.000")+".log")
}

// EnsureDir creates path and its parents. A zero perm means 0755.
func EnsureDir(path string, perm os.FileMode) error {
	if perm == 0 {
		perm = 0755
	}
	return os.MkdirAll(path, perm)
}

// EnsureParent creates the directory that will hold file.
func EnsureParent(file string) error {
	return EnsureDir(filepath.Dir(file), 0)
}
