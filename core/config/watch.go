package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/adalundhe/varelim/core/storage"
)

// Watch reloads the config whenever one of its files changes, until ctx is
// done. Only directories that exist when Watch starts are observed. Reload
// failures are logged and the previous config stays active.
func (m *Manager) Watch(ctx context.Context, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	files := m.files()
	watched := make(map[string]struct{})
	for _, f := range files {
		dir := filepath.Dir(f)
		if _, ok := watched[dir]; ok {
			continue
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if err := w.Add(dir); err != nil {
			return err
		}
		watched[dir] = struct{}{}
	}

	relevant := make(map[string]struct{}, len(files))
	for _, f := range files {
		relevant[filepath.Clean(f)] = struct{}{}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if _, ok := relevant[filepath.Clean(ev.Name)]; !ok {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := m.Reload(); err != nil {
				logger.Warn("config reload failed", "file", ev.Name, "error", err)
				continue
			}
			logger.Info("config reloaded", "file", ev.Name)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watch error", "error", err)
		}
	}
}

func (m *Manager) files() []string {
	project := storage.ResolveProjectDirs(m.projectRoot)
	files := []string{project.Config, project.Local}
	if m.dirs != nil {
		files = append(files, m.dirs.ConfigFile())
	}
	return files
}
