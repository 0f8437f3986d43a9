// Package cmd implements the varelim command line.
package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/adalundhe/varelim/core/config"
	"github.com/adalundhe/varelim/core/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// =============================================================================
// Root Command Flags
// =============================================================================

var (
	rootProjectDir string
	rootLogLevel   string
	rootLogFormat  string
)

// Populated by loadSettings before any subcommand runs.
var (
	settings *config.Manager
	dirs     *storage.Dirs
	logger   = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "varelim",
	Short: "Exact inference on discrete Bayesian networks",
	Long: `varelim answers single-variable posterior queries on discrete Bayesian
networks by variable elimination.

Settings are read from .varelim/config.yaml, the user config file,
.varelim/local.yaml and VARELIM_* environment variables.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootProjectDir, "project", ".", "Directory holding .varelim/")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&rootLogFormat, "log-format", "", "Log format (text, json)")
}

// Execute runs the command line. The metrics textfile is written whether
// or not the command succeeded, so failed runs are counted too.
func Execute() error {
	settings = nil
	err := rootCmd.Execute()
	if merr := writeMetrics(); merr != nil {
		logger.Warn("metrics not written", "error", merr)
		if err == nil {
			err = merr
		}
	}
	return err
}

// =============================================================================
// Settings
// =============================================================================

func loadSettings(cmd *cobra.Command, _ []string) error {
	dirs = storage.ResolveDirs()
	settings = config.NewManager(dirs, rootProjectDir)
	settings.OnChange(func(c *config.Config) {
		logger = newLogger(c.Logging, cmd.ErrOrStderr())
	})

	if err := settings.Load(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return settings.Apply(&config.Config{
		Logging: config.LoggingConfig{Level: rootLogLevel, Format: rootLogFormat},
	})
}

func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// writeMetrics dumps the default registry for a node exporter textfile
// collector when metrics are enabled. Nothing is written if settings never
// loaded.
func writeMetrics() error {
	if settings == nil {
		return nil
	}
	cfg := settings.Get().Metrics
	if !cfg.Enabled || cfg.Textfile == "" {
		return nil
	}
	if err := storage.EnsureParent(cfg.Textfile); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(cfg.Textfile, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	logger.Debug("metrics written", "path", cfg.Textfile)
	return nil
}
