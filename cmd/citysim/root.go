package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/talgya/mini-city/internal/config"
)

var (
	configPath string // YAML config file (empty = defaults)
	logLevel   string // debug, info, warn, error
	logFormat  string // text or json

	seed     int64  // overrides city.seed when set
	backendK string // overrides backend.preferred when set
	dbPath   string // overrides store.path when set

	cfg config.Config
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:          "citysim",
	Short:        "Tick-driven city agent simulation",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setupLogging(logLevel, logFormat); err != nil {
			return err
		}
		loaded, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func setupLogging(level, format string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "text", "":
		h = slog.NewTextHandler(os.Stdout, opts)
	case "json":
		h = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return fmt.Errorf("invalid log format %q; valid: text, json", format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// loadConfig reads --config (or the defaults) and applies flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	c := config.Default()
	if configPath != "" {
		var err error
		if c, err = config.Load(configPath); err != nil {
			return c, err
		}
		slog.Info("config loaded", "path", configPath)
	}
	flags := cmd.Flags()
	if flags.Changed("seed") {
		c.City.Seed = seed
	}
	if flags.Changed("backend") {
		c.Backend.Preferred = backendK
	}
	if flags.Changed("db") {
		c.Store.Path = dbPath
	}
	return c, c.Validate()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().Int64Var(&seed, "seed", 0, "Master random seed (0 = random); overrides city.seed")
	rootCmd.PersistentFlags().StringVar(&backendK, "backend", "", "Bulk backend (native, fallback); overrides backend.preferred")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite summary store path (empty disables); overrides store.path")

	rootCmd.AddCommand(runCmd, scenarioCmd, scenariosCmd, benchCmd)
}
