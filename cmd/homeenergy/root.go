package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jgoulah/homeenergy/internal/config"
	"github.com/jgoulah/homeenergy/internal/database"
	"github.com/jgoulah/homeenergy/internal/logging"
	"github.com/jgoulah/homeenergy/internal/mlmodel/loader"
	"github.com/jgoulah/homeenergy/internal/pipeline"
	"github.com/jgoulah/homeenergy/pkg/models"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	dbPath    string
	logLevel  string
	logFormat string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "homeenergy",
	Short: "Forecast household energy use and flag anomalous days",
	Long: `homeenergy ingests appliance-level energy readings, rebuilds daily
per-household series and runs them through pre-trained forecasting and
anomaly models. Results are served over HTTP, printed, or published to MQTT
and Home Assistant.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file or DSN (default is ./data.db)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

func initConfig(_ *cobra.Command, _ []string) error {
	c, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Flags win over file and environment
	if dbPath != "" {
		c.Database.DSN = dbPath
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat != "" {
		c.Logging.Format = logFormat
	}

	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := logging.Setup(os.Stderr, c.Logging.Level, c.Logging.Format); err != nil {
		return err
	}

	cfg = c
	return nil
}

// openDB opens the configured database
func openDB() (*database.DB, error) {
	driver, dsn := cfg.GetDatabaseDriver(), cfg.GetDatabaseDSN()

	if driver == "sqlite" {
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	return database.New(driver, dsn)
}

// newService builds the pipeline over db with models from the config
func newService(db *database.DB) *pipeline.Service {
	return pipeline.NewService(db, loader.NewRegistry(cfg))
}

// parseDate parses a date string in either YYYY-MM-DD format or relative format (e.g., "7d")
func parseDate(dateStr string) (time.Time, error) {
	t, err := models.ParseDate(dateStr)
	if err == nil {
		return t, nil
	}

	if len(dateStr) > 1 && strings.HasSuffix(dateStr, "d") {
		var days int
		if _, err := fmt.Sscanf(dateStr[:len(dateStr)-1], "%d", &days); err == nil && days >= 0 {
			return models.DateOf(time.Now().AddDate(0, 0, -days)), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid date format: %s (use YYYY-MM-DD or Nd for N days ago)", dateStr)
}

// parseDateFlag returns nil for an empty flag value
func parseDateFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := parseDate(value)
	if err != nil {
		return nil, fmt.Errorf("parsing --%s: %w", name, err)
	}
	return &t, nil
}
