package main

import (
	"fmt"
	"log/slog"

	"github.com/jgoulah/homeenergy/internal/pipeline"
	"github.com/jgoulah/homeenergy/internal/publisher"
	"github.com/spf13/cobra"
)

var (
	publishDays      int
	publishStart     string
	publishAnomalies bool
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish forecast and anomalies to MQTT and Home Assistant",
	Long: `Runs the forecast (and optionally anomaly detection) and publishes the
results as retained MQTT messages. When Home Assistant is enabled the forecast
total is also pushed as an entity state.`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().IntVar(&publishDays, "days", 0, "Days to forecast (default from config, 7)")
	publishCmd.Flags().StringVar(&publishStart, "start", "30d", "Anomaly window start (YYYY-MM-DD or relative like 30d)")
	publishCmd.Flags().BoolVar(&publishAnomalies, "anomalies", true, "Also publish per-household anomalies")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	if !cfg.MQTT.Enabled && !cfg.HomeAssistant.Enabled {
		return fmt.Errorf("neither MQTT nor Home Assistant is enabled in config")
	}

	since, err := parseDateFlag("start", publishStart)
	if err != nil {
		return err
	}

	days := publishDays
	if days <= 0 {
		days = cfg.GetForecastDays()
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	pub, err := publisher.New(cfg)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	ctx := cmd.Context()
	svc := newService(db)

	points, err := svc.Forecast(ctx, days, "")
	if err != nil {
		return fmt.Errorf("forecasting: %w", err)
	}

	if cfg.MQTT.Enabled {
		if err := pub.PublishForecast("", points); err != nil {
			return fmt.Errorf("publishing forecast: %w", err)
		}
		fmt.Printf("Published %d forecast points to %s\n", len(points), pub.ForecastTopic())
	}

	if cfg.HomeAssistant.Enabled {
		if err := pub.PushForecastState(ctx, points); err != nil {
			return fmt.Errorf("pushing Home Assistant state: %w", err)
		}
		fmt.Printf("Updated Home Assistant entity %s\n", cfg.HomeAssistant.EntityID)
	}

	if !publishAnomalies || !cfg.MQTT.Enabled {
		return nil
	}

	scored, err := svc.DetectAnomalies(ctx, pipeline.AnomalyRequest{Start: since})
	if err != nil {
		return fmt.Errorf("detecting anomalies: %w", err)
	}
	flagged, err := pub.PublishAnomalies(scored)
	if err != nil {
		return fmt.Errorf("publishing anomalies: %w", err)
	}
	slog.Info("Published anomalies", "days", len(scored), "flagged", flagged)
	fmt.Printf("Published anomalies: %d of %d days flagged\n", flagged, len(scored))
	return nil
}
