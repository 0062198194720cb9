package main

import (
	"fmt"
	"log/slog"

	"github.com/jgoulah/homeenergy/internal/server"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the forecast, anomaly, ingestion and dashboard API. Models are
loaded once at startup; a model that fails to load makes its endpoint answer
503 until the process is restarted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	svc := newService(db)
	for name, err := range svc.Models().Status(cmd.Context()) {
		if err != nil {
			slog.Warn("Model unavailable, endpoint will return 503", "model", name, "error", err)
		}
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.GetServerAddr()
	}

	srv := server.New(svc, db, server.Options{
		DefaultDays:    cfg.GetForecastDays(),
		RequestTimeout: cfg.GetWriteTimeout(),
	})
	return srv.ListenAndServe(cmd.Context(), addr, cfg.GetReadTimeout(), cfg.GetWriteTimeout())
}
