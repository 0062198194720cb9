// Package loader builds the model registry from configuration. Models come
// either from a model server or from local JSON artifacts that are
// downloaded on first use when missing.
package loader

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jgoulah/homeenergy/internal/config"
	"github.com/jgoulah/homeenergy/internal/features"
	"github.com/jgoulah/homeenergy/internal/mlmodel"
	"github.com/jgoulah/homeenergy/internal/mlmodel/isoforest"
	"github.com/jgoulah/homeenergy/internal/mlmodel/remote"
	"github.com/jgoulah/homeenergy/internal/mlmodel/trend"
)

var downloadClient = &http.Client{Timeout: 2 * time.Minute}

// NewRegistry returns a registry whose models load lazily from cfg
func NewRegistry(cfg *config.Config) *mlmodel.Registry {
	if cfg.Models.RemoteURL != "" {
		var client *remote.Client
		ping := func(ctx context.Context) (*remote.Client, error) {
			if client != nil {
				return client, nil
			}
			c := remote.NewClient(cfg.Models.RemoteURL, remote.WithAPIKey(cfg.Models.APIKey))
			if err := c.Ping(ctx); err != nil {
				return nil, fmt.Errorf("model server %s: %w", cfg.Models.RemoteURL, err)
			}
			client = c
			return c, nil
		}
		// Both loaders run inside the registry's single sync.Once.
		return mlmodel.NewRegistry(
			func(ctx context.Context) (mlmodel.Forecaster, error) { return ping(ctx) },
			func(ctx context.Context) (mlmodel.Scorer, error) { return ping(ctx) },
		)
	}

	return mlmodel.NewRegistry(
		func(ctx context.Context) (mlmodel.Forecaster, error) { return loadTrend(ctx, cfg) },
		func(ctx context.Context) (mlmodel.Scorer, error) { return loadForest(ctx, cfg) },
	)
}

func loadTrend(ctx context.Context, cfg *config.Config) (*trend.Model, error) {
	path, err := mlmodel.Fetch(ctx, downloadClient, mlmodel.Artifact{
		Path: cfg.GetForecastModelPath(),
		URL:  cfg.Models.Forecast.URL,
	})
	if err != nil {
		return nil, err
	}
	return trend.LoadFile(path)
}

func loadForest(ctx context.Context, cfg *config.Config) (*isoforest.Forest, error) {
	path, err := mlmodel.Fetch(ctx, downloadClient, mlmodel.Artifact{
		Path: cfg.GetAnomalyModelPath(),
		URL:  cfg.Models.Anomaly.URL,
	})
	if err != nil {
		return nil, err
	}
	return isoforest.LoadFile(path, features.Columns)
}

// Status is the load outcome of one model
type Status struct {
	Model  string `json:"model"`
	Source string `json:"source"`
	Err    error  `json:"-"`
}

// OK reports whether the model loaded
func (s Status) OK() bool { return s.Err == nil }

// Check loads every configured model once and reports the outcome
func Check(ctx context.Context, cfg *config.Config) []Status {
	reg := NewRegistry(cfg)
	status := reg.Status(ctx)

	forecastSrc, anomalySrc := cfg.GetForecastModelPath(), cfg.GetAnomalyModelPath()
	if cfg.Models.RemoteURL != "" {
		forecastSrc, anomalySrc = cfg.Models.RemoteURL, cfg.Models.RemoteURL
	}
	return []Status{
		{Model: "forecast", Source: forecastSrc, Err: status["forecast"]},
		{Model: "anomaly", Source: anomalySrc, Err: status["anomaly"]},
	}
}
