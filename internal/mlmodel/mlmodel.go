// Package mlmodel defines the prediction contracts of the pre-trained models
// and the process-wide registry that loads them once.
package mlmodel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jgoulah/homeenergy/internal/apperr"
	"github.com/jgoulah/homeenergy/pkg/models"
)

// Forecaster extends a daily history by horizon days. The returned
// continuation may also contain in-sample rows for the history dates.
type Forecaster interface {
	Forecast(ctx context.Context, history []models.GlobalDailyPoint, horizon int) ([]models.ForecastPoint, error)
}

// Prediction is the scorer's verdict for one feature row
type Prediction struct {
	Outlier bool
	Score   float64 // higher = more normal
}

// Scorer classifies feature rows given in the stated column order
type Scorer interface {
	Score(ctx context.Context, columns []string, rows [][]float64) ([]Prediction, error)
}

// ForecasterLoader and ScorerLoader build a model from its configured artifact
type (
	ForecasterLoader func(ctx context.Context) (Forecaster, error)
	ScorerLoader     func(ctx context.Context) (Scorer, error)
)

// errNotConfigured is recorded when no loader was supplied for a model
var errNotConfigured = errors.New("not configured")

// Registry holds the loaded models. Loading happens at most once per
// process; after that the registry is read-only and safe for concurrent use.
// A failed load is remembered and every later call fails fast.
type Registry struct {
	once sync.Once

	loadForecaster ForecasterLoader
	loadScorer     ScorerLoader

	forecaster    Forecaster
	forecasterErr error
	scorer        Scorer
	scorerErr     error
}

// NewRegistry creates a registry that loads models with the given loaders on
// first use. A nil loader marks that model as not configured.
func NewRegistry(f ForecasterLoader, s ScorerLoader) *Registry {
	return &Registry{loadForecaster: f, loadScorer: s}
}

// Static creates an already loaded registry. Nil models are unavailable.
func Static(f Forecaster, s Scorer) *Registry {
	r := &Registry{forecaster: f, scorer: s}
	if f == nil {
		r.forecasterErr = errNotConfigured
	}
	if s == nil {
		r.scorerErr = errNotConfigured
	}
	r.once.Do(func() {})
	return r
}

// Load runs the one-time model load. It is called at startup by the server
// and lazily by Forecaster and Scorer otherwise. The outcome is kept for the
// life of the process, so the load ignores the caller's cancellation and
// deadline.
func (r *Registry) Load(ctx context.Context) {
	r.once.Do(func() {
		ctx := context.WithoutCancel(ctx)
		r.forecaster, r.forecasterErr = loadOne(ctx, "forecast", r.loadForecaster)
		r.scorer, r.scorerErr = loadOne(ctx, "anomaly", r.loadScorer)
	})
}

func loadOne[T any](ctx context.Context, name string, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if load == nil {
		slog.Warn("Model not configured", "model", name)
		return zero, errNotConfigured
	}
	m, err := load(ctx)
	if err != nil {
		slog.Error("Error loading model", "model", name, "error", err)
		return zero, err
	}
	slog.Info("Model loaded", "model", name)
	return m, nil
}

// Forecaster returns the forecasting model or an ErrModelUnavailable error
func (r *Registry) Forecaster(ctx context.Context) (Forecaster, error) {
	r.Load(ctx)
	if r.forecasterErr != nil {
		return nil, fmt.Errorf("forecast model: %w: %v", apperr.ErrModelUnavailable, r.forecasterErr)
	}
	return r.forecaster, nil
}

// Scorer returns the anomaly scoring model or an ErrModelUnavailable error
func (r *Registry) Scorer(ctx context.Context) (Scorer, error) {
	r.Load(ctx)
	if r.scorerErr != nil {
		return nil, fmt.Errorf("anomaly model: %w: %v", apperr.ErrModelUnavailable, r.scorerErr)
	}
	return r.scorer, nil
}

// Status reports the load outcome of each model, keyed by model name
func (r *Registry) Status(ctx context.Context) map[string]error {
	r.Load(ctx)
	return map[string]error{
		"forecast": r.forecasterErr,
		"anomaly":  r.scorerErr,
	}
}
