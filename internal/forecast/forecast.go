// Package forecast turns readings into a global daily series and asks the
// forecasting model to extend it.
package forecast

import (
	"context"
	"log/slog"

	"github.com/jgoulah/homeenergy/internal/apperr"
	"github.com/jgoulah/homeenergy/internal/mlmodel"
	"github.com/jgoulah/homeenergy/internal/series"
	"github.com/jgoulah/homeenergy/pkg/models"
)

// DefaultHorizon is used when the caller asks for zero or fewer days
const DefaultHorizon = 7

// ModelSource yields the forecasting model. *mlmodel.Registry implements it.
type ModelSource interface {
	Forecaster(ctx context.Context) (mlmodel.Forecaster, error)
}

// Adapter wraps the forecasting model
type Adapter struct {
	models ModelSource
}

// NewAdapter creates an adapter over the given model source
func NewAdapter(src ModelSource) *Adapter {
	return &Adapter{models: src}
}

// Forecast aggregates readings across households, fills missing days with
// zero and returns the last horizon rows of the model's continuation.
// No readings yields an empty result without touching the model.
func (a *Adapter) Forecast(ctx context.Context, readings []models.Reading, horizon int) ([]models.ForecastPoint, error) {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	if len(readings) == 0 {
		return []models.ForecastPoint{}, nil
	}

	model, err := a.models.Forecaster(ctx)
	if err != nil {
		return nil, err
	}

	history := series.Global(readings)
	slog.Debug("Forecasting", "history_days", len(history), "horizon", horizon)

	out, err := model.Forecast(ctx, history, horizon)
	if err != nil {
		return nil, apperr.Upstream(apperr.StageForecast, err)
	}
	if len(out) > horizon {
		out = out[len(out)-horizon:]
	}
	return out, nil
}
