// Package pipeline runs the forecast and anomaly branches end to end against
// a reading source. Every call reads a fresh snapshot; nothing is cached
// between requests.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/jgoulah/homeenergy/internal/anomaly"
	"github.com/jgoulah/homeenergy/internal/apperr"
	"github.com/jgoulah/homeenergy/internal/features"
	"github.com/jgoulah/homeenergy/internal/forecast"
	"github.com/jgoulah/homeenergy/internal/mlmodel"
	"github.com/jgoulah/homeenergy/internal/series"
	"github.com/jgoulah/homeenergy/pkg/models"
)

// DataSource supplies readings. It returns an empty slice, not an error,
// when nothing matches.
type DataSource interface {
	Readings(ctx context.Context, filter models.ReadingFilter) ([]models.Reading, error)
}

// AnomalyRequest narrows an anomaly run. Start and End are inclusive.
type AnomalyRequest struct {
	HouseholdID string
	Start       *time.Time
	End         *time.Time
	Debug       bool
}

// Filter returns the reading filter for the request
func (r AnomalyRequest) Filter() models.ReadingFilter {
	return models.ReadingFilter{HouseholdID: r.HouseholdID, Start: r.Start, End: r.End}
}

// Service wires the data source to the forecast adapter and anomaly scorer
type Service struct {
	source   DataSource
	adapter  *forecast.Adapter
	scorer   *anomaly.Scorer
	registry *mlmodel.Registry
}

// NewService creates a service. Models are taken from reg on first use.
func NewService(source DataSource, reg *mlmodel.Registry) *Service {
	return &Service{
		source:   source,
		adapter:  forecast.NewAdapter(reg),
		scorer:   anomaly.NewScorer(reg),
		registry: reg,
	}
}

// Models returns the registry backing the service
func (s *Service) Models() *mlmodel.Registry {
	return s.registry
}

// Forecast predicts the next horizon days of total consumption. A household
// only narrows the readings that feed the aggregate; the model is global.
func (s *Service) Forecast(ctx context.Context, horizon int, household string) ([]models.ForecastPoint, error) {
	readings, err := s.source.Readings(ctx, models.ReadingFilter{HouseholdID: household})
	if err != nil {
		return nil, apperr.Upstream(apperr.StageFetch, err)
	}
	return s.adapter.Forecast(ctx, readings, horizon)
}

// DetectAnomalies scores every reconstructed day of the matching households
func (s *Service) DetectAnomalies(ctx context.Context, req AnomalyRequest) ([]models.ScoredPoint, error) {
	filter := req.Filter()
	readings, err := s.source.Readings(ctx, filter)
	if err != nil {
		return nil, apperr.Upstream(apperr.StageFetch, err)
	}

	// Sources are not trusted to honor the date range.
	readings = series.Filter(readings, filter)

	points := features.Build(series.Reconstruct(readings))
	if req.Debug {
		slog.Debug("Reconstructed series",
			"readings", len(readings),
			"points", len(points),
			"lengths", series.Lengths(points))
	}

	scored, err := s.scorer.Score(ctx, points)
	if err != nil {
		return nil, err
	}
	if !req.Debug {
		for i := range scored {
			scored[i].Filled = false
		}
	}
	return scored, nil
}
