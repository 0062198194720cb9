// Package anomaly classifies per-household daily feature rows with the
// anomaly model.
package anomaly

import (
	"context"
	"fmt"

	"github.com/jgoulah/homeenergy/internal/apperr"
	"github.com/jgoulah/homeenergy/internal/features"
	"github.com/jgoulah/homeenergy/internal/mlmodel"
	"github.com/jgoulah/homeenergy/pkg/models"
)

// ModelSource yields the scoring model. *mlmodel.Registry implements it.
type ModelSource interface {
	Scorer(ctx context.Context) (mlmodel.Scorer, error)
}

// Scorer attaches anomaly verdicts to feature rows
type Scorer struct {
	models ModelSource
}

// NewScorer creates a scorer over the given model source
func NewScorer(src ModelSource) *Scorer {
	return &Scorer{models: src}
}

// Score returns one ScoredPoint per input point, in input order. Points must
// already carry their features. Anomaly mirrors the model's outlier label;
// the score is informational only.
func (s *Scorer) Score(ctx context.Context, points []models.DailySeriesPoint) ([]models.ScoredPoint, error) {
	if len(points) == 0 {
		return []models.ScoredPoint{}, nil
	}

	model, err := s.models.Scorer(ctx)
	if err != nil {
		return nil, err
	}

	preds, err := model.Score(ctx, features.Columns, features.Matrix(points))
	if err != nil {
		return nil, apperr.Upstream(apperr.StageScore, err)
	}
	if len(preds) != len(points) {
		return nil, apperr.Upstream(apperr.StageScore,
			fmt.Errorf("model returned %d predictions for %d rows", len(preds), len(points)))
	}

	out := make([]models.ScoredPoint, len(points))
	for i, p := range points {
		out[i] = models.ScoredPoint{
			DailySeriesPoint: p,
			Score:            preds[i].Score,
			Anomaly:          preds[i].Outlier,
		}
	}
	return out, nil
}
