// Package trend implements an additive trend plus weekly seasonality
// forecaster whose parameters come from a pre-fitted JSON artifact.
package trend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/jgoulah/homeenergy/internal/features"
	"github.com/jgoulah/homeenergy/internal/mlmodel"
	"github.com/jgoulah/homeenergy/pkg/models"
)

// Model predicts y(d) = intercept + slope*days(origin, d) + weekly[dow(d)]
// with a symmetric normal interval of width IntervalWidth.
type Model struct {
	Origin        string     `json:"origin"` // YYYY-MM-DD
	Intercept     float64    `json:"intercept"`
	Slope         float64    `json:"slope"`  // per day
	Weekly        [7]float64 `json:"weekly"` // Monday first
	Sigma         float64    `json:"sigma"`
	IntervalWidth float64    `json:"interval_width"`

	origin time.Time
	z      float64
}

var _ mlmodel.Forecaster = (*Model)(nil)

// LoadFile reads a model artifact from disk
func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trend model: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes and validates a model artifact
func Load(r io.Reader) (*Model, error) {
	var m Model
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding trend model: %w", err)
	}
	if err := m.init(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Model) init() error {
	origin, err := models.ParseDate(m.Origin)
	if err != nil {
		return fmt.Errorf("parsing origin: %w", err)
	}
	if m.IntervalWidth == 0 {
		m.IntervalWidth = 0.8
	}
	if m.IntervalWidth <= 0 || m.IntervalWidth >= 1 {
		return fmt.Errorf("interval_width must be in (0, 1), got %v", m.IntervalWidth)
	}
	if m.Sigma < 0 {
		return fmt.Errorf("sigma must not be negative, got %v", m.Sigma)
	}
	m.origin = origin
	m.z = math.Sqrt2 * math.Erfinv(m.IntervalWidth)
	return nil
}

// Predict returns the point and interval for one date
func (m *Model) Predict(d time.Time) models.ForecastPoint {
	d = models.DateOf(d)
	t := d.Sub(m.origin).Hours() / 24
	yhat := m.Intercept + m.Slope*t + m.Weekly[features.DayOfWeek(d)]
	return models.ForecastPoint{
		Date:      d,
		YHat:      yhat,
		YHatLower: yhat - m.z*m.Sigma,
		YHatUpper: yhat + m.z*m.Sigma,
	}
}

// Forecast returns in-sample predictions for every history date followed by
// horizon days past the last one.
func (m *Model) Forecast(_ context.Context, history []models.GlobalDailyPoint, horizon int) ([]models.ForecastPoint, error) {
	if horizon < 1 {
		return nil, fmt.Errorf("horizon must be positive, got %d", horizon)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("empty history")
	}

	out := make([]models.ForecastPoint, 0, len(history)+horizon)
	for _, h := range history {
		out = append(out, m.Predict(h.Date))
	}
	last := models.DateOf(history[len(history)-1].Date)
	for i := 1; i <= horizon; i++ {
		out = append(out, m.Predict(last.AddDate(0, 0, i)))
	}
	return out, nil
}
