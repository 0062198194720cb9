package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jgoulah/homeenergy/internal/apperr"
	"github.com/jgoulah/homeenergy/internal/mlmodel"
	"github.com/jgoulah/homeenergy/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSource ignores date bounds so the service's own filtering is exercised
type memSource struct {
	readings []models.Reading
	filters  []models.ReadingFilter
	err      error
}

func (m *memSource) Readings(_ context.Context, f models.ReadingFilter) ([]models.Reading, error) {
	m.filters = append(m.filters, f)
	if m.err != nil {
		return nil, m.err
	}
	out := []models.Reading{}
	for _, r := range m.readings {
		if f.HouseholdID == "" || r.HouseholdID == f.HouseholdID {
			out = append(out, r)
		}
	}
	return out, nil
}

type countingForecaster struct {
	calls   int
	history []models.GlobalDailyPoint
}

func (c *countingForecaster) Forecast(_ context.Context, history []models.GlobalDailyPoint, horizon int) ([]models.ForecastPoint, error) {
	c.calls++
	c.history = history
	last := history[len(history)-1].Date
	out := make([]models.ForecastPoint, horizon)
	for i := range out {
		out[i] = models.ForecastPoint{Date: last.AddDate(0, 0, i+1), YHat: 1}
	}
	return out, nil
}

// thresholdScorer flags rows whose total is above 10 kWh
type thresholdScorer struct{ calls int }

func (s *thresholdScorer) Score(_ context.Context, _ []string, rows [][]float64) ([]mlmodel.Prediction, error) {
	s.calls++
	out := make([]mlmodel.Prediction, len(rows))
	for i, r := range rows {
		out[i] = mlmodel.Prediction{Outlier: r[0] > 10, Score: 10 - r[0]}
	}
	return out, nil
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func fixture() []models.Reading {
	return []models.Reading{
		{HouseholdID: "H1", ApplianceType: "A", EnergyKWh: 5, Date: day(1)},
		{HouseholdID: "H1", ApplianceType: "B", EnergyKWh: 3, Date: day(3)},
		{HouseholdID: "H2", ApplianceType: "A", EnergyKWh: 20, Date: day(2)},
		{HouseholdID: "H2", ApplianceType: "A", EnergyKWh: 1, Date: day(10)},
	}
}

func TestForecast_EmptySource(t *testing.T) {
	model := &countingForecaster{}
	svc := NewService(&memSource{}, mlmodel.Static(model, nil))

	out, err := svc.Forecast(context.Background(), 7, "")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, model.calls)
}

func TestForecast_HouseholdNarrowsAggregate(t *testing.T) {
	model := &countingForecaster{}
	src := &memSource{readings: fixture()}
	svc := NewService(src, mlmodel.Static(model, nil))

	out, err := svc.Forecast(context.Background(), 2, "H1")
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, "H1", src.filters[0].HouseholdID)
	assert.Nil(t, src.filters[0].Start)
	require.Len(t, model.history, 3)
	assert.Equal(t, 8.0, model.history[0].Y+model.history[2].Y)
}

func TestDetectAnomalies_EndToEnd(t *testing.T) {
	scorer := &thresholdScorer{}
	svc := NewService(&memSource{readings: fixture()}, mlmodel.Static(nil, scorer))

	out, err := svc.DetectAnomalies(context.Background(), AnomalyRequest{})
	require.NoError(t, err)
	// H1 spans Jan 1-3, H2 spans Jan 2-10
	require.Len(t, out, 3+9)

	assert.Equal(t, "H1", out[0].HouseholdID)
	assert.Equal(t, 0.0, out[1].TotalKWh)
	assert.False(t, out[1].Filled, "filled flag is only reported in debug mode")
	assert.Equal(t, "H2", out[3].HouseholdID)
	assert.True(t, out[3].Anomaly)
	assert.Equal(t, 20.0, out[3].Rolling7Mean)
	for _, p := range out[4:] {
		assert.False(t, p.Anomaly)
	}
}

func TestDetectAnomalies_DebugKeepsFilled(t *testing.T) {
	svc := NewService(&memSource{readings: fixture()}, mlmodel.Static(nil, &thresholdScorer{}))

	out, err := svc.DetectAnomalies(context.Background(), AnomalyRequest{HouseholdID: "H1", Debug: true})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.True(t, out[1].Filled)
}

func TestDetectAnomalies_DateFilterAppliedLocally(t *testing.T) {
	svc := NewService(&memSource{readings: fixture()}, mlmodel.Static(nil, &thresholdScorer{}))

	out, err := svc.DetectAnomalies(context.Background(), AnomalyRequest{Start: ptr(day(2)), End: ptr(day(3))})
	require.NoError(t, err)
	// H1 keeps only Jan 3, H2 keeps only Jan 2
	require.Len(t, out, 2)
	for _, p := range out {
		assert.False(t, p.Date.Before(day(2)))
		assert.False(t, p.Date.After(day(3)))
	}
}

func TestDetectAnomalies_NoMatchAfterFilter(t *testing.T) {
	scorer := &thresholdScorer{}
	svc := NewService(&memSource{readings: fixture()}, mlmodel.Static(nil, scorer))

	out, err := svc.DetectAnomalies(context.Background(), AnomalyRequest{
		HouseholdID: "H1",
		Start:       ptr(day(5)),
		End:         ptr(day(9)),
	})
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
	assert.Zero(t, scorer.calls)
}

func TestService_UpstreamFetchFailure(t *testing.T) {
	boom := errors.New("connection refused")
	svc := NewService(&memSource{err: boom}, mlmodel.Static(&countingForecaster{}, &thresholdScorer{}))

	_, err := svc.Forecast(context.Background(), 7, "")
	var ue *apperr.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, apperr.StageFetch, ue.Stage)

	_, err = svc.DetectAnomalies(context.Background(), AnomalyRequest{})
	require.ErrorAs(t, err, &ue)
	assert.ErrorIs(t, err, boom)
}

func TestService_ModelUnavailable(t *testing.T) {
	svc := NewService(&memSource{readings: fixture()}, mlmodel.Static(nil, nil))

	_, err := svc.Forecast(context.Background(), 7, "")
	assert.ErrorIs(t, err, apperr.ErrModelUnavailable)

	_, err = svc.DetectAnomalies(context.Background(), AnomalyRequest{})
	assert.ErrorIs(t, err, apperr.ErrModelUnavailable)
	assert.Equal(t, "model_unavailable", apperr.Kind(err))
}
