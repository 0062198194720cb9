// Package features derives the rolling and calendar features the anomaly model consumes.
package features

import (
	"math"
	"time"

	"github.com/jgoulah/homeenergy/pkg/models"
)

// Window is the trailing window length of the rolling mean, in days
const Window = 7

// Columns is the column order of the feature matrix. The anomaly model was
// trained on exactly this order; changing it silently changes predictions.
var Columns = []string{"total_kwh", "unique_appliances", "rolling_7_mean", "day_of_week"}

// DayOfWeek maps a date to 0 = Monday ... 6 = Sunday
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// Build fills Rolling7Mean and DayOfWeek in place. Points must be ordered by
// household then date, as produced by series.Reconstruct; the window restarts
// at every household boundary and widens from one point at a series start.
func Build(points []models.DailySeriesPoint) []models.DailySeriesPoint {
	start := 0
	for i := range points {
		if i > 0 && points[i].HouseholdID != points[i-1].HouseholdID {
			start = i
		}

		// Summing the window afresh keeps a run of zero days at exactly zero.
		from := max(start, i-Window+1)
		sum := 0.0
		for _, p := range points[from : i+1] {
			sum += finite(p.TotalKWh)
		}

		points[i].Rolling7Mean = finite(sum / float64(i-from+1))
		points[i].DayOfWeek = DayOfWeek(points[i].Date)
	}
	return points
}

// Row returns the feature vector of p in Columns order
func Row(p models.DailySeriesPoint) []float64 {
	return []float64{
		finite(p.TotalKWh),
		float64(p.UniqueAppliances),
		finite(p.Rolling7Mean),
		float64(p.DayOfWeek),
	}
}

// Matrix returns one feature row per point
func Matrix(points []models.DailySeriesPoint) [][]float64 {
	rows := make([][]float64, len(points))
	for i, p := range points {
		rows[i] = Row(p)
	}
	return rows
}

// finite replaces NaN and infinities with 0 before they reach a model
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
