package models

import "time"

// DateLayout is the calendar date format used for storage, query parameters and CSV input
const DateLayout = "2006-01-02"

// Reading represents one appliance-level energy observation for a household on one day
type Reading struct {
	ID            string    `json:"id"`
	HouseholdID   string    `json:"household_id"`
	ApplianceType string    `json:"appliance_type"`
	EnergyKWh     float64   `json:"energy_kwh"`
	Date          time.Time `json:"date"` // UTC midnight
	Season        string    `json:"season,omitempty"`
	HouseholdSize *int      `json:"household_size,omitempty"` // nil when unknown
}

// DailySeriesPoint is the per-household aggregate for one calendar day
type DailySeriesPoint struct {
	HouseholdID      string    `json:"household_id"`
	Date             time.Time `json:"date"`
	TotalKWh         float64   `json:"total_kwh"`
	UniqueAppliances int       `json:"unique_appliances"`
	Rolling7Mean     float64   `json:"rolling_7_mean"`
	DayOfWeek        int       `json:"day_of_week"` // 0 = Monday
	Filled           bool      `json:"filled,omitempty"`
}

// GlobalDailyPoint is the daily total across every household in a batch
type GlobalDailyPoint struct {
	Date time.Time `json:"ds"`
	Y    float64   `json:"y"`
}

// ScoredPoint is a daily point with the anomaly scorer's verdict attached
type ScoredPoint struct {
	DailySeriesPoint
	Score   float64 `json:"score"` // higher = more normal
	Anomaly bool    `json:"anomaly"`
}

// ForecastPoint is one predicted day with its interval
type ForecastPoint struct {
	Date      time.Time `json:"ds"`
	YHat      float64   `json:"yhat"`
	YHatLower float64   `json:"yhat_lower"`
	YHatUpper float64   `json:"yhat_upper"`
}

// ReadingFilter narrows a reading query. Zero values mean "no constraint";
// Start and End are inclusive calendar dates.
type ReadingFilter struct {
	HouseholdID string
	Start       *time.Time
	End         *time.Time
}

// Match reports whether r passes the filter
func (f ReadingFilter) Match(r Reading) bool {
	if f.HouseholdID != "" && r.HouseholdID != f.HouseholdID {
		return false
	}
	if f.Start != nil && r.Date.Before(*f.Start) {
		return false
	}
	if f.End != nil && r.Date.After(*f.End) {
		return false
	}
	return true
}

// DateOf truncates t to its calendar date at UTC midnight
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC calendar date
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
