// Package analytics computes the consumption summaries shown on the
// appliance and household dashboards.
package analytics

import (
	"cmp"
	"slices"
	"time"

	"github.com/jgoulah/homeenergy/internal/series"
	"github.com/jgoulah/homeenergy/pkg/models"
)

// Total is the energy summed over one key
type Total struct {
	Key string  `json:"key"`
	KWh float64 `json:"kwh"`
}

// Comparison sets a household's appliance total against the mean reading
// for that appliance across all households
type Comparison struct {
	ApplianceType string  `json:"appliance_type"`
	HouseholdKWh  float64 `json:"household_kwh"`
	AverageKWh    float64 `json:"average_kwh"`
}

// Overview summarizes a set of readings
type Overview struct {
	Readings   int     `json:"readings"`
	Households int     `json:"households"`
	TotalKWh   float64 `json:"total_kwh"`
	MeanKWh    float64 `json:"mean_kwh"` // per reading
	Appliances []Total `json:"appliances"`
	Top        []Total `json:"top"`
}

// Household summarizes one household's readings
type Household struct {
	HouseholdID       string                    `json:"household_id"`
	Readings          int                       `json:"readings"`
	TotalKWh          float64                   `json:"total_kwh"`
	MeanKWh           float64                   `json:"mean_kwh"`
	MeanHouseholdSize *float64                  `json:"mean_household_size,omitempty"`
	Appliances        []Total                   `json:"appliances"`
	Seasons           []Total                   `json:"seasons"`
	Daily             []models.GlobalDailyPoint `json:"daily"`
	Comparison        []Comparison              `json:"comparison"`
}

// TopN is how many appliances the overview ranks
const TopN = 5

func sumBy(readings []models.Reading, key func(models.Reading) string) []Total {
	sums := make(map[string]float64)
	for _, r := range readings {
		k := key(r)
		if k == "" {
			continue
		}
		sums[k] += r.EnergyKWh
	}
	out := make([]Total, 0, len(sums))
	for k, v := range sums {
		out = append(out, Total{Key: k, KWh: v})
	}
	// largest first, ties by name so output is stable
	slices.SortFunc(out, func(a, b Total) int {
		if c := cmp.Compare(b.KWh, a.KWh); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return out
}

// ApplianceTotals sums energy per appliance type, largest first
func ApplianceTotals(readings []models.Reading) []Total {
	return sumBy(readings, func(r models.Reading) string { return r.ApplianceType })
}

// TopAppliances returns the n appliance types with the highest total
func TopAppliances(readings []models.Reading, n int) []Total {
	totals := ApplianceTotals(readings)
	if n >= 0 && len(totals) > n {
		totals = totals[:n]
	}
	return totals
}

// SeasonTotals sums energy per season; readings without a season are skipped
func SeasonTotals(readings []models.Reading) []Total {
	return sumBy(readings, func(r models.Reading) string { return r.Season })
}

func totalAndMean(readings []models.Reading) (float64, float64) {
	total := 0.0
	for _, r := range readings {
		total += r.EnergyKWh
	}
	if len(readings) == 0 {
		return 0, 0
	}
	return total, total / float64(len(readings))
}

// Summarize builds the all-households overview
func Summarize(readings []models.Reading) Overview {
	total, mean := totalAndMean(readings)
	households := make(map[string]struct{})
	for _, r := range readings {
		households[r.HouseholdID] = struct{}{}
	}
	return Overview{
		Readings:   len(readings),
		Households: len(households),
		TotalKWh:   total,
		MeanKWh:    mean,
		Appliances: ApplianceTotals(readings),
		Top:        TopAppliances(readings, TopN),
	}
}

// HouseholdSummary summarizes household against the whole population in
// all. It returns false when the household has no readings.
func HouseholdSummary(household string, all []models.Reading) (Household, bool) {
	own := series.Filter(all, models.ReadingFilter{HouseholdID: household})
	if household == "" || len(own) == 0 {
		return Household{}, false
	}

	total, mean := totalAndMean(own)
	h := Household{
		HouseholdID: household,
		Readings:    len(own),
		TotalKWh:    total,
		MeanKWh:     mean,
		Appliances:  ApplianceTotals(own),
		Seasons:     SeasonTotals(own),
		Daily:       dailyTotals(own),
	}

	sizeSum, sizeN := 0, 0
	for _, r := range own {
		if r.HouseholdSize != nil {
			sizeSum += *r.HouseholdSize
			sizeN++
		}
	}
	if sizeN > 0 {
		m := float64(sizeSum) / float64(sizeN)
		h.MeanHouseholdSize = &m
	}

	type acc struct {
		sum float64
		n   int
	}
	population := make(map[string]acc)
	for _, r := range all {
		a := population[r.ApplianceType]
		a.sum += r.EnergyKWh
		a.n++
		population[r.ApplianceType] = a
	}
	for _, t := range h.Appliances {
		a := population[t.Key]
		h.Comparison = append(h.Comparison, Comparison{
			ApplianceType: t.Key,
			HouseholdKWh:  t.KWh,
			AverageKWh:    a.sum / float64(a.n),
		})
	}
	return h, true
}

// dailyTotals sums energy per observed day without filling gaps
func dailyTotals(readings []models.Reading) []models.GlobalDailyPoint {
	sums := make(map[time.Time]float64)
	for _, r := range readings {
		sums[models.DateOf(r.Date)] += r.EnergyKWh
	}
	out := make([]models.GlobalDailyPoint, 0, len(sums))
	for d, v := range sums {
		out = append(out, models.GlobalDailyPoint{Date: d, Y: v})
	}
	slices.SortFunc(out, func(a, b models.GlobalDailyPoint) int { return a.Date.Compare(b.Date) })
	return out
}
