// Package series rebuilds gap-free daily series from irregular readings.
package series

import (
	"sort"
	"time"

	"github.com/jgoulah/homeenergy/pkg/models"
)

const day = 24 * time.Hour

// Days returns the whole number of calendar days from a to b
func Days(a, b time.Time) int {
	return int(models.DateOf(b).Sub(models.DateOf(a)) / day)
}

// Filter applies a household and inclusive date range filter to raw readings.
// It runs before grouping, so reconstruction derives its bounds from what remains.
func Filter(readings []models.Reading, f models.ReadingFilter) []models.Reading {
	if f.HouseholdID == "" && f.Start == nil && f.End == nil {
		return readings
	}
	out := make([]models.Reading, 0, len(readings))
	for _, r := range readings {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

type groupKey struct {
	household string
	date      time.Time
}

type group struct {
	total      float64
	appliances map[string]struct{}
}

// Reconstruct groups readings by household and day and fills every missing
// calendar day between each household's first and last observed date with a
// zero point. The result is ordered by household, then date.
func Reconstruct(readings []models.Reading) []models.DailySeriesPoint {
	if len(readings) == 0 {
		return nil
	}

	groups := make(map[groupKey]*group)
	bounds := make(map[string][2]time.Time)
	for _, r := range readings {
		d := models.DateOf(r.Date)
		k := groupKey{household: r.HouseholdID, date: d}
		g, ok := groups[k]
		if !ok {
			g = &group{appliances: make(map[string]struct{})}
			groups[k] = g
		}
		g.total += r.EnergyKWh
		g.appliances[r.ApplianceType] = struct{}{}

		b, seen := bounds[r.HouseholdID]
		if !seen {
			bounds[r.HouseholdID] = [2]time.Time{d, d}
			continue
		}
		if d.Before(b[0]) {
			b[0] = d
		}
		if d.After(b[1]) {
			b[1] = d
		}
		bounds[r.HouseholdID] = b
	}

	households := make([]string, 0, len(bounds))
	total := 0
	for h, b := range bounds {
		households = append(households, h)
		total += Days(b[0], b[1]) + 1
	}
	sort.Strings(households)

	out := make([]models.DailySeriesPoint, 0, total)
	for _, h := range households {
		b := bounds[h]
		for d := b[0]; !d.After(b[1]); d = d.AddDate(0, 0, 1) {
			p := models.DailySeriesPoint{HouseholdID: h, Date: d}
			if g, ok := groups[groupKey{household: h, date: d}]; ok {
				p.TotalKWh = g.total
				p.UniqueAppliances = len(g.appliances)
			} else {
				p.Filled = true
			}
			out = append(out, p)
		}
	}
	return out
}

// Global sums readings per day across all households and fills the days
// missing between the batch's first and last date with zero.
func Global(readings []models.Reading) []models.GlobalDailyPoint {
	if len(readings) == 0 {
		return nil
	}

	totals := make(map[time.Time]float64)
	first := models.DateOf(readings[0].Date)
	last := first
	for _, r := range readings {
		d := models.DateOf(r.Date)
		totals[d] += r.EnergyKWh
		if d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
	}

	out := make([]models.GlobalDailyPoint, 0, Days(first, last)+1)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		out = append(out, models.GlobalDailyPoint{Date: d, Y: totals[d]})
	}
	return out
}

// Lengths returns the number of points per household, for logging
func Lengths(points []models.DailySeriesPoint) map[string]int {
	out := make(map[string]int)
	for _, p := range points {
		out[p.HouseholdID]++
	}
	return out
}
