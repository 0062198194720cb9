// Package ingest turns raw tabular rows into canonical Readings.
//
// The Normalizer is the only place that deals with loosely named columns:
// everything downstream works with models.Reading.
package ingest

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jgoulah/homeenergy/internal/apperr"
	"github.com/jgoulah/homeenergy/pkg/models"
)

// unitSuffixes are stripped from header names after lower-casing and space removal
var unitSuffixes = []string{"(kwh)", "(°c)", "(â°c)", "(c)"}

// fieldAliases lists the accepted header names of each canonical field in
// order of preference. When a row carries more than one, the first non-empty
// one wins.
var fieldAliases = []struct {
	field   string
	aliases []string
}{
	{fieldHousehold, []string{"homeid", "householdid"}},
	{fieldAppliance, []string{"appliancetype", "appliance"}},
	{fieldEnergy, []string{"energyconsumption", "energykwh", "energy"}},
	{fieldDate, []string{"date"}},
	{fieldSeason, []string{"season"}},
	{fieldHouseholdSize, []string{"householdsize"}},
}

const (
	fieldHousehold     = "household_id"
	fieldAppliance     = "appliance_type"
	fieldEnergy        = "energy_kwh"
	fieldDate          = "date"
	fieldSeason        = "season"
	fieldHouseholdSize = "household_size"
)

// NormalizeHeader trims, lower-cases, removes spaces and strips known unit suffixes,
// so "Energy Consumption (kWh)" becomes "energyconsumption".
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "")
	for _, suffix := range unitSuffixes {
		h = strings.ReplaceAll(h, suffix, "")
	}
	return h
}

// Normalizer validates raw rows and counts what it accepted and rejected.
// It is safe for concurrent use.
type Normalizer struct {
	accepted atomic.Int64
	rejected atomic.Int64
	newID    func() string
}

// NewNormalizer creates a normalizer that assigns random UUIDs to readings
func NewNormalizer() *Normalizer {
	return &Normalizer{newID: uuid.NewString}
}

// Accepted returns the number of rows turned into readings so far
func (n *Normalizer) Accepted() int { return int(n.accepted.Load()) }

// Rejected returns the number of rows dropped so far
func (n *Normalizer) Rejected() int { return int(n.rejected.Load()) }

// Normalize converts a row keyed by raw header names into a Reading.
// Coercion failures null the affected field; the row is rejected only when
// household, appliance, energy or date end up missing.
func (n *Normalizer) Normalize(row map[string]string) (models.Reading, error) {
	// Raw keys are visited in sorted order so two spellings of one header
	// ("Home ID", "homeid") resolve the same way on every call.
	byName := make(map[string]string, len(row))
	for _, k := range slices.Sorted(maps.Keys(row)) {
		name := NormalizeHeader(k)
		if byName[name] == "" {
			byName[name] = strings.TrimSpace(row[k])
		}
	}

	fields := make(map[string]string, len(fieldAliases))
	for _, f := range fieldAliases {
		for _, alias := range f.aliases {
			if v := byName[alias]; v != "" {
				fields[f.field] = v
				break
			}
		}
	}

	reading, err := n.build(fields)
	if err != nil {
		n.rejected.Add(1)
		return models.Reading{}, err
	}
	n.accepted.Add(1)
	return reading, nil
}

func (n *Normalizer) build(fields map[string]string) (models.Reading, error) {
	household := fields[fieldHousehold]
	if household == "" {
		return models.Reading{}, &apperr.ValidationError{Field: fieldHousehold, Message: "missing"}
	}
	appliance := fields[fieldAppliance]
	if appliance == "" {
		return models.Reading{}, &apperr.ValidationError{Field: fieldAppliance, Message: "missing"}
	}

	energy, ok := parseKWh(fields[fieldEnergy])
	if !ok {
		return models.Reading{}, &apperr.ValidationError{Field: fieldEnergy, Value: fields[fieldEnergy], Message: "missing or not a number"}
	}
	if energy < 0 {
		return models.Reading{}, &apperr.ValidationError{Field: fieldEnergy, Value: fields[fieldEnergy], Message: "negative"}
	}

	date, err := parseDate(fields[fieldDate])
	if err != nil {
		return models.Reading{}, &apperr.ValidationError{Field: fieldDate, Value: fields[fieldDate], Message: err.Error()}
	}

	reading := models.Reading{
		ID:            n.newID(),
		HouseholdID:   household,
		ApplianceType: appliance,
		EnergyKWh:     energy,
		Date:          date,
		Season:        fields[fieldSeason],
	}
	if size, err := strconv.Atoi(fields[fieldHouseholdSize]); err == nil && size >= 0 {
		reading.HouseholdSize = &size
	}
	return reading, nil
}

// parseKWh parses an energy value, tolerating thousands separators and a kWh suffix
func parseKWh(s string) (float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimSuffix(s, "kwh")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var dateFormats = []string{
	models.DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
	"Jan 2, 2006",
	"January 2, 2006",
}

// parseDate accepts the date layouts seen in utility and survey exports and
// truncates the result to a calendar date.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing")
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return models.DateOf(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date")
}
