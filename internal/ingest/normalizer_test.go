package ingest

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jgoulah/homeenergy/internal/apperr"
	"github.com/jgoulah/homeenergy/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"Home ID":                  "homeid",
		"  Appliance Type ":        "appliancetype",
		"Energy Consumption (kWh)": "energyconsumption",
		"Outdoor Temperature (°C)": "outdoortemperature",
		"Outdoor Temperature (Â°C)": "outdoortemperature",
		"Household Size":           "householdsize",
		"Date":                     "date",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeHeader(in), in)
	}
}

func TestNormalizer_Normalize(t *testing.T) {
	tests := []struct {
		name      string
		row       map[string]string
		wantErr   string
		wantField string
		check     func(t *testing.T, r models.Reading)
	}{
		{
			name: "full row with survey headers",
			row: map[string]string{
				"Home ID":                  "94",
				"Appliance Type":           "Fridge",
				"Energy Consumption (kWh)": "0.2",
				"Time":                     "21:12",
				"Date":                     "2023-12-02",
				"Outdoor Temperature (°C)": "-1.0",
				"Season":                   "Fall",
				"Household Size":           "2",
			},
			check: func(t *testing.T, r models.Reading) {
				assert.Equal(t, "94", r.HouseholdID)
				assert.Equal(t, "Fridge", r.ApplianceType)
				assert.InDelta(t, 0.2, r.EnergyKWh, 1e-9)
				assert.Equal(t, time.Date(2023, 12, 2, 0, 0, 0, 0, time.UTC), r.Date)
				assert.Equal(t, "Fall", r.Season)
				require.NotNil(t, r.HouseholdSize)
				assert.Equal(t, 2, *r.HouseholdSize)
				assert.Equal(t, "id-1", r.ID)
			},
		},
		{
			name: "unparseable household size only nulls that field",
			row: map[string]string{
				"homeid": "7", "appliancetype": "Heater", "energyconsumption": "1,250.5 kWh",
				"date": "1/15/2024", "householdsize": "several",
			},
			check: func(t *testing.T, r models.Reading) {
				assert.Nil(t, r.HouseholdSize)
				assert.InDelta(t, 1250.5, r.EnergyKWh, 1e-9)
				assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), r.Date)
			},
		},
		{
			name:      "missing energy",
			row:       map[string]string{"Home ID": "1", "Appliance Type": "Oven", "Date": "2024-01-01"},
			wantErr:   "missing or not a number",
			wantField: "energy_kwh",
		},
		{
			name:      "unparseable energy",
			row:       map[string]string{"Home ID": "1", "Appliance Type": "Oven", "Energy Consumption (kWh)": "n/a", "Date": "2024-01-01"},
			wantErr:   "missing or not a number",
			wantField: "energy_kwh",
		},
		{
			name:      "negative energy",
			row:       map[string]string{"Home ID": "1", "Appliance Type": "Oven", "Energy Consumption (kWh)": "-3", "Date": "2024-01-01"},
			wantErr:   "negative",
			wantField: "energy_kwh",
		},
		{
			name:      "blank household",
			row:       map[string]string{"Home ID": "  ", "Appliance Type": "Oven", "Energy Consumption (kWh)": "1", "Date": "2024-01-01"},
			wantErr:   "missing",
			wantField: "household_id",
		},
		{
			name:      "missing appliance",
			row:       map[string]string{"Home ID": "1", "Energy Consumption (kWh)": "1", "Date": "2024-01-01"},
			wantErr:   "missing",
			wantField: "appliance_type",
		},
		{
			name:      "bad date",
			row:       map[string]string{"Home ID": "1", "Appliance Type": "Oven", "Energy Consumption (kWh)": "1", "Date": "yesterday"},
			wantErr:   "unable to parse date",
			wantField: "date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNormalizer()
			n.newID = func() string { return "id-1" }

			r, err := n.Normalize(tt.row)
			if tt.wantErr != "" {
				require.Error(t, err)
				var ve *apperr.ValidationError
				require.True(t, errors.As(err, &ve))
				assert.Equal(t, tt.wantField, ve.Field)
				assert.Contains(t, ve.Message, tt.wantErr)
				assert.Equal(t, 0, n.Accepted())
				assert.Equal(t, 1, n.Rejected())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, n.Accepted())
			assert.Equal(t, 0, n.Rejected())
			tt.check(t, r)
		})
	}
}

func TestNormalizer_AssignsUniqueIDs(t *testing.T) {
	n := NewNormalizer()
	row := map[string]string{"homeid": "1", "appliancetype": "TV", "energy": "0.5", "date": "2024-03-01"}

	a, err := n.Normalize(row)
	require.NoError(t, err)
	b, err := n.Normalize(row)
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestNormalizer_DuplicateAliasesResolveByPreference(t *testing.T) {
	row := map[string]string{
		"Home ID":                  "H1",
		"Household ID":             "H2",
		"Appliance":                "Fridge",
		"Appliance Type":           "Oven",
		"Energy":                   "9.0",
		"Energy Consumption (kWh)": "1.5",
		"Date":                     "2024-03-01",
	}

	n := NewNormalizer()
	for range 200 {
		r, err := n.Normalize(row)
		require.NoError(t, err)
		assert.Equal(t, "H1", r.HouseholdID)
		assert.Equal(t, "Oven", r.ApplianceType)
		assert.Equal(t, 1.5, r.EnergyKWh)
	}
}

func TestNormalizer_EmptyPreferredAliasFallsBack(t *testing.T) {
	row := map[string]string{
		"Home ID":        "",
		"Household ID":   "H2",
		"Appliance Type": "TV",
		"Energy":         "0.4",
		"Date":           "2024-03-01",
	}

	r, err := NewNormalizer().Normalize(row)
	require.NoError(t, err)
	assert.Equal(t, "H2", r.HouseholdID)
}

func TestNormalizer_ConcurrentCounters(t *testing.T) {
	n := NewNormalizer()
	good := map[string]string{"homeid": "1", "appliancetype": "TV", "energy": "0.5", "date": "2024-03-01"}
	bad := map[string]string{"homeid": "1", "appliancetype": "TV", "date": "2024-03-01"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); _, _ = n.Normalize(good) }()
		go func() { defer wg.Done(); _, _ = n.Normalize(bad) }()
	}
	wg.Wait()

	assert.Equal(t, 50, n.Accepted())
	assert.Equal(t, 50, n.Rejected())
}

func TestReadCSV(t *testing.T) {
	input := "\ufeffHome ID,Appliance Type,Energy Consumption (kWh),Time,Date,Outdoor Temperature (°C),Season,Household Size\n" +
		"94,Fridge,0.2,21:12,2023-12-02,-1.0,Fall,2\n" +
		"94,Oven,,08:00,2023-12-02,-1.0,Fall,2\n" +
		"435,Oven,0.23,20:11,2023-08-06,31.1,Summer,5\n" +
		",Oven,1.0,20:11,2023-08-06,31.1,Summer,5\n" +
		"435,Heater,2.5\n"

	n := NewNormalizer()
	var got []models.Reading
	stats, err := ReadCSV(strings.NewReader(input), n, func(r models.Reading) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, Stats{Accepted: 2, Rejected: 3}, stats)
	assert.Equal(t, 2, n.Accepted())
	assert.Equal(t, 3, n.Rejected())
	require.Len(t, got, 2)
	assert.Equal(t, "94", got[0].HouseholdID)
	assert.Equal(t, "435", got[1].HouseholdID)
}

func TestReadCSV_SinkErrorStopsBatch(t *testing.T) {
	input := "homeid,appliancetype,energy,date\n1,TV,1,2024-01-01\n1,TV,2,2024-01-02\n"
	sinkErr := errors.New("disk full")

	calls := 0
	stats, err := ReadCSV(strings.NewReader(input), NewNormalizer(), func(models.Reading) error {
		calls++
		return sinkErr
	})
	require.ErrorIs(t, err, sinkErr)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, stats.Accepted)
}

func TestReadCSV_Empty(t *testing.T) {
	stats, err := ReadCSV(strings.NewReader(""), NewNormalizer(), func(models.Reading) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}
