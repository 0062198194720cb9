package series

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/jgoulah/homeenergy/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func reading(household, appliance string, kwh float64, d string) models.Reading {
	return models.Reading{HouseholdID: household, ApplianceType: appliance, EnergyKWh: kwh, Date: date(d)}
}

func TestReconstruct_FillsMissingDays(t *testing.T) {
	readings := []models.Reading{
		reading("H1", "applianceB", 3.0, "2024-01-03"),
		reading("H1", "applianceA", 5.0, "2024-01-01"),
	}

	got := Reconstruct(readings)
	require.Len(t, got, 3)

	assert.Equal(t, date("2024-01-01"), got[0].Date)
	assert.InDelta(t, 5.0, got[0].TotalKWh, 1e-9)
	assert.Equal(t, 1, got[0].UniqueAppliances)
	assert.False(t, got[0].Filled)

	assert.Equal(t, date("2024-01-02"), got[1].Date)
	assert.Zero(t, got[1].TotalKWh)
	assert.Zero(t, got[1].UniqueAppliances)
	assert.True(t, got[1].Filled)

	assert.Equal(t, date("2024-01-03"), got[2].Date)
	assert.InDelta(t, 3.0, got[2].TotalKWh, 1e-9)
}

func TestReconstruct_AggregatesSameDay(t *testing.T) {
	tests := []struct {
		name           string
		appliances     [2]string
		wantAppliances int
	}{
		{name: "distinct appliances", appliances: [2]string{"Fridge", "Oven"}, wantAppliances: 2},
		{name: "same appliance", appliances: [2]string{"Fridge", "Fridge"}, wantAppliances: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconstruct([]models.Reading{
				reading("H1", tt.appliances[0], 2.0, "2024-02-10"),
				reading("H1", tt.appliances[1], 3.0, "2024-02-10"),
			})
			require.Len(t, got, 1)
			assert.InDelta(t, 5.0, got[0].TotalKWh, 1e-9)
			assert.Equal(t, tt.wantAppliances, got[0].UniqueAppliances)
		})
	}
}

func TestReconstruct_SingleReading(t *testing.T) {
	got := Reconstruct([]models.Reading{reading("H9", "TV", 1.5, "2024-05-05")})
	require.Len(t, got, 1)
	assert.Equal(t, "H9", got[0].HouseholdID)
	assert.Equal(t, date("2024-05-05"), got[0].Date)
}

func TestReconstruct_Empty(t *testing.T) {
	assert.Empty(t, Reconstruct(nil))
	assert.Empty(t, Global(nil))
}

func TestReconstruct_HouseholdsIndependent(t *testing.T) {
	readings := []models.Reading{
		reading("B", "TV", 1, "2024-01-01"),
		reading("B", "TV", 1, "2024-01-02"),
		reading("A", "TV", 1, "2024-01-01"),
		reading("A", "TV", 1, "2024-01-10"),
	}

	got := Reconstruct(readings)
	lengths := Lengths(got)
	assert.Equal(t, 10, lengths["A"])
	assert.Equal(t, 2, lengths["B"])

	// ordered by household, then date
	assert.Equal(t, "A", got[0].HouseholdID)
	assert.Equal(t, "A", got[9].HouseholdID)
	assert.Equal(t, "B", got[10].HouseholdID)
	assert.Equal(t, date("2024-01-01"), got[10].Date)
}

func TestReconstruct_RandomBatchesHaveNoGaps(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := date("2023-06-01")
	households := []string{"1", "2", "3", "4", "5"}
	appliances := []string{"Fridge", "Oven", "Heater", "TV", "Dishwasher"}

	for iter := 0; iter < 25; iter++ {
		var readings []models.Reading
		n := 1 + rng.Intn(200)
		for i := 0; i < n; i++ {
			readings = append(readings, models.Reading{
				HouseholdID:   households[rng.Intn(len(households))],
				ApplianceType: appliances[rng.Intn(len(appliances))],
				EnergyKWh:     rng.Float64() * 4,
				Date:          base.AddDate(0, 0, rng.Intn(120)),
			})
		}

		got := Reconstruct(readings)

		bounds := map[string][2]time.Time{}
		for _, r := range readings {
			b, ok := bounds[r.HouseholdID]
			if !ok {
				b = [2]time.Time{r.Date, r.Date}
			}
			if r.Date.Before(b[0]) {
				b[0] = r.Date
			}
			if r.Date.After(b[1]) {
				b[1] = r.Date
			}
			bounds[r.HouseholdID] = b
		}

		for h, n := range Lengths(got) {
			b := bounds[h]
			assert.Equal(t, Days(b[0], b[1])+1, n, fmt.Sprintf("iteration %d household %s", iter, h))
		}
		assert.Len(t, Lengths(got), len(bounds))

		for i := 1; i < len(got); i++ {
			if got[i].HouseholdID != got[i-1].HouseholdID {
				assert.Less(t, got[i-1].HouseholdID, got[i].HouseholdID)
				continue
			}
			assert.Equal(t, 1, Days(got[i-1].Date, got[i].Date), "consecutive dates must differ by one day")
		}
	}
}

func TestFilter_BoundsComeFromRemainingReadings(t *testing.T) {
	readings := []models.Reading{
		reading("H1", "TV", 1, "2024-01-01"),
		reading("H1", "TV", 1, "2024-01-05"),
		reading("H1", "TV", 1, "2024-01-08"),
		reading("H1", "TV", 1, "2024-01-20"),
		reading("H2", "TV", 1, "2024-01-25"),
	}
	start, end := date("2024-01-03"), date("2024-01-15")

	got := Reconstruct(Filter(readings, models.ReadingFilter{Start: &start, End: &end}))

	// H2 loses all its readings and drops out; H1 spans its own 5th..8th, not the filter bounds.
	require.Len(t, got, 4)
	for _, p := range got {
		assert.Equal(t, "H1", p.HouseholdID)
		assert.False(t, p.Date.Before(start))
		assert.False(t, p.Date.After(end))
	}
	assert.Equal(t, date("2024-01-05"), got[0].Date)
	assert.Equal(t, date("2024-01-08"), got[3].Date)
}

func TestFilter_Household(t *testing.T) {
	readings := []models.Reading{
		reading("H1", "TV", 1, "2024-01-01"),
		reading("H2", "TV", 1, "2024-01-01"),
	}
	got := Filter(readings, models.ReadingFilter{HouseholdID: "H2"})
	require.Len(t, got, 1)
	assert.Equal(t, "H2", got[0].HouseholdID)

	assert.Empty(t, Filter(readings, models.ReadingFilter{HouseholdID: "nope"}))
	assert.Len(t, Filter(readings, models.ReadingFilter{}), 2)
}

func TestGlobal(t *testing.T) {
	readings := []models.Reading{
		reading("H1", "TV", 1.5, "2024-03-01"),
		reading("H2", "Oven", 2.5, "2024-03-01"),
		reading("H2", "Oven", 4.0, "2024-03-04"),
	}

	got := Global(readings)
	require.Len(t, got, 4)
	assert.Equal(t, date("2024-03-01"), got[0].Date)
	assert.InDelta(t, 4.0, got[0].Y, 1e-9)
	assert.Zero(t, got[1].Y)
	assert.Zero(t, got[2].Y)
	assert.InDelta(t, 4.0, got[3].Y, 1e-9)
	assert.Equal(t, date("2024-03-04"), got[3].Date)
}

func TestDays(t *testing.T) {
	assert.Equal(t, 0, Days(date("2024-01-01"), date("2024-01-01")))
	assert.Equal(t, 31, Days(date("2024-01-01"), date("2024-02-01")))
	assert.Equal(t, 366, Days(date("2024-01-01"), date("2025-01-01")))
}
