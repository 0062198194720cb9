package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jgoulah/homeenergy/internal/analytics"
	"github.com/jgoulah/homeenergy/pkg/models"
	"github.com/spf13/cobra"
)

var summaryHousehold string

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize stored consumption",
	Long: `Prints appliance and season totals for all stored readings, or a single
household compared against the average across all households.`,
	RunE: runSummary,
}

func init() {
	summaryCmd.Flags().StringVar(&summaryHousehold, "household", "", "Summarize one household")
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	readings, err := db.Readings(cmd.Context(), models.ReadingFilter{})
	if err != nil {
		return fmt.Errorf("loading readings: %w", err)
	}

	if summaryHousehold != "" {
		h, ok := analytics.HouseholdSummary(summaryHousehold, readings)
		if !ok {
			return fmt.Errorf("household %q not found", summaryHousehold)
		}
		printHousehold(h)
		return nil
	}

	o := analytics.Summarize(readings)
	fmt.Printf("Readings:   %s\n", humanize.Comma(int64(o.Readings)))
	fmt.Printf("Households: %s\n", humanize.Comma(int64(o.Households)))
	fmt.Printf("Total:      %.2f kWh (mean %.2f kWh per reading)\n", o.TotalKWh, o.MeanKWh)

	fmt.Printf("\nTop %d appliances:\n", analytics.TopN)
	printTotals(o.Top)

	fmt.Println("\nBy season:")
	printTotals(analytics.SeasonTotals(readings))
	return nil
}

func printHousehold(h analytics.Household) {
	fmt.Printf("Household %s\n", h.HouseholdID)
	fmt.Printf("Readings: %d, total %.2f kWh, mean %.2f kWh\n", h.Readings, h.TotalKWh, h.MeanKWh)
	if h.MeanHouseholdSize != nil {
		fmt.Printf("Household size: %.1f\n", *h.MeanHouseholdSize)
	}

	fmt.Println("\nAppliance vs average:")
	fmt.Println("--------------------------------------------------")
	fmt.Printf("%-20s  %12s  %12s\n", "Appliance", "Household", "Average")
	fmt.Println("--------------------------------------------------")
	for _, c := range h.Comparison {
		fmt.Printf("%-20s  %12.2f  %12.2f\n", c.ApplianceType, c.HouseholdKWh, c.AverageKWh)
	}

	if len(h.Seasons) > 0 {
		fmt.Println("\nBy season:")
		printTotals(h.Seasons)
	}
}

func printTotals(totals []analytics.Total) {
	for _, t := range totals {
		fmt.Printf("  %-20s  %12.2f kWh\n", t.Key, t.KWh)
	}
}
