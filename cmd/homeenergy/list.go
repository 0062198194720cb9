package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jgoulah/homeenergy/pkg/models"
	"github.com/spf13/cobra"
)

var (
	listHousehold string
	listStart     string
	listEnd       string
	listLimit     int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored readings",
	Long:  `Displays stored appliance readings, grouped by household.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listHousehold, "household", "", "Filter by household id")
	listCmd.Flags().StringVar(&listStart, "start", "", "Only list readings from this date (YYYY-MM-DD or relative like 7d)")
	listCmd.Flags().StringVar(&listEnd, "end", "", "Only list readings up to this date (YYYY-MM-DD)")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Limit number of readings per household (0 = no limit)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	since, err := parseDateFlag("start", listStart)
	if err != nil {
		return err
	}
	until, err := parseDateFlag("end", listEnd)
	if err != nil {
		return err
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	readings, err := db.Readings(cmd.Context(), models.ReadingFilter{HouseholdID: listHousehold, Start: since, End: until})
	if err != nil {
		return fmt.Errorf("listing readings: %w", err)
	}

	if len(readings) == 0 {
		fmt.Println("No readings found")
		return nil
	}

	var total float64
	shown := 0
	for i, r := range readings {
		if i == 0 || r.HouseholdID != readings[i-1].HouseholdID {
			fmt.Printf("\nHousehold %s:\n", r.HouseholdID)
			fmt.Println("--------------------------------------------------")
			fmt.Printf("%-12s  %-20s  %10s\n", "Date", "Appliance", "kWh")
			fmt.Println("--------------------------------------------------")
			shown = 0
		}
		total += r.EnergyKWh
		if listLimit > 0 && shown >= listLimit {
			continue
		}
		fmt.Printf("%-12s  %-20s  %10.2f\n", r.Date.Format(models.DateLayout), r.ApplianceType, r.EnergyKWh)
		shown++
	}

	fmt.Println("--------------------------------------------------")
	fmt.Printf("Total: %.2f kWh (%s records)\n", total, humanize.Comma(int64(len(readings))))
	return nil
}
