package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jgoulah/homeenergy/pkg/models"
	"github.com/spf13/cobra"
)

var (
	forecastDays      int
	forecastHousehold string
	forecastJSON      bool
)

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Forecast total daily energy use",
	Long: `Aggregates stored readings into a daily total across all households and
asks the forecasting model for the next N days.`,
	RunE: runForecast,
}

func init() {
	forecastCmd.Flags().IntVar(&forecastDays, "days", 0, "Days to forecast (default from config, 7)")
	forecastCmd.Flags().StringVar(&forecastHousehold, "household", "", "Restrict history to one household")
	forecastCmd.Flags().BoolVar(&forecastJSON, "json", false, "Print JSON instead of a table")
	rootCmd.AddCommand(forecastCmd)
}

func runForecast(cmd *cobra.Command, args []string) error {
	days := forecastDays
	if days == 0 {
		days = cfg.GetForecastDays()
	}
	if days < 0 {
		return fmt.Errorf("--days must be positive, got %d", days)
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	points, err := newService(db).Forecast(cmd.Context(), days, forecastHousehold)
	if err != nil {
		return fmt.Errorf("forecasting: %w", err)
	}

	if forecastJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(points)
	}

	if len(points) == 0 {
		fmt.Println("No readings to forecast from")
		return nil
	}

	fmt.Printf("Forecast for the next %d days:\n", len(points))
	fmt.Println("--------------------------------------------------")
	fmt.Printf("%-12s  %10s  %10s  %10s\n", "Date", "kWh", "Low", "High")
	fmt.Println("--------------------------------------------------")
	for _, p := range points {
		fmt.Printf("%-12s  %10.2f  %10.2f  %10.2f\n", p.Date.Format(models.DateLayout), p.YHat, p.YHatLower, p.YHatUpper)
	}
	return nil
}
