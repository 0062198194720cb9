package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/jgoulah/homeenergy/internal/pipeline"
	"github.com/jgoulah/homeenergy/pkg/models"
	"github.com/spf13/cobra"
)

var (
	anomalyHousehold string
	anomalyStart     string
	anomalyEnd       string
	anomalyOnly      bool
	anomalyDebug     bool
	anomalyJSON      bool
)

var anomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "Score household days for anomalous consumption",
	Long: `Rebuilds each household's daily series, fills missing days, and scores
every day with the anomaly model. Anomalous days are shown in red.`,
	RunE: runAnomalies,
}

func init() {
	anomaliesCmd.Flags().StringVar(&anomalyHousehold, "household", "", "Only score this household")
	anomaliesCmd.Flags().StringVar(&anomalyStart, "start", "", "Start date (YYYY-MM-DD or relative like 30d)")
	anomaliesCmd.Flags().StringVar(&anomalyEnd, "end", "", "End date (YYYY-MM-DD)")
	anomaliesCmd.Flags().BoolVar(&anomalyOnly, "only", false, "Only print anomalous days")
	anomaliesCmd.Flags().BoolVar(&anomalyDebug, "debug", false, "Keep the filled marker and log intermediate sizes")
	anomaliesCmd.Flags().BoolVar(&anomalyJSON, "json", false, "Print JSON instead of a table")
	rootCmd.AddCommand(anomaliesCmd)
}

func runAnomalies(cmd *cobra.Command, args []string) error {
	since, err := parseDateFlag("start", anomalyStart)
	if err != nil {
		return err
	}
	until, err := parseDateFlag("end", anomalyEnd)
	if err != nil {
		return err
	}
	if since != nil && until != nil && until.Before(*since) {
		return fmt.Errorf("--end must not be before --start")
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	points, err := newService(db).DetectAnomalies(cmd.Context(), pipeline.AnomalyRequest{
		HouseholdID: anomalyHousehold,
		Start:       since,
		End:         until,
		Debug:       anomalyDebug,
	})
	if err != nil {
		return fmt.Errorf("detecting anomalies: %w", err)
	}

	if anomalyOnly {
		flagged := points[:0]
		for _, p := range points {
			if p.Anomaly {
				flagged = append(flagged, p)
			}
		}
		points = flagged
	}

	if anomalyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(points)
	}

	printScored(points)
	return nil
}

func printScored(points []models.ScoredPoint) {
	if len(points) == 0 {
		fmt.Println("No days to report")
		return
	}

	red := color.New(color.FgRed, color.Bold)
	anomalies := 0
	for i, p := range points {
		if i == 0 || p.HouseholdID != points[i-1].HouseholdID {
			fmt.Printf("\nHousehold %s:\n", p.HouseholdID)
			fmt.Println("----------------------------------------------------------------")
			fmt.Printf("%-12s  %10s  %10s  %5s  %9s\n", "Date", "kWh", "7d mean", "Appl", "Score")
			fmt.Println("----------------------------------------------------------------")
		}

		line := fmt.Sprintf("%-12s  %10.2f  %10.2f  %5d  %9.4f", p.Date.Format(models.DateLayout),
			p.TotalKWh, p.Rolling7Mean, p.UniqueAppliances, p.Score)
		if p.Filled {
			line += "  (filled)"
		}
		if p.Anomaly {
			anomalies++
			red.Println(line + "  ANOMALY")
			continue
		}
		fmt.Println(line)
	}

	fmt.Println("----------------------------------------------------------------")
	fmt.Printf("%d of %d days flagged\n", anomalies, len(points))
}
