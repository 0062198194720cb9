package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jgoulah/homeenergy/internal/ingest"
	"github.com/jgoulah/homeenergy/pkg/models"
	"github.com/spf13/cobra"
)

var importBatchSize int

var importCmd = &cobra.Command{
	Use:   "import <file.csv>...",
	Short: "Import readings from CSV exports",
	Long: `Reads appliance-level readings from one or more CSV files. Header names
are matched loosely ("Home ID", "Energy Consumption (kWh)", ...). Rows with a
missing household, appliance, energy value or date are skipped and counted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().IntVar(&importBatchSize, "batch-size", 1000, "Readings per database transaction")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Import started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	normalizer := ingest.NewNormalizer()
	inserted := 0

	for _, path := range args {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		fmt.Printf("Importing %s (%s)...\n", path, humanize.Bytes(uint64(info.Size())))

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}

		batch := make([]models.Reading, 0, importBatchSize)
		flush := func() error {
			n, err := db.InsertReadings(ctx, batch)
			if err != nil {
				return err
			}
			inserted += n
			batch = batch[:0]
			return nil
		}

		start := time.Now()
		stats, err := ingest.ReadCSV(f, normalizer, func(r models.Reading) error {
			batch = append(batch, r)
			if len(batch) >= importBatchSize {
				return flush()
			}
			return nil
		})
		if err == nil {
			err = flush()
		}
		f.Close()
		if err != nil {
			return fmt.Errorf("importing %s: %w", path, err)
		}

		fmt.Printf("  %s accepted, %s rejected in %s\n",
			humanize.Comma(int64(stats.Accepted)), humanize.Comma(int64(stats.Rejected)),
			time.Since(start).Round(time.Millisecond))
	}

	total, err := db.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\nImported %s new readings (%s accepted, %s rejected). Database now holds %s readings.\n",
		humanize.Comma(int64(inserted)),
		humanize.Comma(int64(normalizer.Accepted())),
		humanize.Comma(int64(normalizer.Rejected())),
		humanize.Comma(int64(total)))
	return nil
}
