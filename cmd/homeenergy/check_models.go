package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/jgoulah/homeenergy/internal/mlmodel/loader"
	"github.com/spf13/cobra"
)

var checkModelsCmd = &cobra.Command{
	Use:   "check-models",
	Short: "Verify the forecasting and anomaly models load",
	RunE:  runCheckModels,
}

func init() {
	rootCmd.AddCommand(checkModelsCmd)
}

func runCheckModels(cmd *cobra.Command, args []string) error {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	failed := 0
	for _, s := range loader.Check(cmd.Context(), cfg) {
		if s.OK() {
			green.Printf("✓ %s", s.Model)
			fmt.Printf("  %s\n", s.Source)
			continue
		}
		failed++
		red.Printf("✗ %s", s.Model)
		fmt.Printf("  %s: %v\n", s.Source, s.Err)
	}

	if failed > 0 {
		return fmt.Errorf("%d model(s) failed to load", failed)
	}
	return nil
}
