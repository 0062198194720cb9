// Package isoforest scores feature rows with an isolation forest exported
// from a trained model as JSON.
//
// Artifact layout:
//
//	{
//	  "features":    ["total_kwh", "unique_appliances", "rolling_7_mean", "day_of_week"],
//	  "max_samples": 256,
//	  "offset":      -0.51,
//	  "scaler":      {"mean": [...], "scale": [...]},   // optional
//	  "trees": [
//	    {"nodes": [{"feature": 2, "threshold": 3.1, "left": 1, "right": 2, "samples": 256},
//	               {"left": -1, "right": -1, "samples": 200}, ...]}
//	  ]
//	}
//
// A node with left < 0 is a leaf. Rows go left when x[feature] <= threshold.
package isoforest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/jgoulah/homeenergy/internal/mlmodel"
)

const eulerGamma = 0.5772156649015329

// Node is one split or leaf of an isolation tree
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Samples   int     `json:"samples"`
}

// Tree is a flat array of nodes with the root at index 0
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Scaler standardizes rows before they reach the trees
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Forest is a loaded isolation forest
type Forest struct {
	Features   []string `json:"features"`
	MaxSamples int      `json:"max_samples"`
	Offset     float64  `json:"offset"`
	Scaler     *Scaler  `json:"scaler,omitempty"`
	Trees      []Tree   `json:"trees"`
}

var _ mlmodel.Scorer = (*Forest)(nil)

// LoadFile reads a forest artifact and checks it was trained on columns
func LoadFile(path string, columns []string) (*Forest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening forest: %w", err)
	}
	defer f.Close()
	return Load(f, columns)
}

// Load decodes and validates a forest artifact. The declared feature order
// must equal columns exactly.
func Load(r io.Reader, columns []string) (*Forest, error) {
	var forest Forest
	if err := json.NewDecoder(r).Decode(&forest); err != nil {
		return nil, fmt.Errorf("decoding forest: %w", err)
	}
	if err := forest.validate(columns); err != nil {
		return nil, err
	}
	return &forest, nil
}

func (f *Forest) validate(columns []string) error {
	if !slices.Equal(f.Features, columns) {
		return fmt.Errorf("forest trained on features %v, expected %v", f.Features, columns)
	}
	if len(f.Trees) == 0 {
		return fmt.Errorf("forest has no trees")
	}
	if f.MaxSamples < 1 {
		return fmt.Errorf("max_samples must be positive, got %d", f.MaxSamples)
	}
	if f.Scaler != nil {
		if len(f.Scaler.Mean) != len(f.Features) || len(f.Scaler.Scale) != len(f.Features) {
			return fmt.Errorf("scaler has %d means and %d scales for %d features",
				len(f.Scaler.Mean), len(f.Scaler.Scale), len(f.Features))
		}
	}
	for ti, t := range f.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Left < 0 {
				continue
			}
			// children always follow their parent, which also rules out cycles
			if n.Left <= ni || n.Right <= ni || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return fmt.Errorf("tree %d node %d has invalid children %d/%d", ti, ni, n.Left, n.Right)
			}
			if n.Feature < 0 || n.Feature >= len(f.Features) {
				return fmt.Errorf("tree %d node %d splits on unknown feature %d", ti, ni, n.Feature)
			}
		}
	}
	return nil
}

// Score classifies rows. Outlier is true when the decision value is
// negative; Score is the decision value itself (higher = more normal).
func (f *Forest) Score(_ context.Context, columns []string, rows [][]float64) ([]mlmodel.Prediction, error) {
	if !slices.Equal(columns, f.Features) {
		return nil, fmt.Errorf("column order %v does not match model features %v", columns, f.Features)
	}

	out := make([]mlmodel.Prediction, len(rows))
	for i, row := range rows {
		if len(row) != len(f.Features) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(f.Features))
		}
		d := f.Decision(row)
		out[i] = mlmodel.Prediction{Outlier: d < 0, Score: d}
	}
	return out, nil
}

// Decision returns score_samples(x) - offset for one row
func (f *Forest) Decision(row []float64) float64 {
	x := row
	if f.Scaler != nil {
		x = make([]float64, len(row))
		for i, v := range row {
			scale := f.Scaler.Scale[i]
			if scale == 0 {
				scale = 1
			}
			x[i] = (v - f.Scaler.Mean[i]) / scale
		}
	}

	depth := 0.0
	for _, t := range f.Trees {
		depth += t.pathLength(x)
	}
	mean := depth / float64(len(f.Trees))

	scoreSamples := -math.Pow(2, -mean/averagePathLength(f.MaxSamples))
	return scoreSamples - f.Offset
}

// pathLength counts the edges from root to leaf plus the expected remaining
// depth of the unsplit samples in the leaf
func (t Tree) pathLength(x []float64) float64 {
	i, edges := 0, 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return float64(edges) + averagePathLength(n.Samples)
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
		edges++
	}
}

// averagePathLength is the average depth of an unsuccessful search in a
// binary search tree of n points
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}
