package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jgoulah/homeenergy/pkg/models"
)

// Stats reports the outcome of one ingested batch
type Stats struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// ReadCSV streams a CSV export through the normalizer, handing every accepted
// reading to sink. Bad rows are counted and skipped; only a broken stream or
// a sink error stops the batch.
func ReadCSV(r io.Reader, n *Normalizer, sink func(models.Reading) error) (Stats, error) {
	var stats Stats

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("reading CSV header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = NormalizeHeader(h)
	}
	slog.Debug("Normalized CSV headers", "headers", normalized)

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				n.rejected.Add(1)
				stats.Rejected++
				slog.Debug("Skipping unparseable CSV row", "line", line, "error", err)
				continue
			}
			return stats, fmt.Errorf("reading CSV row %d: %w", line, err)
		}

		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}

		reading, err := n.Normalize(row)
		if err != nil {
			stats.Rejected++
			slog.Debug("Rejected row", "line", line, "error", err)
			continue
		}

		if err := sink(reading); err != nil {
			return stats, fmt.Errorf("storing row %d: %w", line, err)
		}
		stats.Accepted++
	}

	return stats, nil
}
