package graph

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/reslab/lergraph/pkg/schema"
	"github.com/reslab/lergraph/pkg/similarity"
)

// WriteCSV writes the linked-pair export: one row per qualifying pair with
// the per-dimension scores and the overall score. Column order follows the
// profile's dimension order.
func WriteCSV(w io.Writer, profile *schema.Profile, links []*similarity.Link) error {
	cw := csv.NewWriter(w)

	dims := profile.ScoredDimensions()

	header := make([]string, 0, len(dims)+3)
	header = append(header, "filename_1", "filename_2")
	for _, dim := range dims {
		header = append(header, schema.ColumnName(dim))
	}
	header = append(header, "overall_similarity")
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}

	for _, link := range links {
		row := make([]string, 0, len(header))
		row = append(row, link.File1, link.File2)
		for _, dim := range dims {
			row = append(row, formatScore(link.Scores[dim]))
		}
		row = append(row, formatScore(link.Overall))
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write export row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 6, 64)
}
