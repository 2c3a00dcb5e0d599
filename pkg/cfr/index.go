package cfr

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Code is one regulatory code with its two-level classification.
type Code struct {
	CFR   string
	Upper string
	Lower string
}

// Index is the in-memory regulatory code reference, built once from the
// reference table and read-only afterwards.
type Index struct {
	codes map[string]Code
	order []string
}

// NewIndex parses the reference table CSV. The header row must contain the
// CFR, class_1 and class_2 columns; extra columns are ignored. Later rows
// with a repeated code overwrite earlier ones.
func NewIndex(r io.Reader) (*Index, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read reference table header: %w", err)
	}

	colCFR, colUpper, colLower := -1, -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "CFR":
			colCFR = i
		case "class_1":
			colUpper = i
		case "class_2":
			colLower = i
		}
	}
	if colCFR == -1 || colUpper == -1 || colLower == -1 {
		return nil, fmt.Errorf("reference table missing required columns, got header: %v", header)
	}

	idx := &Index{codes: make(map[string]Code)}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read reference table row: %w", err)
		}
		maxCol := colCFR
		if colUpper > maxCol {
			maxCol = colUpper
		}
		if colLower > maxCol {
			maxCol = colLower
		}
		if len(row) <= maxCol {
			continue
		}

		code := strings.TrimSpace(row[colCFR])
		if code == "" {
			continue
		}
		if _, exists := idx.codes[code]; !exists {
			idx.order = append(idx.order, code)
		}
		idx.codes[code] = Code{
			CFR:   code,
			Upper: strings.TrimSpace(row[colUpper]),
			Lower: strings.TrimSpace(row[colLower]),
		}
	}

	return idx, nil
}

// Lookup resolves a single code string.
func (i *Index) Lookup(code string) (Code, bool) {
	c, ok := i.codes[code]
	return c, ok
}

// Codes returns all codes in first-seen table order.
func (i *Index) Codes() []Code {
	out := make([]Code, 0, len(i.order))
	for _, code := range i.order {
		out = append(out, i.codes[code])
	}
	return out
}

// Len returns the number of distinct codes in the index.
func (i *Index) Len() int {
	return len(i.codes)
}

// SplitClause splits an incident's comma-separated clause field into
// individual code strings, dropping empties.
func SplitClause(clause string) []string {
	parts := strings.Split(clause, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
