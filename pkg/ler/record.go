package ler

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/reslab/lergraph/pkg/logger"
)

// Facility identifies the plant and unit where an incident occurred.
type Facility struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
}

// Metadata carries the report-level fields of an incident record.
type Metadata struct {
	Facility  Facility `json:"facility"`
	EventDate string   `json:"event_date"`
	Title     string   `json:"title"`
	Clause    string   `json:"clause"`
}

// Record is one structured incident, as produced by the upstream attribute
// extraction step. Filename is the natural identity of the incident; the
// attribute map goes from dimension name to an ordered list of keywords.
type Record struct {
	Filename   string              `json:"filename"`
	Attributes map[string][]string `json:"attributes"`
	Metadata   Metadata            `json:"metadata"`
}

// Keywords returns the keyword list for one attribute dimension. A missing
// dimension reads as an empty list.
func (r *Record) Keywords(dimension string) []string {
	if r.Attributes == nil {
		return nil
	}
	return r.Attributes[dimension]
}

// DimensionText joins the keyword list of one dimension into the single text
// compared by the similarity engine. Absent or empty dimensions yield "".
func (r *Record) DimensionText(dimension string) string {
	return strings.Join(r.Keywords(dimension), " ")
}

// ParseRecords reads a line-delimited JSON record stream. A line that fails
// strict decoding is run through jsonrepair once; lines that still fail, or
// that carry no filename, are skipped with a warning. Returns the parsed
// records and the number of skipped lines.
func ParseRecords(r io.Reader) ([]Record, int) {
	records := make([]Record, 0)
	skipped := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rec, err := decodeRecord(line)
		if err != nil {
			logger.Warn("[Records] Skipping malformed record line", "line", lineNo, "err", err)
			skipped++
			continue
		}
		if rec.Filename == "" {
			logger.Warn("[Records] Skipping record without filename", "line", lineNo)
			skipped++
			continue
		}

		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("[Records] Record stream ended early", "line", lineNo, "err", err)
	}

	return records, skipped
}

func decodeRecord(line string) (Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(line), &rec); err == nil {
		return rec, nil
	}

	repaired, err := jsonrepair.JSONRepair(line)
	if err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(repaired), &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}
