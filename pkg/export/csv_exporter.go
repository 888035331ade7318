package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"
)

// Dataset is tabular export content. Widths are relative column weights used
// by the PDF renderer; missing weights default to 1. CreatedAt stamps the
// document so a given dataset always renders to the same bytes.
type Dataset struct {
	Title     string
	Notes     []string
	Headers   []string
	Widths    []float64
	Rows      []map[string]string
	CreatedAt time.Time
}

// CSVExporter renders a Dataset as RFC 4180 CSV.
type CSVExporter struct {
	// CommentNotes emits each note as a leading "# " line before the header.
	CommentNotes bool
}

// NewCSVExporter builds a CSV exporter that carries notes as comment lines.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{CommentNotes: true}
}

// Render produces the CSV body. The title is never written.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	if e.CommentNotes {
		for _, note := range data.Notes {
			fmt.Fprintf(buf, "# %s\n", note)
		}
	}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	record := make([]string, len(data.Headers))
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
