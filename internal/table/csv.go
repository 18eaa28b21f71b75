package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// CSVSettings controls AddCSV.
type CSVSettings struct {
	// Delimiter defaults to ','.
	Delimiter rune
	// Comment marks lines to skip when non-zero.
	Comment rune
	// SkipHeader drops the first record.
	SkipHeader bool
}

// AddCSV parses r and ingests every record through AddData. Parse errors
// leave the table untouched.
func (t *Table) AddCSV(r io.Reader, s CSVSettings) error {
	cr := csv.NewReader(r)
	if s.Delimiter != 0 {
		cr.Comma = s.Delimiter
	}
	cr.Comment = s.Comment
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false

	var rows [][]any
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read csv: %w", err)
		}
		if first && s.SkipHeader {
			first = false
			continue
		}
		first = false
		row := make([]any, len(rec))
		for i, cell := range rec {
			row[i] = cell
		}
		rows = append(rows, row)
	}
	return t.AddData(rows)
}
