// Package imports stores uploaded schedule files as one entry per row.
package imports

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"schedule-management-backend/internal/schedule"
	"schedule-management-backend/internal/templates"
)

var ErrNoRows = errors.New("file has no data rows")

// ReadCSV reads a header line and data rows, mapping columns through tpl.
// The delimiter is whichever of ',', ';' or tab the header uses most.
// Blank rows are dropped; the returned line numbers are 1-based data rows.
func ReadCSV(r io.Reader, tpl templates.Template) ([]schedule.Row, []int, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, nil, err
	}

	cr := csv.NewReader(br)
	cr.Comma = sniffDelimiter(head)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, ErrNoRows
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	mapping, err := tpl.Map(header)
	if err != nil {
		return nil, nil, err
	}

	var (
		rows  []schedule.Row
		lines []int
	)
	for n := 1; ; n++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row %d: %w", n, err)
		}
		row := mapping.Row(rec)
		if row.IsBlank() {
			continue
		}
		rows = append(rows, row)
		lines = append(lines, n)
	}

	if len(rows) == 0 {
		return nil, nil, ErrNoRows
	}
	return rows, lines, nil
}

func sniffDelimiter(head []byte) rune {
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	best, count := ',', bytes.Count(head, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if c := bytes.Count(head, []byte{byte(d)}); c > count {
			best, count = d, c
		}
	}
	return best
}
