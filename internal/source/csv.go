package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/advaith-rb/acm-data-takehome/internal/config"
)

// ReadCSV reads the CSV source declared by spec into records aligned to
// spec.Columns. The header row is matched against the declared columns
// after lower_snake normalization; declared columns absent from the header
// yield nil values.
//
// Behavior:
//   - A row whose width differs from the header, or that the csv reader
//     rejects, is reported via onIssue and skipped. RowIDs are assigned to
//     emitted records only, in file order.
//   - Cell text is kept verbatim. "" stays "", padding stays.
//
// Errors: only open/header failures, as *UnreadableError.
func ReadCSV(ctx context.Context, spec config.SourceSpec, onIssue func(line int, err error)) ([]Record, error) {
	f, err := os.Open(spec.Path)
	if err != nil {
		return nil, &UnreadableError{Source: spec.Name, Path: spec.Path, Err: err}
	}
	defer f.Close()

	return readCSVFrom(ctx, f, spec, onIssue)
}

func readCSVFrom(ctx context.Context, r io.Reader, spec config.SourceSpec, onIssue func(line int, err error)) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	line := 0
	readRec := func() ([]string, error) {
		line++
		return cr.Read()
	}

	hdr, err := readRec()
	if err != nil {
		return nil, &UnreadableError{Source: spec.Name, Path: spec.Path, Err: fmt.Errorf("read header: %w", err)}
	}

	// Map declared columns to header positions. First header cell may
	// carry a UTF-8 BOM.
	srcToIdx := make(map[string]int, len(hdr))
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		h = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
		srcToIdx[h] = i
	}
	columns := spec.Columns()
	colIx := make([]int, len(columns))
	for t, target := range columns {
		si, ok := srcToIdx[target]
		if !ok {
			si = -1
		}
		colIx[t] = si
	}

	var (
		records []Record
		rowID   int64
		width   = len(hdr)
	)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rec, err := readRec()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			if onIssue != nil {
				onIssue(line, fmt.Errorf("csv read: %w", err))
			}
			continue
		}
		if len(rec) != width {
			if onIssue != nil {
				onIssue(line, fmt.Errorf("csv row has %d fields, header has %d", len(rec), width))
			}
			continue
		}

		values := make([]any, len(columns))
		for t := range columns {
			si := colIx[t]
			if si < 0 || si >= len(rec) {
				values[t] = nil
				continue
			}
			values[t] = rec[si]
		}
		records = append(records, Record{Source: spec.Name, RowID: rowID, Values: values})
		rowID++
	}
}
