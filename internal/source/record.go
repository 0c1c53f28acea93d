// Package source reads the raw input files into positionally aligned
// records. Readers are deliberately forgiving: a malformed row is reported
// through the issue callback and skipped, never fatal. The only fatal
// condition is a file that cannot be opened or whose header cannot be
// read, reported as *UnreadableError.
//
// Readers do not clean values. Empty strings, stray whitespace and mixed
// casing pass through untouched so the profiler observes the data exactly
// as it arrived; normalization happens downstream.
package source

import (
	"fmt"

	"github.com/advaith-rb/acm-data-takehome/internal/coerce"
	"github.com/advaith-rb/acm-data-takehome/internal/config"
)

// Record is one raw input row. Values are aligned to the source's declared
// column order; a missing cell is nil, an empty cell is "".
type Record struct {
	// Source is the declaring source's name.
	Source string

	// RowID is the zero-based position of this record in its file,
	// counting data rows only. It is stable across runs over the same
	// file and is the unit of lineage.
	RowID int64

	Values []any
}

// Index builds a column-name -> position lookup for the declared columns.
func Index(columns []string) map[string]int {
	ix := make(map[string]int, len(columns))
	for i, c := range columns {
		ix[c] = i
	}
	return ix
}

// KeySet collects the distinct natural-key values present in recs, in
// their trimmed string form. Null and empty keys are left out.
func KeySet(spec config.SourceSpec, recs []Record) map[string]struct{} {
	ix := Index(spec.Columns())
	ki, ok := ix[spec.NaturalKey]
	if !ok {
		return nil
	}
	keys := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		if s, ok := coerce.String(r.Values[ki]); ok && s != "" {
			keys[s] = struct{}{}
		}
	}
	return keys
}

// UnreadableError reports a source that could not be opened or whose
// structure could not be established. It is fatal: the run aborts and no
// snapshot is published.
type UnreadableError struct {
	Source string
	Path   string
	Err    error
}

func (e *UnreadableError) Error() string {
	return fmt.Sprintf("source %s unreadable (%s): %v", e.Source, e.Path, e.Err)
}

func (e *UnreadableError) Unwrap() error { return e.Err }
