package profile

import (
	"encoding/json"
	"fmt"
)

// Issue kinds reported by the profiler. Each anomaly carries exactly one
// kind; a true null and an empty string are different findings.
const (
	KindParseFailure   = "parse_failure"
	KindNull           = "null"
	KindEmpty          = "empty"
	KindExactDuplicate = "exact_duplicate"
	KindNearDuplicate  = "near_duplicate"
	KindOrphanKey      = "orphan_key"
	KindTypeViolation  = "type_violation"
	KindRangeViolation = "range_violation"
)

// Report is the quality profile of one source. Slices are sorted so that
// two runs over identical input serialize byte-identically.
type Report struct {
	Source        string `json:"source"`
	RowsRead      int    `json:"rows_read"`
	ParseFailures int    `json:"parse_failures"`

	Columns []ColumnProfile `json:"columns"`

	ExactDuplicates DupSummary     `json:"exact_duplicates"`
	NearDuplicates  *DupSummary    `json:"near_duplicates,omitempty"`
	OrphanKeys      *OrphanSummary `json:"orphan_keys,omitempty"`

	TypeViolations  []Violation `json:"type_violations,omitempty"`
	RangeViolations []Violation `json:"range_violations,omitempty"`

	Warnings        []string `json:"warnings,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// ColumnProfile counts missing values per declared column. NullRate is
// the combined null+empty fraction of rows_read, rounded to 4 decimals.
type ColumnProfile struct {
	Name     string  `json:"name"`
	Nulls    int     `json:"nulls"`
	Empties  int     `json:"empties"`
	NullRate float64 `json:"null_rate"`
}

// DupSummary counts redundant rows: rows beyond the first occurrence of
// identical content (exact) or of an already-seen natural key with
// different content (near). RowIDs lists the redundant rows only.
type DupSummary struct {
	Count  int     `json:"count"`
	RowIDs []int64 `json:"row_ids,omitempty"`
}

// OrphanSummary lists foreign-key values with no match in the referenced
// source.
type OrphanSummary struct {
	Count  int      `json:"count"`
	Keys   []string `json:"keys,omitempty"`
	RowIDs []int64  `json:"row_ids,omitempty"`
}

// Violation is one value that failed a type or range check.
type Violation struct {
	Kind   string `json:"kind"`
	Column string `json:"column"`
	RowID  int64  `json:"row_id"`
	Value  string `json:"value"`
	Detail string `json:"detail"`
}

// MarshalIndentStable renders the report as indented JSON. Field order is
// fixed by the struct and all slices are pre-sorted, so identical input
// yields identical bytes.
func (r *Report) MarshalIndentStable() ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report for %s: %w", r.Source, err)
	}
	return b, nil
}
