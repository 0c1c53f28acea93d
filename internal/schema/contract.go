// Package schema declares and enforces the contracts guarding the output
// tables. A contract is the promise downstream consumers rely on: which
// columns exist, which are non-nullable, what ranges hold, that the key
// is unique and every foreign key resolves.
//
// Violations come in two severities. A record-level violation excludes
// that record and is reported; a set-level violation (duplicate keys, an
// unresolved foreign key, too few rows) means the table as a whole cannot
// be trusted and returns *SetFailureError, which aborts the run.
package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/advaith-rb/acm-data-takehome/internal/config"
)

// Column is one contracted column.
type Column struct {
	Name     string
	Type     string
	Required bool

	Min *float64
	Max *float64

	// MinTime/MaxTime bound date and timestamp columns. Zero means
	// unbounded.
	MinTime time.Time
	MaxTime time.Time
}

// Contract guards one output table.
type Contract struct {
	Table   string
	Key     string
	Columns []Column

	// ForeignKey, when set, must resolve against the reference key set
	// handed to Enforce.
	ForeignKey string

	// MinRows is the smallest credible input row count. It is checked
	// against the records entering enforcement, before record-level
	// exclusions, so a source that arrived suspiciously small fails even
	// if every row it does have is clean.
	MinRows int
}

// Contracts derives the output-table contracts from the source
// declarations.
func Contracts(cfg config.Config) ([]Contract, error) {
	dateMin, dateMax, err := cfg.DateRange()
	if err != nil {
		return nil, err
	}
	// Inclusive of the whole final day.
	dateMax = dateMax.Add(24*time.Hour - time.Nanosecond)

	contracts := make([]Contract, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		c := Contract{
			Table:      src.Table,
			Key:        src.NaturalKey,
			ForeignKey: src.ForeignKey,
			MinRows:    src.MinRows,
		}
		for _, f := range src.Fields {
			col := Column{
				Name:     f.Name,
				Type:     f.Type,
				Required: f.Required,
				Min:      f.Min,
				Max:      f.Max,
			}
			if f.Type == config.TypeDate || f.Type == config.TypeTimestamp {
				col.MinTime = dateMin
				col.MaxTime = dateMax
			}
			c.Columns = append(c.Columns, col)
		}
		contracts = append(contracts, c)
	}
	return contracts, nil
}

// ForTable returns the contract guarding table.
func ForTable(contracts []Contract, table string) (Contract, bool) {
	for _, c := range contracts {
		if c.Table == table {
			return c, true
		}
	}
	return Contract{}, false
}

// SetFailureError reports set-level contract failure. It is fatal: the
// snapshot is not published.
type SetFailureError struct {
	Table  string
	Checks []string
}

func (e *SetFailureError) Error() string {
	return fmt.Sprintf("contract set failure on %s: %s", e.Table, strings.Join(e.Checks, "; "))
}
