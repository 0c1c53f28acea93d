package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/advaith-rb/acm-data-takehome/internal/profile"
	"github.com/advaith-rb/acm-data-takehome/internal/schema"
)

// State identifies where a run is in its lifecycle. A run moves forward
// through the states in order and ends in StateDone or StateFailed.
type State string

const (
	StateIdle             State = "idle"
	StateReading          State = "reading"
	StateProfiling        State = "profiling"
	StateNormalizing      State = "normalizing"
	StateContractChecking State = "contract_checking"
	StateBuilding         State = "building"
	StateReporting        State = "reporting"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// StageReport records one completed stage of a run.
type StageReport struct {
	Stage      State  `json:"stage"`
	Status     string `json:"status"` // "ok" or "failed"
	RowsIn     int    `json:"rows_in"`
	RowsOut    int    `json:"rows_out"`
	DurationMS int64  `json:"duration_ms"`
}

// SourceSummary is the per-source accounting across the whole run.
type SourceSummary struct {
	Source         string `json:"source"`
	Table          string `json:"table"`
	RowsRead       int    `json:"rows_read"`
	ParseFailures  int    `json:"parse_failures"`
	ExactCollapsed int    `json:"exact_collapsed"`
	KeyCollapsed   int    `json:"key_collapsed"`
	OrphansDropped int    `json:"orphans_dropped"`
	KeyDropped     int    `json:"key_dropped"`
	CoercionNulls  int    `json:"coercion_nulls"`
	Excluded       int    `json:"excluded"`
	Published      int    `json:"published"`
}

// RunReport is the machine-readable record of one run.
type RunReport struct {
	RunID       string          `json:"run_id"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	Status      State           `json:"status"`
	FatalReason string          `json:"fatal_reason,omitempty"`
	Stages      []StageReport   `json:"stages"`
	Sources     []SourceSummary `json:"sources"`
}

// Outcome bundles everything a run produced. On a failed run the maps
// hold whatever was computed before the fatal stage.
type Outcome struct {
	Report    RunReport
	Profiles  map[string]*profile.Report // keyed by source name
	Contracts map[string]*schema.Result  // keyed by source name
}

// WriteFiles writes validation_<source>.json per profiled source and
// run_report.json into dir, creating it if needed.
func (o *Outcome) WriteFiles(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("reports dir: %w", err)
	}

	for name, rep := range o.Profiles {
		b, err := rep.MarshalIndentStable()
		if err != nil {
			return fmt.Errorf("validation report %s: %w", name, err)
		}
		path := filepath.Join(dir, "validation_"+name+".json")
		if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
			return fmt.Errorf("validation report %s: %w", name, err)
		}
	}

	b, err := json.MarshalIndent(o.Report, "", "  ")
	if err != nil {
		return fmt.Errorf("run report: %w", err)
	}
	path := filepath.Join(dir, "run_report.json")
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("run report: %w", err)
	}
	return nil
}
