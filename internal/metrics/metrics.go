// Package metrics is the thin seam between pipeline code and whatever
// metrics system a deployment uses. Stages emit counters and histograms
// through package functions; the process wires a concrete Backend once at
// startup. With no backend set every call is a no-op, so metrics never
// influence pipeline behavior.
package metrics

import "sync/atomic"

// Labels tag a metric sample.
type Labels map[string]string

// Backend receives metric samples.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Metric names emitted by the pipeline.
const (
	RunsTotal            = "pipeline_runs_total"
	StageTotal           = "pipeline_stage_total"
	RecordsTotal         = "pipeline_records_total"
	StageDurationSeconds = "pipeline_stage_duration_seconds"
)

var backend atomic.Pointer[Backend]

// SetBackend installs the process-wide backend. Passing nil reverts to
// the no-op default.
func SetBackend(b Backend) {
	if b == nil {
		backend.Store(nil)
		return
	}
	backend.Store(&b)
}

// IncCounter adds delta to a counter on the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	if b := backend.Load(); b != nil {
		(*b).IncCounter(name, delta, labels)
	}
}

// ObserveHistogram records one sample on the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	if b := backend.Load(); b != nil {
		(*b).ObserveHistogram(name, value, labels)
	}
}

// Flush pushes buffered samples on backends that buffer.
func Flush() error {
	if b := backend.Load(); b != nil {
		if f, ok := (*b).(interface{ Flush() error }); ok {
			return f.Flush()
		}
	}
	return nil
}

// Close stops the backend, flushing once more on backends that buffer.
func Close() error {
	if b := backend.Load(); b != nil {
		if c, ok := (*b).(interface{ Close() error }); ok {
			return c.Close()
		}
	}
	return nil
}
