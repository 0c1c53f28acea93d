// Package pipeline drives one end-to-end snapshot run: read the raw
// sources, profile them, normalize and deduplicate, enforce the table
// contracts, build the snapshot tables and publish them atomically.
//
// Failure model:
//   - Unreadable inputs and contract set failures are fatal; the run
//     stops and nothing is published.
//   - Everything row-shaped (parse failures, coercion nulls, duplicates,
//     orphans, excluded records) is accounting, not an error.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/advaith-rb/acm-data-takehome/internal/coerce"
	"github.com/advaith-rb/acm-data-takehome/internal/config"
	"github.com/advaith-rb/acm-data-takehome/internal/metrics"
	"github.com/advaith-rb/acm-data-takehome/internal/normalize"
	"github.com/advaith-rb/acm-data-takehome/internal/profile"
	"github.com/advaith-rb/acm-data-takehome/internal/schema"
	"github.com/advaith-rb/acm-data-takehome/internal/source"
	"github.com/advaith-rb/acm-data-takehome/internal/storage"
	"github.com/advaith-rb/acm-data-takehome/internal/tables"
)

// Logger is the minimal logging seam used by the pipeline.
type Logger = normalize.Logger

// Options configures a Pipeline beyond its config and store.
type Options struct {
	// Log receives key=value progress lines. Nil disables logging.
	Log Logger

	// Unexported test seams; production code never sets them.
	now      func() time.Time
	newRunID func() string
}

// Pipeline executes snapshot runs against a fixed config and store.
type Pipeline struct {
	cfg   config.Config
	store storage.Store
	log   Logger

	prof      *profile.Profiler
	norm      *normalize.Normalizer
	contracts []schema.Contract

	now      func() time.Time
	newRunID func() string
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// New builds a Pipeline. The config must declare the customers,
// transactions and sentiment sources; the store receives the published
// snapshot.
func New(cfg config.Config, store storage.Store, opts Options) (*Pipeline, error) {
	for _, name := range []string{"customers", "transactions", "sentiment"} {
		if _, ok := cfg.Source(name); !ok {
			return nil, fmt.Errorf("pipeline: config is missing source %q", name)
		}
	}

	prof, err := profile.New(cfg)
	if err != nil {
		return nil, err
	}
	contracts, err := schema.Contracts(cfg)
	if err != nil {
		return nil, err
	}

	log := opts.Log
	if log == nil {
		log = nopLogger{}
	}
	now := opts.now
	if now == nil {
		now = time.Now
	}
	newRunID := opts.newRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}

	return &Pipeline{
		cfg:       cfg,
		store:     store,
		log:       log,
		prof:      prof,
		norm:      normalize.New(cfg),
		contracts: contracts,
		now:       now,
		newRunID:  newRunID,
	}, nil
}

// run carries the mutable state of one execution.
type run struct {
	outcome *Outcome
	state   State

	records    map[string][]source.Record
	parseFails map[string]int
	normalized map[string]*normalize.Result
}

// Run executes one snapshot run. The returned Outcome is non-nil even on
// failure; the error is the fatal reason when Status is StateFailed.
func (p *Pipeline) Run(ctx context.Context) (*Outcome, error) {
	r := &run{
		outcome: &Outcome{
			Report: RunReport{
				RunID:     p.newRunID(),
				StartedAt: p.now(),
				Status:    StateIdle,
			},
			Profiles:  make(map[string]*profile.Report),
			Contracts: make(map[string]*schema.Result),
		},
		state:      StateIdle,
		records:    make(map[string][]source.Record),
		parseFails: make(map[string]int),
		normalized: make(map[string]*normalize.Result),
	}
	p.log.Printf("stage=start run=%s sources=%d storage=%s", r.outcome.Report.RunID, len(p.cfg.Sources), p.cfg.Storage.Kind)

	steps := []struct {
		state State
		fn    func(context.Context, *run) error
	}{
		{StateReading, p.read},
		{StateProfiling, p.profileSources},
		{StateNormalizing, p.normalizeSources},
		{StateContractChecking, p.enforceContracts},
		{StateBuilding, p.buildAndPublish},
		{StateReporting, p.report},
	}

	for _, step := range steps {
		r.state = step.state
		start := p.now()
		err := step.fn(ctx, r)
		p.endStage(r, step.state, start, err)
		if err != nil {
			r.state = StateFailed
			r.outcome.Report.Status = StateFailed
			r.outcome.Report.FatalReason = err.Error()
			r.outcome.Report.FinishedAt = p.now()
			metrics.IncCounter(metrics.RunsTotal, 1, metrics.Labels{"status": string(StateFailed)})
			p.log.Printf("stage=%s run=%s fatal=%v", step.state, r.outcome.Report.RunID, err)
			return r.outcome, fmt.Errorf("%s: %w", step.state, err)
		}
	}

	r.state = StateDone
	r.outcome.Report.Status = StateDone
	r.outcome.Report.FinishedAt = p.now()
	metrics.IncCounter(metrics.RunsTotal, 1, metrics.Labels{"status": string(StateDone)})
	p.log.Printf("stage=done run=%s duration=%s", r.outcome.Report.RunID,
		r.outcome.Report.FinishedAt.Sub(r.outcome.Report.StartedAt).Truncate(time.Millisecond))
	return r.outcome, nil
}

// endStage appends the stage record and emits its metrics.
func (p *Pipeline) endStage(r *run, st State, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	elapsed := p.now().Sub(start)

	in, out := p.stageRows(r, st)
	r.outcome.Report.Stages = append(r.outcome.Report.Stages, StageReport{
		Stage:      st,
		Status:     status,
		RowsIn:     in,
		RowsOut:    out,
		DurationMS: elapsed.Milliseconds(),
	})

	labels := metrics.Labels{"stage": string(st), "status": status}
	metrics.IncCounter(metrics.StageTotal, 1, labels)
	metrics.ObserveHistogram(metrics.StageDurationSeconds, elapsed.Seconds(), labels)
}

// stageRows derives the row counts bracketing a stage from run state.
func (p *Pipeline) stageRows(r *run, st State) (in, out int) {
	read := 0
	for _, recs := range r.records {
		read += len(recs)
	}
	survived := 0
	for _, res := range r.normalized {
		survived += len(res.Records)
	}
	passed := 0
	for _, res := range r.outcome.Contracts {
		passed += len(res.Passed)
	}

	switch st {
	case StateReading:
		return 0, read
	case StateProfiling:
		return read, read
	case StateNormalizing:
		return read, survived
	case StateContractChecking:
		return survived, passed
	case StateBuilding, StateReporting:
		return passed, passed
	}
	return 0, 0
}

func (p *Pipeline) read(ctx context.Context, r *run) error {
	g, ctx := errgroup.WithContext(ctx)

	recs := make([][]source.Record, len(p.cfg.Sources))
	fails := make([]int, len(p.cfg.Sources))

	for i, spec := range p.cfg.Sources {
		i, spec := i, spec
		g.Go(func() error {
			onIssue := func(at int, err error) {
				fails[i]++
				p.log.Printf("stage=read source=%s at=%d skip=%v", spec.Name, at, err)
			}
			var (
				rs  []source.Record
				err error
			)
			switch spec.Format {
			case "csv":
				rs, err = source.ReadCSV(ctx, spec, onIssue)
			case "json":
				rs, err = source.ReadJSON(ctx, spec, onIssue)
			default:
				err = fmt.Errorf("source %s: unknown format %q", spec.Name, spec.Format)
			}
			if err != nil {
				return err
			}
			recs[i] = rs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, spec := range p.cfg.Sources {
		r.records[spec.Name] = recs[i]
		r.parseFails[spec.Name] = fails[i]
		metrics.IncCounter(metrics.RecordsTotal, float64(len(recs[i])), metrics.Labels{"source": spec.Name, "kind": "read"})
		p.log.Printf("stage=read source=%s rows=%d parse_failures=%d", spec.Name, len(recs[i]), fails[i])
	}
	return nil
}

func (p *Pipeline) profileSources(ctx context.Context, r *run) error {
	for _, spec := range p.cfg.Sources {
		var refKeys map[string]struct{}
		if spec.ForeignKey != "" {
			ref, ok := p.cfg.Source(spec.References)
			if !ok {
				return fmt.Errorf("source %s references unknown source %q", spec.Name, spec.References)
			}
			refKeys = source.KeySet(ref, r.records[ref.Name])
		}

		rep := p.prof.Profile(spec, r.records[spec.Name], r.parseFails[spec.Name], refKeys)
		r.outcome.Profiles[spec.Name] = rep
		p.log.Printf("stage=profile source=%s rows=%d warnings=%d", spec.Name, rep.RowsRead, len(rep.Warnings))
	}
	return nil
}

// normalizeSources runs dimension sources first so their surviving key
// sets are available when fact sources resolve foreign keys.
func (p *Pipeline) normalizeSources(ctx context.Context, r *run) error {
	keys := make(map[string]map[string]struct{})

	for _, pass := range []bool{false, true} {
		g, _ := errgroup.WithContext(ctx)
		results := make([]*normalize.Result, len(p.cfg.Sources))
		for i, spec := range p.cfg.Sources {
			if (spec.ForeignKey != "") != pass {
				continue
			}
			i, spec := i, spec
			refKeys := keys[spec.References]
			g.Go(func() error {
				res, err := p.norm.Records(spec, r.records[spec.Name], refKeys, p.log)
				if err != nil {
					return err
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for i, spec := range p.cfg.Sources {
			if results[i] != nil {
				r.normalized[spec.Name] = results[i]
			}
		}
		if !pass {
			for _, spec := range p.cfg.Sources {
				if res, ok := r.normalized[spec.Name]; ok {
					keys[spec.Name] = normalize.Keys(spec, res.Records)
				}
			}
		}
	}

	for _, spec := range p.cfg.Sources {
		res := r.normalized[spec.Name]
		p.log.Printf("stage=normalize source=%s rows=%d exact_collapsed=%d key_collapsed=%d orphans=%d key_dropped=%d",
			spec.Name, len(res.Records), res.ExactCollapsed, res.KeyCollapsed, res.OrphansDropped, res.KeyDropped)
	}
	return nil
}

// enforceContracts checks dimension sources first, then fact sources
// against the surviving dimension keys. A fact record whose referenced
// row was itself excluded is excluded too, never published dangling.
func (p *Pipeline) enforceContracts(ctx context.Context, r *run) error {
	passedKeys := make(map[string]map[string]struct{})

	for _, pass := range []bool{false, true} {
		for _, spec := range p.cfg.Sources {
			if (spec.ForeignKey != "") != pass {
				continue
			}
			c, ok := schema.ForTable(p.contracts, spec.Table)
			if !ok {
				return fmt.Errorf("no contract for table %s", spec.Table)
			}

			recs := r.normalized[spec.Name].Records
			var carried []schema.Exclusion
			refKeys := passedKeys[spec.References]
			if spec.ForeignKey != "" {
				recs, carried = dropExcludedRefs(spec, recs, refKeys)
			}

			res, err := schema.Enforce(c, recs, refKeys)
			if err != nil {
				return err
			}
			res.Excluded = append(res.Excluded, carried...)
			r.outcome.Contracts[spec.Name] = res

			if spec.ForeignKey == "" {
				passedKeys[spec.Name] = normalize.Keys(spec, res.Passed)
			}

			metrics.IncCounter(metrics.RecordsTotal, float64(len(res.Excluded)), metrics.Labels{"source": spec.Name, "kind": "excluded"})
			p.log.Printf("stage=contract source=%s table=%s passed=%d excluded=%d",
				spec.Name, spec.Table, len(res.Passed), len(res.Excluded))
		}
	}
	return nil
}

// dropExcludedRefs removes records whose foreign key points at a row the
// referenced table's contract excluded.
func dropExcludedRefs(spec config.SourceSpec, recs []normalize.Clean, refKeys map[string]struct{}) ([]normalize.Clean, []schema.Exclusion) {
	if refKeys == nil {
		return recs, nil
	}
	kept := recs[:0:0]
	var dropped []schema.Exclusion
	for _, r := range recs {
		fk, _ := coerce.String(r.Fields[spec.ForeignKey])
		if _, ok := refKeys[fk]; !ok {
			dropped = append(dropped, schema.Exclusion{
				Key:     r.Key(spec),
				Column:  spec.ForeignKey,
				Reason:  fmt.Sprintf("referenced %s row was excluded", spec.References),
				Lineage: r.Lineage,
			})
			continue
		}
		kept = append(kept, r)
	}
	return kept, dropped
}

func (p *Pipeline) buildAndPublish(ctx context.Context, r *run) error {
	input := func(name string) tables.Input {
		spec, _ := p.cfg.Source(name)
		return tables.Input{Spec: spec, Records: r.outcome.Contracts[name].Passed}
	}

	snap, err := tables.Build(input("customers"), input("transactions"), input("sentiment"))
	if err != nil {
		return err
	}

	if err := p.store.Publish(ctx, snap); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	for _, tbl := range snap.Tables {
		p.log.Printf("stage=publish table=%s rows=%d", tbl.Name, len(tbl.Rows))
	}
	for _, spec := range p.cfg.Sources {
		n := len(r.outcome.Contracts[spec.Name].Passed)
		metrics.IncCounter(metrics.RecordsTotal, float64(n), metrics.Labels{"source": spec.Name, "kind": "published"})
	}
	return nil
}

func (p *Pipeline) report(ctx context.Context, r *run) error {
	for _, spec := range p.cfg.Sources {
		norm := r.normalized[spec.Name]
		contract := r.outcome.Contracts[spec.Name]
		r.outcome.Report.Sources = append(r.outcome.Report.Sources, SourceSummary{
			Source:         spec.Name,
			Table:          spec.Table,
			RowsRead:       len(r.records[spec.Name]),
			ParseFailures:  r.parseFails[spec.Name],
			ExactCollapsed: norm.ExactCollapsed,
			KeyCollapsed:   norm.KeyCollapsed,
			OrphansDropped: norm.OrphansDropped,
			KeyDropped:     norm.KeyDropped,
			CoercionNulls:  norm.CoercionNulls,
			Excluded:       len(contract.Excluded),
			Published:      len(contract.Passed),
		})
	}
	return nil
}
