// Package profile observes raw source records and produces a quality
// report per source: missing-value rates, duplicate and orphan counts,
// type and range violations. Profiling never mutates records; the same
// slice goes on to normalization untouched.
//
// Determinism: given identical input records the produced Report is
// identical, value for value, and its JSON serialization is
// byte-identical across runs.
package profile

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/advaith-rb/acm-data-takehome/internal/coerce"
	"github.com/advaith-rb/acm-data-takehome/internal/config"
	"github.com/advaith-rb/acm-data-takehome/internal/source"
)

// Profiler holds the resolved bounds shared by all sources.
type Profiler struct {
	cfg     config.Config
	dateMin time.Time
	dateMax time.Time
}

// New builds a Profiler from the pipeline configuration.
func New(cfg config.Config) (*Profiler, error) {
	min, max, err := cfg.DateRange()
	if err != nil {
		return nil, err
	}
	return &Profiler{cfg: cfg, dateMin: min, dateMax: max}, nil
}

// Profile observes recs against the source declaration. parseFailures is
// the count of malformed rows the reader already skipped. refKeys is the
// set of natural-key values of the referenced source, nil when the source
// declares no foreign key.
func (p *Profiler) Profile(spec config.SourceSpec, recs []source.Record, parseFailures int, refKeys map[string]struct{}) *Report {
	columns := spec.Columns()
	rep := &Report{
		Source:        spec.Name,
		RowsRead:      len(recs),
		ParseFailures: parseFailures,
	}

	nulls := make([]int, len(columns))
	empties := make([]int, len(columns))

	seenHash := make(map[string]int64, len(recs))
	var seenKeyHash map[string]string
	if spec.NearDuplicates {
		seenKeyHash = make(map[string]string, len(recs))
	}
	keyIdx := indexOf(columns, spec.NaturalKey)
	fkIdx := indexOf(columns, spec.ForeignKey)

	var near DupSummary
	orphanKeys := map[string]struct{}{}
	var orphanRows []int64

	for _, rec := range recs {
		for i := range columns {
			s, ok := coerce.String(rec.Values[i])
			switch {
			case !ok:
				nulls[i]++
			case s == "":
				empties[i]++
			}
		}

		hash := RowHash(columns, rec.Values, spec.RecordTimestamp)
		if _, dup := seenHash[hash]; dup {
			rep.ExactDuplicates.Count++
			rep.ExactDuplicates.RowIDs = append(rep.ExactDuplicates.RowIDs, rec.RowID)
		} else {
			seenHash[hash] = rec.RowID

			if seenKeyHash != nil && keyIdx >= 0 {
				if key, ok := coerce.String(rec.Values[keyIdx]); ok && key != "" {
					if first, seen := seenKeyHash[key]; seen && first != hash {
						near.Count++
						near.RowIDs = append(near.RowIDs, rec.RowID)
					} else if !seen {
						seenKeyHash[key] = hash
					}
				}
			}
		}

		if fkIdx >= 0 && refKeys != nil {
			if fk, ok := coerce.String(rec.Values[fkIdx]); ok && fk != "" {
				if _, found := refKeys[fk]; !found {
					orphanKeys[fk] = struct{}{}
					orphanRows = append(orphanRows, rec.RowID)
				}
			}
		}

		p.checkTypes(spec, rec, rep)
	}

	rep.Columns = make([]ColumnProfile, len(columns))
	for i, col := range columns {
		rep.Columns[i] = ColumnProfile{
			Name:     col,
			Nulls:    nulls[i],
			Empties:  empties[i],
			NullRate: rate(nulls[i]+empties[i], len(recs)),
		}
	}

	if spec.NearDuplicates {
		rep.NearDuplicates = &near
	}
	if fkIdx >= 0 && refKeys != nil {
		keys := make([]string, 0, len(orphanKeys))
		for k := range orphanKeys {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rep.OrphanKeys = &OrphanSummary{Count: len(orphanRows), Keys: keys, RowIDs: orphanRows}
	}

	p.addWarnings(spec, rep)
	p.addRecommendations(rep)
	return rep
}

// checkTypes appends type and range violations for one record. Null and
// empty values are not violations; they are already counted.
func (p *Profiler) checkTypes(spec config.SourceSpec, rec source.Record, rep *Report) {
	for i, f := range spec.Fields {
		v := rec.Values[i]
		s, ok := coerce.String(v)
		if !ok || s == "" {
			continue
		}

		typeViolation := func(detail string) {
			rep.TypeViolations = append(rep.TypeViolations, Violation{
				Kind: KindTypeViolation, Column: f.Name, RowID: rec.RowID, Value: s, Detail: detail,
			})
		}
		rangeViolation := func(detail string) {
			rep.RangeViolations = append(rep.RangeViolations, Violation{
				Kind: KindRangeViolation, Column: f.Name, RowID: rec.RowID, Value: s, Detail: detail,
			})
		}

		switch f.Type {
		case config.TypeInt:
			n, err := coerce.Int(v)
			if err != nil {
				typeViolation(err.Error())
				continue
			}
			checkBounds(float64(n), f, rangeViolation)

		case config.TypeFloat:
			x, err := coerce.Float(v)
			if err != nil {
				typeViolation(err.Error())
				continue
			}
			checkBounds(x, f, rangeViolation)

		case config.TypeDate:
			t, err := coerce.Time(v, p.cfg.DateLayouts)
			if err != nil {
				typeViolation(err.Error())
				continue
			}
			p.checkDateBounds(t, rangeViolation)

		case config.TypeTimestamp:
			t, err := coerce.Time(v, p.cfg.TimestampLayouts)
			if err != nil {
				typeViolation(err.Error())
				continue
			}
			p.checkDateBounds(t, rangeViolation)

		case config.TypeCurrency:
			if _, err := coerce.CurrencyCode(v, p.cfg.CurrencySymbols); err != nil {
				typeViolation(err.Error())
			}
		}
	}
}

func checkBounds(x float64, f config.Field, report func(string)) {
	if f.Min != nil && x < *f.Min {
		report(fmt.Sprintf("below minimum %v", *f.Min))
	}
	if f.Max != nil && x > *f.Max {
		report(fmt.Sprintf("above maximum %v", *f.Max))
	}
}

func (p *Profiler) checkDateBounds(t time.Time, report func(string)) {
	if t.Before(p.dateMin) {
		report(fmt.Sprintf("before %s", p.dateMin.Format("2006-01-02")))
	}
	// The upper bound is inclusive of the whole final day.
	if t.After(p.dateMax.Add(24*time.Hour - time.Nanosecond)) {
		report(fmt.Sprintf("after %s", p.dateMax.Format("2006-01-02")))
	}
}

func (p *Profiler) addWarnings(spec config.SourceSpec, rep *Report) {
	for _, c := range rep.Columns {
		if c.NullRate > p.cfg.Thresholds.NullRateWarning {
			rep.Warnings = append(rep.Warnings,
				fmt.Sprintf("column %s is %.1f%% null or empty", c.Name, c.NullRate*100))
		}
	}
	if spec.MinRows > 0 && rep.RowsRead < spec.MinRows {
		rep.Warnings = append(rep.Warnings,
			fmt.Sprintf("only %d rows read, expected at least %d", rep.RowsRead, spec.MinRows))
	}
}

func (p *Profiler) addRecommendations(rep *Report) {
	for _, c := range rep.Columns {
		if c.NullRate > p.cfg.Thresholds.NullRateWarning {
			rep.Recommendations = append(rep.Recommendations,
				fmt.Sprintf("confirm upstream extraction of %s before trusting it", c.Name))
		}
	}
	if n := rep.ExactDuplicates.Count; n > 0 {
		rep.Recommendations = append(rep.Recommendations,
			fmt.Sprintf("drop %d duplicate rows at load; content is identical", n))
	}
	if rep.NearDuplicates != nil && rep.NearDuplicates.Count > 0 {
		rep.Recommendations = append(rep.Recommendations,
			fmt.Sprintf("review %d conflicting rows sharing an existing key; the first occurrence wins downstream", rep.NearDuplicates.Count))
	}
	if rep.OrphanKeys != nil && rep.OrphanKeys.Count > 0 {
		rep.Recommendations = append(rep.Recommendations,
			fmt.Sprintf("%d rows reference unknown keys and will be excluded from facts", rep.OrphanKeys.Count))
	}
	if len(rep.TypeViolations) > 0 {
		rep.Recommendations = append(rep.Recommendations,
			fmt.Sprintf("%d values failed type coercion and will load as null", len(rep.TypeViolations)))
	}
}

func rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*10000) / 10000
}

func indexOf(cols []string, name string) int {
	if name == "" {
		return -1
	}
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}
