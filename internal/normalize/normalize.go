// Package normalize turns raw source records into typed, deduplicated
// Clean records ready for contract checking.
//
// Ordering guarantees:
//   - Ties are always broken by the lowest source row id: the first
//     occurrence of identical content, or of an already-seen natural key,
//     survives.
//   - A surviving record's Lineage is the set of all source row ids that
//     collapsed into it. Lineage is never empty.
//   - Output order follows first occurrence, so identical input yields an
//     identical output sequence.
package normalize

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/advaith-rb/acm-data-takehome/internal/coerce"
	"github.com/advaith-rb/acm-data-takehome/internal/config"
	"github.com/advaith-rb/acm-data-takehome/internal/profile"
	"github.com/advaith-rb/acm-data-takehome/internal/source"
)

// Logger is the minimal logging seam used by the normalizer.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Clean is one normalized record. Fields hold typed values: string,
// int64, float64, time.Time or nil.
type Clean struct {
	Fields  map[string]any
	Lineage []int64
}

// Key returns the record's natural-key value.
func (c Clean) Key(spec config.SourceSpec) string {
	s, _ := coerce.String(c.Fields[spec.NaturalKey])
	return s
}

// Result carries the surviving records and the drop/collapse accounting
// for one source.
type Result struct {
	Records []Clean

	// ExactCollapsed counts rows folded into an earlier identical row.
	ExactCollapsed int
	// KeyCollapsed counts rows folded into an earlier row with the same
	// natural key but different content.
	KeyCollapsed int
	// OrphansDropped counts rows excluded for an unresolvable foreign key.
	OrphansDropped int
	// KeyDropped counts rows excluded for a null or uncoercible key field.
	KeyDropped int
	// CoercionNulls counts non-key values nulled after failed coercion.
	CoercionNulls int
}

// Normalizer applies coercion, cleanup and deduplication per source.
type Normalizer struct {
	cfg   config.Config
	lower cases.Caser
}

// New builds a Normalizer. Case folding is locale-independent.
func New(cfg config.Config) *Normalizer {
	return &Normalizer{cfg: cfg, lower: cases.Lower(language.Und)}
}

// Records normalizes and deduplicates recs.
//
// refKeys is the surviving natural-key set of the referenced source; it
// must be non-nil when the source declares a foreign key, and rows whose
// foreign key misses it are dropped as orphans.
//
// The returned record set is self-verified: a duplicate natural key in
// the output is an internal error, not a data condition.
func (n *Normalizer) Records(spec config.SourceSpec, recs []source.Record, refKeys map[string]struct{}, log Logger) (*Result, error) {
	if log == nil {
		log = nopLogger{}
	}
	columns := spec.Columns()
	res := &Result{}

	seenHash := make(map[string]int, len(recs))   // hash -> index into res.Records
	seenKey := make(map[string]int, len(recs))    // natural key -> index into res.Records
	for _, rec := range recs {
		// Raw-content hash: rows that arrived byte-identical (modulo the
		// record-timestamp column) collapse before any cleanup.
		hash := profile.RowHash(columns, rec.Values, spec.RecordTimestamp)
		if at, dup := seenHash[hash]; dup {
			res.Records[at].Lineage = append(res.Records[at].Lineage, rec.RowID)
			res.ExactCollapsed++
			continue
		}

		fields, nulled, err := n.coerceRecord(spec, rec)
		if err != nil {
			res.KeyDropped++
			log.Printf("stage=normalize source=%s row=%d drop=key_unusable err=%v", spec.Name, rec.RowID, err)
			continue
		}
		res.CoercionNulls += nulled

		if spec.ForeignKey != "" {
			fk, ok := coerce.String(fields[spec.ForeignKey])
			if !ok || fk == "" {
				res.KeyDropped++
				log.Printf("stage=normalize source=%s row=%d drop=null_foreign_key", spec.Name, rec.RowID)
				continue
			}
			if _, found := refKeys[fk]; !found {
				res.OrphansDropped++
				log.Printf("stage=normalize source=%s row=%d drop=orphan key=%s", spec.Name, rec.RowID, fk)
				continue
			}
		}

		key, _ := coerce.String(fields[spec.NaturalKey])
		if at, dup := seenKey[key]; dup {
			// Same entity seen again with different content. The first
			// occurrence wins; later rows may only fill fields the winner
			// has null.
			winner := &res.Records[at]
			if spec.NearDuplicates {
				mergeFillNils(winner.Fields, fields)
			}
			winner.Lineage = append(winner.Lineage, rec.RowID)
			res.KeyCollapsed++
			continue
		}

		seenHash[hash] = len(res.Records)
		seenKey[key] = len(res.Records)
		res.Records = append(res.Records, Clean{
			Fields:  fields,
			Lineage: []int64{rec.RowID},
		})
	}

	for i := range res.Records {
		sort.Slice(res.Records[i].Lineage, func(a, b int) bool {
			return res.Records[i].Lineage[a] < res.Records[i].Lineage[b]
		})
	}

	if err := verifyUniqueKeys(spec, res.Records); err != nil {
		return nil, err
	}
	return res, nil
}

// coerceRecord types and cleans one record. A failed coercion nulls the
// value unless the field is the natural or foreign key, which makes the
// record unusable.
func (n *Normalizer) coerceRecord(spec config.SourceSpec, rec source.Record) (map[string]any, int, error) {
	fields := make(map[string]any, len(spec.Fields))
	nulled := 0

	for i, f := range spec.Fields {
		v, err := n.coerceValue(f, rec.Values[i])
		if err != nil {
			if f.Name == spec.NaturalKey || f.Name == spec.ForeignKey {
				return nil, 0, fmt.Errorf("field %s: %w", f.Name, err)
			}
			nulled++
			v = nil
		}
		fields[f.Name] = v
	}

	if key, ok := coerce.String(fields[spec.NaturalKey]); !ok || key == "" {
		return nil, 0, fmt.Errorf("field %s: %w", spec.NaturalKey, coerce.ErrNull)
	}
	return fields, nulled, nil
}

// coerceValue maps one raw value to its typed form. Null and empty
// inputs become nil without error.
func (n *Normalizer) coerceValue(f config.Field, v any) (any, error) {
	s, ok := coerce.String(v)
	if !ok || s == "" {
		return nil, nil
	}

	switch f.Type {
	case config.TypeText:
		if f.Lower {
			s = n.lower.String(s)
		}
		return s, nil

	case config.TypeInt:
		return coerce.Int(s)

	case config.TypeFloat:
		x, err := coerce.Float(s)
		if err != nil {
			return nil, err
		}
		if f.Round > 0 {
			shift := math.Pow(10, float64(f.Round))
			x = math.Round(x*shift) / shift
		}
		return x, nil

	case config.TypeDate:
		return coerce.Time(s, n.cfg.DateLayouts)

	case config.TypeTimestamp:
		return coerce.Time(s, n.cfg.TimestampLayouts)

	case config.TypeCurrency:
		return coerce.CurrencyCode(s, n.cfg.CurrencySymbols)

	default:
		return s, nil
	}
}

// mergeFillNils copies values from later into winner only where the
// winner holds nil. An existing non-null value is never overwritten.
func mergeFillNils(winner, later map[string]any) {
	for k, v := range later {
		if winner[k] == nil && v != nil {
			winner[k] = v
		}
	}
}

func verifyUniqueKeys(spec config.SourceSpec, recs []Clean) error {
	seen := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		k := r.Key(spec)
		if k == "" {
			return fmt.Errorf("normalize %s: record with empty %s survived", spec.Name, spec.NaturalKey)
		}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("normalize %s: duplicate %s=%s survived deduplication", spec.Name, spec.NaturalKey, k)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// Keys returns the surviving natural-key set, for downstream foreign-key
// resolution.
func Keys(spec config.SourceSpec, recs []Clean) map[string]struct{} {
	keys := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		keys[r.Key(spec)] = struct{}{}
	}
	return keys
}
