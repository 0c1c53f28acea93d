// Package tables materializes the output tables from contract-passed
// records: one dimension and two fact tables projected straight from
// their sources, plus the customer_profile aggregate derived by a full
// fold over the transaction facts.
//
// Every emitted row carries a _lineage column: the sorted source row ids
// that produced it. Aggregate rows union the lineage of everything that
// contributed, deduplicated and source-qualified (customers:0) because
// they draw from two files.
package tables

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/advaith-rb/acm-data-takehome/internal/coerce"
	"github.com/advaith-rb/acm-data-takehome/internal/config"
	"github.com/advaith-rb/acm-data-takehome/internal/normalize"
	"github.com/advaith-rb/acm-data-takehome/internal/storage"
)

// ProfileTable is the name of the derived aggregate table.
const ProfileTable = "customer_profile"

// sportsCategories feed the sports_affinity_ratio numerator.
var sportsCategories = map[string]bool{
	"match_tickets":      true,
	"sports_merchandise": true,
	"sports_bar":         true,
	"streaming":          true,
}

// lineageColumn holds the sorted, comma-joined source row ids of a row.
const lineageColumn = "_lineage"

// Input pairs a source declaration with its surviving records.
type Input struct {
	Spec    config.SourceSpec
	Records []normalize.Clean
}

// Build assembles the snapshot: dim_customers, fact_transactions,
// fact_sentiment and customer_profile. Row order follows record order,
// so identical inputs produce an identical snapshot.
func Build(customers, transactions, sentiment Input) (*storage.Snapshot, error) {
	snap := &storage.Snapshot{}
	for _, in := range []Input{customers, transactions, sentiment} {
		tbl, err := sourceTable(in)
		if err != nil {
			return nil, err
		}
		snap.Tables = append(snap.Tables, tbl)
	}
	snap.Tables = append(snap.Tables, profileTable(customers, transactions))
	return snap, nil
}

// sourceTable projects records onto the declared columns plus lineage.
func sourceTable(in Input) (storage.Table, error) {
	tbl := storage.Table{Name: in.Spec.Table}
	for _, f := range in.Spec.Fields {
		tbl.Columns = append(tbl.Columns, storage.Column{Name: f.Name, Type: columnType(f.Type)})
	}
	tbl.Columns = append(tbl.Columns, storage.Column{Name: lineageColumn, Type: storage.ColText})

	for _, r := range in.Records {
		if len(r.Lineage) == 0 {
			return storage.Table{}, fmt.Errorf("table %s: record %s has no lineage", in.Spec.Table, r.Key(in.Spec))
		}
		row := make([]any, 0, len(tbl.Columns))
		for _, f := range in.Spec.Fields {
			row = append(row, r.Fields[f.Name])
		}
		row = append(row, lineageString(r.Lineage))
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl, nil
}

// profileTable folds the transaction facts per customer. Every customer
// appears exactly once; a customer with no transactions gets zero counts
// and null aggregates (left-join semantics).
func profileTable(customers, transactions Input) storage.Table {
	tbl := storage.Table{
		Name: ProfileTable,
		Columns: []storage.Column{
			{Name: "customer_id", Type: storage.ColText},
			{Name: "txn_count", Type: storage.ColBigint},
			{Name: "total_spend", Type: storage.ColDouble},
			{Name: "avg_txn", Type: storage.ColDouble},
			{Name: "last_txn_date", Type: storage.ColTimestamp},
			{Name: "match_ticket_count", Type: storage.ColBigint},
			{Name: "sports_affinity_ratio", Type: storage.ColDouble},
			{Name: "avg_days_between_txns", Type: storage.ColDouble},
			{Name: lineageColumn, Type: storage.ColText},
		},
	}

	folds := make(map[string]*fold)
	fkCol := transactions.Spec.ForeignKey
	for _, r := range transactions.Records {
		key, _ := coerce.String(r.Fields[fkCol])
		if key == "" {
			continue
		}
		f := folds[key]
		if f == nil {
			f = &fold{}
			folds[key] = f
		}
		f.add(r)
	}

	for _, cust := range customers.Records {
		key := cust.Key(customers.Spec)
		f := folds[key]

		refs := make(map[rowRef]struct{}, len(cust.Lineage))
		for _, id := range cust.Lineage {
			refs[rowRef{customers.Spec.Name, id}] = struct{}{}
		}
		if f != nil {
			for _, id := range f.lineage {
				refs[rowRef{transactions.Spec.Name, id}] = struct{}{}
			}
		}

		row := []any{key}
		row = append(row, aggregateValues(f)...)
		row = append(row, refString(refs))
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl
}

// rowRef names one contributing input row. The aggregate table unions
// lineage across two files, so ids alone would be ambiguous there.
type rowRef struct {
	source string
	id     int64
}

func refString(refs map[rowRef]struct{}) string {
	sorted := make([]rowRef, 0, len(refs))
	for ref := range refs {
		sorted = append(sorted, ref)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].source != sorted[j].source {
			return sorted[i].source < sorted[j].source
		}
		return sorted[i].id < sorted[j].id
	})
	parts := make([]string, len(sorted))
	for i, ref := range sorted {
		parts[i] = ref.source + ":" + strconv.FormatInt(ref.id, 10)
	}
	return strings.Join(parts, ",")
}

// fold accumulates one customer's transaction aggregates.
type fold struct {
	count   int64
	spend   float64
	matches int64
	sports  int64
	first   time.Time
	last    time.Time
	lineage []int64
}

func (f *fold) add(r normalize.Clean) {
	f.count++
	if amt, ok := r.Fields["amount"].(float64); ok {
		f.spend += amt
	}
	if cat, ok := r.Fields["category"].(string); ok {
		if cat == "match_tickets" {
			f.matches++
		}
		if sportsCategories[cat] {
			f.sports++
		}
	}
	if ts, ok := r.Fields["timestamp"].(time.Time); ok {
		if f.first.IsZero() || ts.Before(f.first) {
			f.first = ts
		}
		if f.last.IsZero() || ts.After(f.last) {
			f.last = ts
		}
	}
	f.lineage = append(f.lineage, r.Lineage...)
}

// aggregateValues renders one fold as column values. Nil fold means the
// customer has no transactions: counts are zero, averages are null.
func aggregateValues(f *fold) []any {
	if f == nil || f.count == 0 {
		return []any{int64(0), 0.0, nil, nil, int64(0), 0.0, nil}
	}

	var lastTxn any
	if !f.last.IsZero() {
		lastTxn = f.last
	}

	var avgDays any
	if f.count > 1 && !f.first.IsZero() && !f.last.IsZero() {
		span := f.last.Sub(f.first).Hours() / 24
		avgDays = round2(span / float64(f.count-1))
	}

	return []any{
		f.count,
		round2(f.spend),
		round2(f.spend / float64(f.count)),
		lastTxn,
		f.matches,
		round4(float64(f.sports) / float64(f.count)),
		avgDays,
	}
}

func columnType(fieldType string) string {
	switch fieldType {
	case config.TypeInt:
		return storage.ColBigint
	case config.TypeFloat:
		return storage.ColDouble
	case config.TypeDate, config.TypeTimestamp:
		return storage.ColTimestamp
	default:
		return storage.ColText
	}
}

func lineageString(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }

func round4(x float64) float64 { return math.Round(x*10000) / 10000 }
