package schema

import (
	"fmt"
	"time"

	"github.com/advaith-rb/acm-data-takehome/internal/coerce"
	"github.com/advaith-rb/acm-data-takehome/internal/config"
	"github.com/advaith-rb/acm-data-takehome/internal/normalize"
)

// Exclusion reports one record shut out by a record-level check.
type Exclusion struct {
	Key     string  `json:"key"`
	Column  string  `json:"column"`
	Reason  string  `json:"reason"`
	Lineage []int64 `json:"lineage"`
}

// Result is the outcome of enforcing one contract.
type Result struct {
	Table    string
	Passed   []normalize.Clean
	Excluded []Exclusion
}

// Enforce checks recs against the contract. refKeys is the surviving key
// set of the referenced table, nil when the contract has no foreign key.
//
// Record-level violations exclude the record and are reported in the
// result. Set-level violations return *SetFailureError and no result.
func Enforce(c Contract, recs []normalize.Clean, refKeys map[string]struct{}) (*Result, error) {
	var setChecks []string

	if c.MinRows > 0 && len(recs) < c.MinRows {
		setChecks = append(setChecks, fmt.Sprintf("row count %d below floor %d", len(recs), c.MinRows))
	}

	seen := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		k, _ := coerce.String(r.Fields[c.Key])
		if k == "" {
			continue // reported as a record-level violation below
		}
		if _, dup := seen[k]; dup {
			setChecks = append(setChecks, fmt.Sprintf("duplicate key %s=%s", c.Key, k))
			break
		}
		seen[k] = struct{}{}
	}

	if c.ForeignKey != "" && refKeys != nil {
		for _, r := range recs {
			fk, ok := coerce.String(r.Fields[c.ForeignKey])
			if !ok || fk == "" {
				continue
			}
			if _, found := refKeys[fk]; !found {
				setChecks = append(setChecks, fmt.Sprintf("unresolved foreign key %s=%s", c.ForeignKey, fk))
				break
			}
		}
	}

	if len(setChecks) > 0 {
		return nil, &SetFailureError{Table: c.Table, Checks: setChecks}
	}

	res := &Result{Table: c.Table}
	for _, r := range recs {
		if excl, ok := checkRecord(c, r); !ok {
			res.Excluded = append(res.Excluded, excl)
			continue
		}
		res.Passed = append(res.Passed, r)
	}
	return res, nil
}

// checkRecord runs the record-level checks. The first violated column
// wins; one reason per excluded record is enough for the report.
func checkRecord(c Contract, r normalize.Clean) (Exclusion, bool) {
	key, _ := coerce.String(r.Fields[c.Key])
	fail := func(col, reason string) Exclusion {
		return Exclusion{Key: key, Column: col, Reason: reason, Lineage: r.Lineage}
	}

	for _, col := range c.Columns {
		v := r.Fields[col.Name]
		if v == nil {
			if col.Required {
				return fail(col.Name, "required value is null"), false
			}
			continue
		}

		switch col.Type {
		case config.TypeText, config.TypeCurrency:
			if _, ok := v.(string); !ok {
				return fail(col.Name, fmt.Sprintf("has type %T, want string", v)), false
			}

		case config.TypeInt:
			n, ok := v.(int64)
			if !ok {
				return fail(col.Name, fmt.Sprintf("has type %T, want int64", v)), false
			}
			if reason, ok := inBounds(float64(n), col); !ok {
				return fail(col.Name, reason), false
			}

		case config.TypeFloat:
			x, ok := v.(float64)
			if !ok {
				return fail(col.Name, fmt.Sprintf("has type %T, want float64", v)), false
			}
			if reason, ok := inBounds(x, col); !ok {
				return fail(col.Name, reason), false
			}

		case config.TypeDate, config.TypeTimestamp:
			t, ok := v.(time.Time)
			if !ok {
				return fail(col.Name, fmt.Sprintf("has type %T, want time.Time", v)), false
			}
			if !col.MinTime.IsZero() && t.Before(col.MinTime) {
				return fail(col.Name, fmt.Sprintf("before %s", col.MinTime.Format("2006-01-02"))), false
			}
			if !col.MaxTime.IsZero() && t.After(col.MaxTime) {
				return fail(col.Name, fmt.Sprintf("after %s", col.MaxTime.Format("2006-01-02"))), false
			}
		}
	}
	return Exclusion{}, true
}

func inBounds(x float64, col Column) (string, bool) {
	if col.Min != nil && x < *col.Min {
		return fmt.Sprintf("%v below minimum %v", x, *col.Min), false
	}
	if col.Max != nil && x > *col.Max {
		return fmt.Sprintf("%v above maximum %v", x, *col.Max), false
	}
	return "", true
}
