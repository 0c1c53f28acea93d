// Package config holds the resolved pipeline configuration: the three
// source declarations, the accepted date/timestamp layouts, currency
// handling, quality thresholds and snapshot storage settings.
//
// A Config is resolved once at startup (defaults, then an optional YAML
// file, then PIPELINE_ environment overrides) and treated as immutable by
// every stage after that.
package config

import (
	"fmt"
	"time"
)

// Field types understood by the profiler and the coercion layer.
const (
	TypeText      = "text"
	TypeInt       = "int"
	TypeFloat     = "float"
	TypeDate      = "date"
	TypeTimestamp = "timestamp"
	TypeCurrency  = "currency"
)

// Field declares one column of a source: its position, coercion target
// and optional numeric bounds. Date and timestamp fields are bounded
// globally by Thresholds.DateMin/DateMax.
type Field struct {
	Name string `koanf:"name"`
	Type string `koanf:"type"`

	Min *float64 `koanf:"min"`
	Max *float64 `koanf:"max"`

	// Required marks the field non-nullable in the output contract. A
	// record missing it after normalization is excluded from its table.
	Required bool `koanf:"required"`

	// Lower folds the value to lower case during normalization. Used for
	// fields with known casing drift (city, gender, topic); identifier
	// and free-text fields keep their casing.
	Lower bool `koanf:"lower"`

	// Round rounds a float field to this many decimals during
	// normalization. Zero means no rounding.
	Round int `koanf:"round"`
}

// SourceSpec declares one input file and how to interpret it.
type SourceSpec struct {
	// Name identifies the source in reports and logs ("customers",
	// "transactions", "sentiment").
	Name string `koanf:"name"`

	// Path is the input file location.
	Path string `koanf:"path"`

	// Format is "csv" or "json".
	Format string `koanf:"format"`

	// Table names the output table this source feeds.
	Table string `koanf:"table"`

	// Fields is the declared column layout, in order. For CSV the names
	// must match the header after snake_case normalization; for JSON they
	// are the flattened field order records are projected onto.
	Fields []Field `koanf:"fields"`

	// NaturalKey names the column that identifies an entity in this source.
	NaturalKey string `koanf:"natural_key"`

	// RecordTimestamp names a column excluded from exact-duplicate hashing,
	// if any. Two rows differing only in this column still count as exact
	// duplicates.
	RecordTimestamp string `koanf:"record_timestamp"`

	// ForeignKey/References declare that ForeignKey values in this source
	// must exist as NaturalKey values in the References source.
	ForeignKey string `koanf:"foreign_key"`
	References string `koanf:"references"`

	// NearDuplicates enables same-key/different-content detection for this
	// source.
	NearDuplicates bool `koanf:"near_duplicates"`

	// MinRows is the smallest credible row count for this source. Fewer
	// surviving rows fail the set-level contract.
	MinRows int `koanf:"min_rows"`
}

// Columns returns the declared column names in order.
func (s SourceSpec) Columns() []string {
	cols := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = f.Name
	}
	return cols
}

// Field returns the declaration for the named column.
func (s SourceSpec) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HasColumn reports whether name is a declared column.
func (s SourceSpec) HasColumn(name string) bool {
	_, ok := s.Field(name)
	return ok
}

// Thresholds are the global quality bounds.
type Thresholds struct {
	// NullRateWarning flags columns whose combined null+empty rate
	// exceeds this fraction.
	NullRateWarning float64 `koanf:"null_rate_warning"`

	// DateMin/DateMax bound every date and timestamp field, ISO layout.
	DateMin string `koanf:"date_min"`
	DateMax string `koanf:"date_max"`
}

// Storage selects the snapshot backend.
type Storage struct {
	// Kind is a registered store kind, currently "sqlite" or "postgres".
	Kind string `koanf:"kind"`
	DSN  string `koanf:"dsn"`
}

// Config is the full pipeline configuration.
type Config struct {
	Sources []SourceSpec `koanf:"sources"`

	// DateLayouts and TimestampLayouts are tried in order during coercion.
	// Order matters: the first layout that parses wins, so unambiguous
	// layouts come first.
	DateLayouts      []string `koanf:"date_layouts"`
	TimestampLayouts []string `koanf:"timestamp_layouts"`

	// CurrencySymbols maps non-ISO currency spellings to ISO 4217 codes.
	CurrencySymbols map[string]string `koanf:"currency_symbols"`

	Thresholds Thresholds `koanf:"thresholds"`
	Storage    Storage    `koanf:"storage"`

	// OutDir receives the validation and run reports.
	OutDir string `koanf:"out_dir"`
}

func ptr(f float64) *float64 { return &f }

// Default returns the shipped configuration for the customers,
// transactions and sentiment sources.
func Default() Config {
	return Config{
		Sources: []SourceSpec{
			{
				Name:   "customers",
				Path:   "data/customers.csv",
				Format: "csv",
				Table:  "dim_customers",
				Fields: []Field{
					{Name: "customer_id", Type: TypeText, Required: true},
					{Name: "name", Type: TypeText},
					{Name: "email", Type: TypeText, Lower: true},
					{Name: "age", Type: TypeInt, Min: ptr(0), Max: ptr(150)},
					{Name: "city", Type: TypeText, Lower: true},
					{Name: "country", Type: TypeText, Lower: true},
					{Name: "signup_date", Type: TypeDate},
					{Name: "favorite_team", Type: TypeText},
					{Name: "membership_tier", Type: TypeText, Lower: true},
					{Name: "gender", Type: TypeText, Lower: true},
				},
				NaturalKey:     "customer_id",
				NearDuplicates: true,
				MinRows:        190,
			},
			{
				Name:   "transactions",
				Path:   "data/transactions.csv",
				Format: "csv",
				Table:  "fact_transactions",
				Fields: []Field{
					{Name: "transaction_id", Type: TypeText, Required: true},
					{Name: "customer_id", Type: TypeText, Required: true},
					{Name: "timestamp", Type: TypeTimestamp, Required: true},
					{Name: "amount", Type: TypeFloat, Min: ptr(-1000), Max: ptr(50000), Round: 2, Required: true},
					{Name: "currency", Type: TypeCurrency, Required: true},
					{Name: "category", Type: TypeText, Lower: true},
					{Name: "merchant", Type: TypeText},
					{Name: "description", Type: TypeText},
				},
				NaturalKey: "transaction_id",
				ForeignKey: "customer_id",
				References: "customers",
				MinRows:    2400,
			},
			{
				Name:   "sentiment",
				Path:   "data/sentiment.json",
				Format: "json",
				Table:  "fact_sentiment",
				Fields: []Field{
					{Name: "id", Type: TypeText, Required: true},
					{Name: "user", Type: TypeText},
					{Name: "source", Type: TypeText},
					{Name: "text", Type: TypeText},
					{Name: "published_at", Type: TypeTimestamp},
					{Name: "topic", Type: TypeText, Lower: true},
					{Name: "tags", Type: TypeText},
					{Name: "sentiment_score", Type: TypeFloat, Min: ptr(-1), Max: ptr(1)},
					{Name: "engagement_likes", Type: TypeInt, Min: ptr(0)},
					{Name: "engagement_shares", Type: TypeInt, Min: ptr(0)},
					{Name: "engagement_comments", Type: TypeInt, Min: ptr(0)},
				},
				NaturalKey: "id",
			},
		},
		DateLayouts: []string{
			"2006-01-02",
			"01/02/2006",
			"02 Jan 2006",
		},
		TimestampLayouts: []string{
			"2006-01-02T15:04:05Z07:00",
			"2006-01-02T15:04:05Z",
			"2006-01-02 15:04:05",
			"2006-01-02 15:04",
			"01/02/2006",
			"02-Jan-2006",
		},
		CurrencySymbols: map[string]string{
			"€": "EUR",
			"$": "USD",
			"£": "GBP",
		},
		Thresholds: Thresholds{
			NullRateWarning: 0.30,
			DateMin:         "2020-01-01",
			DateMax:         "2026-12-31",
		},
		Storage: Storage{
			Kind: "sqlite",
			DSN:  "out/snapshot.db",
		},
		OutDir: "out",
	}
}

// Source returns the declaration for name.
func (c Config) Source(name string) (SourceSpec, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceSpec{}, false
}

// DateRange parses Thresholds.DateMin/DateMax.
func (c Config) DateRange() (min, max time.Time, err error) {
	min, err = time.Parse("2006-01-02", c.Thresholds.DateMin)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("thresholds.date_min: %w", err)
	}
	max, err = time.Parse("2006-01-02", c.Thresholds.DateMax)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("thresholds.date_max: %w", err)
	}
	return min, max, nil
}

// Issue severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Issue is a single configuration problem found by Validate.
type Issue struct {
	Severity string
	Path     string
	Message  string
}

// Validate checks the configuration for structural problems. Errors make
// the configuration unusable; warnings are reported and tolerated.
func (c Config) Validate() []Issue {
	var issues []Issue
	errf := func(path, format string, args ...any) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, args...)})
	}
	warnf := func(path, format string, args ...any) {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if len(c.Sources) == 0 {
		errf("sources", "at least one source is required")
	}
	seen := map[string]bool{}
	for i, s := range c.Sources {
		p := fmt.Sprintf("sources[%d]", i)
		if s.Name == "" {
			errf(p+".name", "missing")
		}
		if seen[s.Name] {
			errf(p+".name", "duplicate source name %q", s.Name)
		}
		seen[s.Name] = true
		if s.Path == "" {
			errf(p+".path", "missing")
		}
		if s.Table == "" {
			errf(p+".table", "missing")
		}
		if s.Format != "csv" && s.Format != "json" {
			errf(p+".format", "unsupported format %q", s.Format)
		}
		if len(s.Fields) == 0 {
			errf(p+".fields", "missing")
		}
		for j, f := range s.Fields {
			fp := fmt.Sprintf("%s.fields[%d]", p, j)
			if f.Name == "" {
				errf(fp+".name", "missing")
			}
			switch f.Type {
			case TypeText, TypeInt, TypeFloat, TypeDate, TypeTimestamp, TypeCurrency:
			default:
				errf(fp+".type", "unknown type %q", f.Type)
			}
			if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
				errf(fp, "min above max")
			}
		}
		if s.NaturalKey == "" {
			errf(p+".natural_key", "missing")
		} else if !s.HasColumn(s.NaturalKey) {
			errf(p+".natural_key", "%q not in declared fields", s.NaturalKey)
		}
		if s.ForeignKey != "" {
			if s.References == "" {
				errf(p+".references", "foreign_key set without references")
			}
			if !s.HasColumn(s.ForeignKey) {
				errf(p+".foreign_key", "%q not in declared fields", s.ForeignKey)
			}
		}
		if s.RecordTimestamp != "" && !s.HasColumn(s.RecordTimestamp) {
			errf(p+".record_timestamp", "%q not in declared fields", s.RecordTimestamp)
		}
		if s.MinRows < 0 {
			errf(p+".min_rows", "must be >= 0")
		}
	}
	for i, s := range c.Sources {
		if s.References == "" {
			continue
		}
		if _, ok := c.Source(s.References); !ok {
			errf(fmt.Sprintf("sources[%d].references", i), "unknown source %q", s.References)
		}
	}

	if len(c.DateLayouts) == 0 {
		errf("date_layouts", "missing")
	}
	if len(c.TimestampLayouts) == 0 {
		errf("timestamp_layouts", "missing")
	}
	if c.Thresholds.NullRateWarning <= 0 || c.Thresholds.NullRateWarning > 1 {
		warnf("thresholds.null_rate_warning", "outside (0,1], got %v", c.Thresholds.NullRateWarning)
	}
	if _, _, err := c.DateRange(); err != nil {
		errf("thresholds", "%v", err)
	}
	if c.Storage.Kind == "" {
		errf("storage.kind", "missing")
	}
	return issues
}
