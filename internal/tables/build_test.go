package tables

import (
	"testing"
	"time"

	"github.com/advaith-rb/acm-data-takehome/internal/config"
	"github.com/advaith-rb/acm-data-takehome/internal/normalize"
	"github.com/advaith-rb/acm-data-takehome/internal/storage"
)

func specFor(t *testing.T, name string) config.SourceSpec {
	t.Helper()
	s, ok := config.Default().Source(name)
	if !ok {
		t.Fatalf("no source %q", name)
	}
	return s
}

func cust(id string, lineage ...int64) normalize.Clean {
	return normalize.Clean{
		Fields:  map[string]any{"customer_id": id, "name": "x", "email": nil, "age": nil, "city": nil, "country": nil, "signup_date": nil, "favorite_team": nil, "membership_tier": nil, "gender": nil},
		Lineage: lineage,
	}
}

func txnAt(id, customer, category string, amount float64, ts time.Time, lineage ...int64) normalize.Clean {
	return normalize.Clean{
		Fields: map[string]any{
			"transaction_id": id, "customer_id": customer, "timestamp": ts,
			"amount": amount, "currency": "EUR", "category": category,
			"merchant": nil, "description": nil,
		},
		Lineage: lineage,
	}
}

func findTable(t *testing.T, snap *storage.Snapshot, name string) storage.Table {
	t.Helper()
	for _, tbl := range snap.Tables {
		if tbl.Name == name {
			return tbl
		}
	}
	t.Fatalf("snapshot missing table %s", name)
	return storage.Table{}
}

func colIdx(t *testing.T, tbl storage.Table, name string) int {
	t.Helper()
	for i, c := range tbl.Columns {
		if c.Name == name {
			return i
		}
	}
	t.Fatalf("table %s missing column %s", tbl.Name, name)
	return -1
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC)
}

func buildSnapshot(t *testing.T) *storage.Snapshot {
	t.Helper()
	customers := Input{Spec: specFor(t, "customers"), Records: []normalize.Clean{
		cust("CUST-0001", 0, 7),
		cust("CUST-0002", 1),
	}}
	transactions := Input{Spec: specFor(t, "transactions"), Records: []normalize.Clean{
		txnAt("TXN-1", "CUST-0001", "match_tickets", 50, day(1), 0),
		txnAt("TXN-2", "CUST-0001", "groceries", 30, day(5), 1),
		txnAt("TXN-3", "CUST-0001", "sports_bar", 20, day(9), 2, 3),
	}}
	sentiment := Input{Spec: specFor(t, "sentiment"), Records: nil}

	snap, err := Build(customers, transactions, sentiment)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return snap
}

func TestBuildEmitsAllTables(t *testing.T) {
	t.Parallel()
	snap := buildSnapshot(t)
	if len(snap.Tables) != 4 {
		t.Fatalf("got %d tables, want 4", len(snap.Tables))
	}
	for _, name := range []string{"dim_customers", "fact_transactions", "fact_sentiment", "customer_profile"} {
		findTable(t, snap, name)
	}
}

func TestBuildLineageColumn(t *testing.T) {
	t.Parallel()
	snap := buildSnapshot(t)
	dims := findTable(t, snap, "dim_customers")
	li := colIdx(t, dims, "_lineage")
	if dims.Rows[0][li] != "0,7" {
		t.Fatalf("dim lineage = %v, want \"0,7\"", dims.Rows[0][li])
	}

	facts := findTable(t, snap, "fact_transactions")
	fi := colIdx(t, facts, "_lineage")
	for _, row := range facts.Rows {
		if row[fi] == "" {
			t.Fatal("fact row with empty lineage")
		}
	}
}

func TestBuildRejectsEmptyLineage(t *testing.T) {
	t.Parallel()
	customers := Input{Spec: specFor(t, "customers"), Records: []normalize.Clean{
		{Fields: map[string]any{"customer_id": "CUST-0001"}},
	}}
	_, err := Build(customers,
		Input{Spec: specFor(t, "transactions")},
		Input{Spec: specFor(t, "sentiment")})
	if err == nil {
		t.Fatal("record without lineage must be rejected")
	}
}

func TestProfileAggregates(t *testing.T) {
	t.Parallel()
	snap := buildSnapshot(t)
	prof := findTable(t, snap, "customer_profile")
	if len(prof.Rows) != 2 {
		t.Fatalf("profile rows = %d, want one per customer", len(prof.Rows))
	}

	row := prof.Rows[0] // CUST-0001, three transactions
	get := func(name string) any { return row[colIdx(t, prof, name)] }

	if get("txn_count") != int64(3) {
		t.Errorf("txn_count = %v", get("txn_count"))
	}
	if get("total_spend") != 100.0 {
		t.Errorf("total_spend = %v, want 100", get("total_spend"))
	}
	if get("avg_txn") != 33.33 {
		t.Errorf("avg_txn = %v, want 33.33", get("avg_txn"))
	}
	if got := get("last_txn_date").(time.Time); !got.Equal(day(9)) {
		t.Errorf("last_txn_date = %v", got)
	}
	if get("match_ticket_count") != int64(1) {
		t.Errorf("match_ticket_count = %v", get("match_ticket_count"))
	}
	// match_tickets and sports_bar are sports categories; groceries is not.
	if get("sports_affinity_ratio") != 0.6667 {
		t.Errorf("sports_affinity_ratio = %v, want 0.6667", get("sports_affinity_ratio"))
	}
	// 8 days span over 2 gaps.
	if get("avg_days_between_txns") != 4.0 {
		t.Errorf("avg_days_between_txns = %v, want 4", get("avg_days_between_txns"))
	}
	// Union of the customer's and the facts' lineage, source-qualified.
	// Customer row 0 and transaction row 0 stay distinct references.
	want := "customers:0,customers:7,transactions:0,transactions:1,transactions:2,transactions:3"
	if get("_lineage") != want {
		t.Errorf("profile lineage = %v, want %q", get("_lineage"), want)
	}
}

func TestProfileZeroFillsCustomersWithoutFacts(t *testing.T) {
	t.Parallel()
	snap := buildSnapshot(t)
	prof := findTable(t, snap, "customer_profile")
	row := prof.Rows[1] // CUST-0002, no transactions
	get := func(name string) any { return row[colIdx(t, prof, name)] }

	if get("txn_count") != int64(0) || get("total_spend") != 0.0 {
		t.Errorf("counts not zero-filled: count=%v spend=%v", get("txn_count"), get("total_spend"))
	}
	if get("avg_txn") != nil || get("last_txn_date") != nil || get("avg_days_between_txns") != nil {
		t.Errorf("averages must be null without facts: %v %v %v",
			get("avg_txn"), get("last_txn_date"), get("avg_days_between_txns"))
	}
	if get("sports_affinity_ratio") != 0.0 {
		t.Errorf("ratio = %v, want 0", get("sports_affinity_ratio"))
	}
	if get("_lineage") != "customers:1" {
		t.Errorf("lineage = %v, want the customer's own row", get("_lineage"))
	}
}
