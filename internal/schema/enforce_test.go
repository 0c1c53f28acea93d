package schema

import (
	"errors"
	"testing"
	"time"

	"github.com/advaith-rb/acm-data-takehome/internal/config"
	"github.com/advaith-rb/acm-data-takehome/internal/normalize"
)

func txnContract(t *testing.T) Contract {
	t.Helper()
	contracts, err := Contracts(config.Default())
	if err != nil {
		t.Fatalf("Contracts: %v", err)
	}
	c, ok := ForTable(contracts, "fact_transactions")
	if !ok {
		t.Fatal("no fact_transactions contract")
	}
	c.MinRows = 0 // row floor exercised explicitly where needed
	return c
}

func txn(key, customer string, amount any, ts any) normalize.Clean {
	fields := map[string]any{
		"transaction_id": key,
		"customer_id":    customer,
		"timestamp":      ts,
		"amount":         amount,
		"currency":       "EUR",
		"category":       "match_tickets",
		"merchant":       nil,
		"description":    nil,
	}
	return normalize.Clean{Fields: fields, Lineage: []int64{0}}
}

func okTime() time.Time {
	return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
}

func TestEnforcePassesCleanRecords(t *testing.T) {
	t.Parallel()
	refKeys := map[string]struct{}{"CUST-0001": {}}
	recs := []normalize.Clean{
		txn("TXN-000001", "CUST-0001", 10.0, okTime()),
		txn("TXN-000002", "CUST-0001", -45.9, okTime()), // refunds are in range
	}
	res, err := Enforce(txnContract(t), recs, refKeys)
	if err != nil {
		t.Fatalf("Enforce: %v", err)
	}
	if len(res.Passed) != 2 || len(res.Excluded) != 0 {
		t.Fatalf("passed=%d excluded=%d, want 2 and 0", len(res.Passed), len(res.Excluded))
	}
}

func TestEnforceExcludesRecordLevelViolations(t *testing.T) {
	t.Parallel()
	refKeys := map[string]struct{}{"CUST-0001": {}}
	recs := []normalize.Clean{
		txn("TXN-000001", "CUST-0001", 10.0, okTime()),
		txn("TXN-000002", "CUST-0001", nil, okTime()),                                      // required null
		txn("TXN-000003", "CUST-0001", 60000.0, okTime()),                                  // above max
		txn("TXN-000004", "CUST-0001", 10.0, time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)), // before window
	}
	res, err := Enforce(txnContract(t), recs, refKeys)
	if err != nil {
		t.Fatalf("Enforce: %v", err)
	}
	if len(res.Passed) != 1 {
		t.Fatalf("passed=%d, want 1", len(res.Passed))
	}
	if len(res.Excluded) != 3 {
		t.Fatalf("excluded=%d, want 3: %+v", len(res.Excluded), res.Excluded)
	}
	byKey := map[string]Exclusion{}
	for _, e := range res.Excluded {
		byKey[e.Key] = e
	}
	if byKey["TXN-000002"].Column != "amount" || byKey["TXN-000002"].Reason != "required value is null" {
		t.Fatalf("null amount exclusion wrong: %+v", byKey["TXN-000002"])
	}
	if byKey["TXN-000003"].Column != "amount" {
		t.Fatalf("range exclusion wrong: %+v", byKey["TXN-000003"])
	}
	if byKey["TXN-000004"].Column != "timestamp" {
		t.Fatalf("date window exclusion wrong: %+v", byKey["TXN-000004"])
	}
}

func TestEnforceSetFailureDuplicateKey(t *testing.T) {
	t.Parallel()
	refKeys := map[string]struct{}{"CUST-0001": {}}
	recs := []normalize.Clean{
		txn("TXN-000001", "CUST-0001", 10.0, okTime()),
		txn("TXN-000001", "CUST-0001", 20.0, okTime()),
	}
	_, err := Enforce(txnContract(t), recs, refKeys)
	var sf *SetFailureError
	if !errors.As(err, &sf) {
		t.Fatalf("want *SetFailureError, got %v", err)
	}
	if sf.Table != "fact_transactions" {
		t.Fatalf("failure names wrong table: %q", sf.Table)
	}
}

func TestEnforceSetFailureUnresolvedFK(t *testing.T) {
	t.Parallel()
	refKeys := map[string]struct{}{"CUST-0001": {}}
	recs := []normalize.Clean{
		txn("TXN-000001", "CUST-0999", 10.0, okTime()),
	}
	_, err := Enforce(txnContract(t), recs, refKeys)
	var sf *SetFailureError
	if !errors.As(err, &sf) {
		t.Fatalf("want *SetFailureError, got %v", err)
	}
}

func TestEnforceSetFailureRowFloor(t *testing.T) {
	t.Parallel()
	c := txnContract(t)
	c.MinRows = 10
	refKeys := map[string]struct{}{"CUST-0001": {}}
	recs := []normalize.Clean{txn("TXN-000001", "CUST-0001", 10.0, okTime())}
	_, err := Enforce(c, recs, refKeys)
	var sf *SetFailureError
	if !errors.As(err, &sf) {
		t.Fatalf("want *SetFailureError, got %v", err)
	}
}

func TestEnforceRowFloorCountsInputNotSurvivors(t *testing.T) {
	t.Parallel()
	c := txnContract(t)
	c.MinRows = 2
	refKeys := map[string]struct{}{"CUST-0001": {}}
	// Two records enter, one is excluded record-level. The floor is met.
	recs := []normalize.Clean{
		txn("TXN-000001", "CUST-0001", 10.0, okTime()),
		txn("TXN-000002", "CUST-0001", nil, okTime()),
	}
	res, err := Enforce(c, recs, refKeys)
	if err != nil {
		t.Fatalf("Enforce: %v", err)
	}
	if len(res.Passed) != 1 || len(res.Excluded) != 1 {
		t.Fatalf("passed=%d excluded=%d, want 1 and 1", len(res.Passed), len(res.Excluded))
	}
}

func TestContractsCoverAllSources(t *testing.T) {
	t.Parallel()
	contracts, err := Contracts(config.Default())
	if err != nil {
		t.Fatalf("Contracts: %v", err)
	}
	for _, table := range []string{"dim_customers", "fact_transactions", "fact_sentiment"} {
		if _, ok := ForTable(contracts, table); !ok {
			t.Fatalf("missing contract for %s", table)
		}
	}
	cust, _ := ForTable(contracts, "dim_customers")
	if cust.Key != "customer_id" || cust.MinRows != 190 {
		t.Fatalf("dim_customers contract wrong: %+v", cust)
	}
}
