package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/advaith-rb/acm-data-takehome/internal/storage"
)

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()
	got := createTableSQL("snapshot_staging", "customer_profile", []storage.Column{
		{Name: "customer_id", Type: storage.ColText},
		{Name: "txn_count", Type: storage.ColBigint},
		{Name: "total_spend", Type: storage.ColDouble},
		{Name: "last_txn_date", Type: storage.ColTimestamp},
	})
	want := `CREATE TABLE "snapshot_staging"."customer_profile" ` +
		`("customer_id" TEXT, "txn_count" BIGINT, "total_spend" DOUBLE PRECISION, "last_txn_date" TIMESTAMPTZ)`
	if got != want {
		t.Fatalf("DDL = %s", got)
	}
}

// TestPublishRoundTrip needs a live server; set PIPELINE_TEST_POSTGRES_DSN
// to run it.
func TestPublishRoundTrip(t *testing.T) {
	dsn := os.Getenv("PIPELINE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PIPELINE_TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := storage.Open(ctx, storage.Config{Kind: "postgres", DSN: dsn})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	snap := &storage.Snapshot{Tables: []storage.Table{
		{
			Name:    "dim_customers",
			Columns: []storage.Column{{Name: "customer_id", Type: storage.ColText}},
			Rows:    [][]any{{"CUST-0001"}},
		},
	}}
	if err := st.Publish(ctx, snap); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	// Publishing twice exercises the schema swap.
	if err := st.Publish(ctx, snap); err != nil {
		t.Fatalf("second Publish: %v", err)
	}
}
