// Package sqlite persists snapshots in a single SQLite file via
// modernc.org/sqlite (no cgo).
//
// Publication is a staging swap: every table is first written under a
// __staging suffix, then one transaction drops the published tables and
// renames staging into place. SQLite DDL is transactional, so readers of
// the file see either the old snapshot or the new one.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/advaith-rb/acm-data-takehome/internal/storage"
)

func init() {
	storage.Register("sqlite", open)
}

// maxBindVars keeps each multi-row VALUES under SQLite's historical
// default variable limit of 999, whatever the column count.
const maxBindVars = 999

func insertBatch(columns int) int {
	if columns < 1 {
		return 1
	}
	n := maxBindVars / columns
	if n < 1 {
		return 1
	}
	return n
}

type store struct {
	db *sql.DB
}

func open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite open %s: %w", cfg.DSN, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite busy_timeout: %w", err)
	}
	return &store{db: db}, nil
}

func (s *store) Close() error { return s.db.Close() }

func (s *store) Publish(ctx context.Context, snap *storage.Snapshot) error {
	for _, tbl := range snap.Tables {
		if err := s.writeStaging(ctx, tbl); err != nil {
			return err
		}
	}

	// The swap itself is one transaction.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin swap: %w", err)
	}
	defer tx.Rollback()

	for _, tbl := range snap.Tables {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlIdent(tbl.Name)); err != nil {
			return fmt.Errorf("sqlite drop %s: %w", tbl.Name, err)
		}
		rename := fmt.Sprintf("ALTER TABLE %s RENAME TO %s", sqlIdent(stagingName(tbl.Name)), sqlIdent(tbl.Name))
		if _, err := tx.ExecContext(ctx, rename); err != nil {
			return fmt.Errorf("sqlite rename %s: %w", tbl.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit swap: %w", err)
	}
	return nil
}

func (s *store) writeStaging(ctx context.Context, tbl storage.Table) error {
	staging := stagingName(tbl.Name)
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlIdent(staging)); err != nil {
		return fmt.Errorf("sqlite drop staging %s: %w", staging, err)
	}
	if _, err := s.db.ExecContext(ctx, createTableSQL(staging, tbl.Columns)); err != nil {
		return fmt.Errorf("sqlite create staging %s: %w", staging, err)
	}

	batch := insertBatch(len(tbl.Columns))
	for start := 0; start < len(tbl.Rows); start += batch {
		end := start + batch
		if end > len(tbl.Rows) {
			end = len(tbl.Rows)
		}
		if err := s.insertRows(ctx, staging, tbl.Columns, tbl.Rows[start:end]); err != nil {
			return fmt.Errorf("sqlite insert into %s: %w", staging, err)
		}
	}
	return nil
}

func (s *store) insertRows(ctx context.Context, table string, cols []storage.Column, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = sqlIdent(c.Name)
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",") + ")"

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(sqlIdent(table))
	sb.WriteString(" (")
	sb.WriteString(strings.Join(names, ", "))
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(cols))
	for i, row := range rows {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(placeholder)
		for _, v := range row {
			args = append(args, bindValue(v))
		}
	}

	_, err := s.db.ExecContext(ctx, sb.String(), args...)
	return err
}

func createTableSQL(name string, cols []storage.Column) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = sqlIdent(c.Name) + " " + sqliteType(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", sqlIdent(name), strings.Join(defs, ", "))
}

func sqliteType(colType string) string {
	switch colType {
	case storage.ColBigint:
		return "INTEGER"
	case storage.ColDouble:
		return "REAL"
	default:
		// Timestamps are stored as RFC3339 TEXT; lexical order matches
		// chronological order.
		return "TEXT"
	}
}

// bindValue maps row values onto sqlite bind types.
func bindValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}

func stagingName(table string) string { return table + "__staging" }

func sqlIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
