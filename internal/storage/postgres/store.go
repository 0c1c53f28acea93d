// Package postgres persists snapshots in PostgreSQL via pgx.
//
// Tables live in the "snapshot" schema. Publication writes everything
// into a fresh "snapshot_staging" schema first (bulk-loaded with COPY),
// then a single transaction drops the published schema and renames
// staging into place. Readers on the published schema never observe a
// partial snapshot.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/advaith-rb/acm-data-takehome/internal/storage"
)

func init() {
	storage.Register("postgres", open)
}

const (
	publishedSchema = "snapshot"
	stagingSchema   = "snapshot_staging"
)

type store struct {
	pool *pgxpool.Pool
}

func open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &store{pool: pool}, nil
}

func (s *store) Close() error {
	s.pool.Close()
	return nil
}

func (s *store) Publish(ctx context.Context, snap *storage.Snapshot) error {
	if _, err := s.pool.Exec(ctx, "DROP SCHEMA IF EXISTS "+pgIdent(stagingSchema)+" CASCADE"); err != nil {
		return fmt.Errorf("postgres drop staging schema: %w", err)
	}
	if _, err := s.pool.Exec(ctx, "CREATE SCHEMA "+pgIdent(stagingSchema)); err != nil {
		return fmt.Errorf("postgres create staging schema: %w", err)
	}

	for _, tbl := range snap.Tables {
		if err := s.writeStaging(ctx, tbl); err != nil {
			return err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres begin swap: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DROP SCHEMA IF EXISTS "+pgIdent(publishedSchema)+" CASCADE"); err != nil {
		return fmt.Errorf("postgres drop published schema: %w", err)
	}
	rename := fmt.Sprintf("ALTER SCHEMA %s RENAME TO %s", pgIdent(stagingSchema), pgIdent(publishedSchema))
	if _, err := tx.Exec(ctx, rename); err != nil {
		return fmt.Errorf("postgres rename schema: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres commit swap: %w", err)
	}
	return nil
}

func (s *store) writeStaging(ctx context.Context, tbl storage.Table) error {
	if _, err := s.pool.Exec(ctx, createTableSQL(stagingSchema, tbl.Name, tbl.Columns)); err != nil {
		return fmt.Errorf("postgres create %s: %w", tbl.Name, err)
	}

	cols := make([]string, len(tbl.Columns))
	for i, c := range tbl.Columns {
		cols[i] = c.Name
	}
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{stagingSchema, tbl.Name},
		cols,
		pgx.CopyFromRows(tbl.Rows),
	)
	if err != nil {
		return fmt.Errorf("postgres copy into %s: %w", tbl.Name, err)
	}
	return nil
}

func createTableSQL(schema, name string, cols []storage.Column) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = pgIdent(c.Name) + " " + pgType(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s.%s (%s)", pgIdent(schema), pgIdent(name), strings.Join(defs, ", "))
}

func pgType(colType string) string {
	switch colType {
	case storage.ColBigint:
		return "BIGINT"
	case storage.ColDouble:
		return "DOUBLE PRECISION"
	case storage.ColTimestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
