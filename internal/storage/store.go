// Package storage publishes pipeline snapshots. A snapshot is the full
// set of output tables for one run; backends persist it atomically, so a
// reader either sees the previous complete snapshot or the new complete
// snapshot, never a mix and never a partial table.
//
// Backends register themselves by kind in an init function, mirroring
// database/sql driver registration:
//
//	import _ "github.com/advaith-rb/acm-data-takehome/internal/storage/sqlite"
//	st, err := storage.Open(ctx, storage.Config{Kind: "sqlite", DSN: path})
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Column value kinds understood by every backend.
const (
	ColText      = "text"
	ColBigint    = "bigint"
	ColDouble    = "double"
	ColTimestamp = "timestamp"
)

// Column describes one output column.
type Column struct {
	Name string
	Type string
}

// Table is one fully materialized output table. Row values are string,
// int64, float64, time.Time or nil, aligned to Columns.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

// Snapshot is the complete output of one run.
type Snapshot struct {
	Tables []Table
}

// Store persists snapshots.
type Store interface {
	// Publish writes the snapshot and swaps it into place atomically.
	Publish(ctx context.Context, snap *Snapshot) error
	Close() error
}

// Config selects and parameterizes a backend.
type Config struct {
	Kind string
	DSN  string
}

// Factory builds a Store from its configuration.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a store kind available to Open. It panics on a
// duplicate or empty kind; registration is an init-time programming
// contract, not a runtime condition.
func Register(kind string, f Factory) {
	if kind == "" || f == nil {
		panic("storage: Register with empty kind or nil factory")
	}
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := factories[kind]; dup {
		panic(fmt.Sprintf("storage: duplicate Register(%q)", kind))
	}
	factories[kind] = f
}

// Open builds the store selected by cfg.Kind.
func Open(ctx context.Context, cfg Config) (Store, error) {
	regMu.RLock()
	f, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unknown kind %q (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered store kinds, sorted.
func Kinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
