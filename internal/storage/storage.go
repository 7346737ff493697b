package storage

import (
	"context"
	"fmt"

	"github.com/gridport/gridport/internal/mapping"
)

// WriteMode selects how rows land in an existing table.
type WriteMode string

const (
	// ModeInsert writes new rows only; records already present are skipped.
	ModeInsert WriteMode = "insert"
	// ModeUpsert inserts or updates by record id.
	ModeUpsert WriteMode = "upsert"
	// ModeSync upserts, then deletes rows whose record id vanished from the
	// source.
	ModeSync WriteMode = "sync"
)

// UpsertResult reports what one batch write did.
type UpsertResult struct {
	Inserted int64
	Updated  int64
	Skipped  int64
}

// ArrayStats summarizes a staged array column for relationship analysis.
type ArrayStats struct {
	Total   int64
	NonNull int64
	Unique  int64
}

// Store defines operations on the relational target. Every DDL entry point
// is idempotent: re-running it against an already-shaped schema must not
// error.
type Store interface {
	Ping(ctx context.Context) error
	EnsureTable(ctx context.Context, table string, cols []mapping.ColumnDefinition) error
	UpsertRows(ctx context.Context, table string, columns []string, rows []map[string]any, mode WriteMode) (UpsertResult, error)
	RunDDL(ctx context.Context, statements []string) error
	ArrayStats(ctx context.Context, table, column string) (ArrayStats, error)
	RowCount(ctx context.Context, table string) (int64, error)
	DeleteMissing(ctx context.Context, table string, keepIDs []string) (int64, error)
	DropTables(ctx context.Context, tables []string) error
	Close(ctx context.Context) error
}

// StorageError marks a failure against the target store. It is fatal to the
// table being written but never to sibling tables.
type StorageError struct {
	Table string
	Op    string
	Err   error
}

func (e *StorageError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage: table %s: %s: %v", e.Table, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
