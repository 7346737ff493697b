package storage

import (
	"context"

	"github.com/gridport/gridport/internal/mapping"
)

// MockStore is a test double for the Store interface. Per-table error maps
// let tests fail one table while siblings proceed.
type MockStore struct {
	PingErr error

	EnsureErr  error
	EnsureErrs map[string]error

	UpsertErr  error
	UpsertErrs map[string]error

	DDLErr error

	Stats     map[string]ArrayStats // key: "table.column"
	StatsErr  error
	StatsErrs map[string]error // key: "table.column"

	RowCounts   map[string]int64
	RowCountErr error

	DeleteErr error
	Deleted   map[string]int64
	DropErr   error
	CloseErr  error

	// Recorded state
	CreatedTables map[string][]mapping.ColumnDefinition
	Rows          map[string][]map[string]any
	DDL           []string
	DeletedKeeps  map[string][]string
	DroppedTables []string
	Closed        bool
}

var _ Store = (*MockStore)(nil)

func (m *MockStore) Ping(_ context.Context) error {
	return m.PingErr
}

func (m *MockStore) EnsureTable(_ context.Context, table string, cols []mapping.ColumnDefinition) error {
	if err := m.EnsureErrs[table]; err != nil {
		return &StorageError{Table: table, Op: "create table", Err: err}
	}
	if m.EnsureErr != nil {
		return &StorageError{Table: table, Op: "create table", Err: m.EnsureErr}
	}
	if m.CreatedTables == nil {
		m.CreatedTables = make(map[string][]mapping.ColumnDefinition)
	}
	m.CreatedTables[table] = cols
	return nil
}

func (m *MockStore) UpsertRows(_ context.Context, table string, _ []string, rows []map[string]any, _ WriteMode) (UpsertResult, error) {
	if err := m.UpsertErrs[table]; err != nil {
		return UpsertResult{}, &StorageError{Table: table, Op: "upsert", Err: err}
	}
	if m.UpsertErr != nil {
		return UpsertResult{}, &StorageError{Table: table, Op: "upsert", Err: m.UpsertErr}
	}
	if m.Rows == nil {
		m.Rows = make(map[string][]map[string]any)
	}
	m.Rows[table] = append(m.Rows[table], rows...)
	return UpsertResult{Inserted: int64(len(rows))}, nil
}

func (m *MockStore) RunDDL(_ context.Context, statements []string) error {
	if m.DDLErr != nil {
		return &StorageError{Op: "ddl", Err: m.DDLErr}
	}
	m.DDL = append(m.DDL, statements...)
	return nil
}

func (m *MockStore) ArrayStats(_ context.Context, table, column string) (ArrayStats, error) {
	key := table + "." + column
	if err := m.StatsErrs[key]; err != nil {
		return ArrayStats{}, &StorageError{Table: table, Op: "array stats", Err: err}
	}
	if m.StatsErr != nil {
		return ArrayStats{}, &StorageError{Table: table, Op: "array stats", Err: m.StatsErr}
	}
	if m.Stats != nil {
		if s, ok := m.Stats[key]; ok {
			return s, nil
		}
	}
	return ArrayStats{}, nil
}

func (m *MockStore) RowCount(_ context.Context, table string) (int64, error) {
	if m.RowCountErr != nil {
		return 0, &StorageError{Table: table, Op: "row count", Err: m.RowCountErr}
	}
	if m.RowCounts != nil {
		if c, ok := m.RowCounts[table]; ok {
			return c, nil
		}
	}
	return 0, nil
}

func (m *MockStore) DeleteMissing(_ context.Context, table string, keepIDs []string) (int64, error) {
	if m.DeleteErr != nil {
		return 0, &StorageError{Table: table, Op: "delete missing", Err: m.DeleteErr}
	}
	if m.DeletedKeeps == nil {
		m.DeletedKeeps = make(map[string][]string)
	}
	m.DeletedKeeps[table] = keepIDs
	return m.Deleted[table], nil
}

func (m *MockStore) DropTables(_ context.Context, tables []string) error {
	if m.DropErr != nil {
		return &StorageError{Op: "drop table", Err: m.DropErr}
	}
	m.DroppedTables = append(m.DroppedTables, tables...)
	return nil
}

func (m *MockStore) Close(_ context.Context) error {
	m.Closed = true
	return m.CloseErr
}
