package source

import (
	"context"
	"fmt"

	"github.com/gridport/gridport/internal/schema"
)

// Page is one page of records plus the cursor for the next page. An empty
// NextCursor means the table is exhausted.
type Page struct {
	Records    []schema.RawRecord
	NextCursor string
}

// RecordSource provides read access to a grid base: its tables, their field
// schemas, and their records in cursor-delimited pages.
type RecordSource interface {
	ListTables(ctx context.Context) ([]schema.Table, error)
	ListFields(ctx context.Context, table string) ([]schema.FieldDefinition, error)
	PageRecords(ctx context.Context, table, cursor string) (*Page, error)
}

// SourceError marks a failure talking to the record source. It is fatal to
// the table being fetched but never to sibling tables.
type SourceError struct {
	Table string
	Err   error
}

func (e *SourceError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("source: %v", e.Err)
	}
	return fmt.Sprintf("source: table %s: %v", e.Table, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }
