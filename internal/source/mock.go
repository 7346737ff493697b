package source

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/gridport/gridport/internal/schema"
)

// MockSource is a test double for the RecordSource interface. Pages are
// addressed by index: the empty cursor is page 0 and NextCursor values on
// the canned pages are replaced with the following index.
type MockSource struct {
	Tables    []schema.Table
	TablesErr error

	Fields    map[string][]schema.FieldDefinition
	FieldsErr error

	Pages    map[string][]Page
	PageErrs map[string]error

	PageCalls map[string]int
}

var _ RecordSource = (*MockSource)(nil)

func (m *MockSource) ListTables(_ context.Context) ([]schema.Table, error) {
	if m.TablesErr != nil {
		return nil, &SourceError{Err: m.TablesErr}
	}
	if m.Tables != nil {
		return m.Tables, nil
	}
	names := make([]string, 0, len(m.Fields))
	for name := range m.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	tables := make([]schema.Table, 0, len(names))
	for _, name := range names {
		tables = append(tables, schema.Table{Name: name, Fields: m.Fields[name]})
	}
	return tables, nil
}

func (m *MockSource) ListFields(_ context.Context, table string) ([]schema.FieldDefinition, error) {
	if m.FieldsErr != nil {
		return nil, &SourceError{Table: table, Err: m.FieldsErr}
	}
	if m.Fields != nil {
		if f, ok := m.Fields[table]; ok {
			return f, nil
		}
	}
	return nil, &SourceError{Table: table, Err: fmt.Errorf("no fields configured for table %s", table)}
}

func (m *MockSource) PageRecords(_ context.Context, table, cursor string) (*Page, error) {
	if m.PageCalls == nil {
		m.PageCalls = make(map[string]int)
	}
	m.PageCalls[table]++

	if err, ok := m.PageErrs[table]; ok && err != nil {
		return nil, &SourceError{Table: table, Err: err}
	}

	pages := m.Pages[table]
	idx := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, &SourceError{Table: table, Err: fmt.Errorf("bad cursor %q", cursor)}
		}
		idx = n
	}
	if idx >= len(pages) {
		return &Page{}, nil
	}

	page := Page{Records: pages[idx].Records}
	if idx+1 < len(pages) {
		page.NextCursor = strconv.Itoa(idx + 1)
	}
	return &page, nil
}
