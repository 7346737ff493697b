package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridport/gridport/internal/mapping"
)

// Postgres implements Store against a PostgreSQL database.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// Connect opens a connection pool and verifies it with a ping.
func Connect(ctx context.Context, connString string, maxConns int32) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Pool exposes the underlying pool so other stores can share it.
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return &StorageError{Op: "ping", Err: err}
	}
	return nil
}

// EnsureTable creates the table if it does not exist. Column constraints are
// emitted inline, so re-running against an existing table is a no-op.
func (p *Postgres) EnsureTable(ctx context.Context, table string, cols []mapping.ColumnDefinition) error {
	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		def := QuoteIdent(c.Name) + " " + c.StorageType
		if !c.Nullable {
			def += " NOT NULL"
		}
		for _, con := range c.Constraints {
			def += " " + con
		}
		defs = append(defs, def)
	}

	sql := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", QuoteIdent(table), strings.Join(defs, ", "))
	if _, err := p.pool.Exec(ctx, sql); err != nil {
		return &StorageError{Table: table, Op: "create table", Err: err}
	}
	return nil
}

// UpsertRows writes one page of rows. Insert mode counts conflicts as
// skipped; upsert and sync modes distinguish inserts from updates via xmax.
func (p *Postgres) UpsertRows(ctx context.Context, table string, columns []string, rows []map[string]any, mode WriteMode) (UpsertResult, error) {
	var res UpsertResult
	if len(rows) == 0 {
		return res, nil
	}

	sql, args := buildUpsert(table, columns, rows, mode)

	if mode == ModeInsert {
		tag, err := p.pool.Exec(ctx, sql, args...)
		if err != nil {
			return res, &StorageError{Table: table, Op: "insert", Err: err}
		}
		res.Inserted = tag.RowsAffected()
		res.Skipped = int64(len(rows)) - res.Inserted
		return res, nil
	}

	rs, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return res, &StorageError{Table: table, Op: "upsert", Err: err}
	}
	defer rs.Close()
	for rs.Next() {
		var inserted bool
		if err := rs.Scan(&inserted); err != nil {
			return res, &StorageError{Table: table, Op: "upsert", Err: err}
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	if err := rs.Err(); err != nil {
		return res, &StorageError{Table: table, Op: "upsert", Err: err}
	}
	return res, nil
}

// buildUpsert assembles a multi-row insert with the conflict clause for the
// write mode. Upsert statements return (xmax = 0) per row so the caller can
// split inserted from updated.
func buildUpsert(table string, columns []string, rows []map[string]any, mode WriteMode) (string, []any) {
	quotedCols := make([]string, len(columns))
	for i, c := range columns {
		quotedCols[i] = QuoteIdent(c)
	}

	valueRows := make([]string, len(rows))
	args := make([]any, 0, len(rows)*len(columns))
	n := 1
	for i, row := range rows {
		ph := make([]string, len(columns))
		for j, col := range columns {
			ph[j] = fmt.Sprintf("$%d", n)
			n++
			args = append(args, row[col])
		}
		valueRows[i] = "(" + strings.Join(ph, ", ") + ")"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES %s",
		QuoteIdent(table), strings.Join(quotedCols, ", "), strings.Join(valueRows, ", "))

	if mode == ModeInsert {
		fmt.Fprintf(&sb, " ON CONFLICT (%s) DO NOTHING", mapping.RecordIDColumn)
		return sb.String(), args
	}

	sets := make([]string, 0, len(columns))
	for _, c := range columns {
		if c == mapping.RecordIDColumn {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", QuoteIdent(c), QuoteIdent(c)))
	}
	if len(sets) == 0 {
		fmt.Fprintf(&sb, " ON CONFLICT (%s) DO NOTHING", mapping.RecordIDColumn)
	} else {
		fmt.Fprintf(&sb, " ON CONFLICT (%s) DO UPDATE SET %s", mapping.RecordIDColumn, strings.Join(sets, ", "))
	}
	sb.WriteString(" RETURNING (xmax = 0) AS inserted")
	return sb.String(), args
}

func (p *Postgres) RunDDL(ctx context.Context, statements []string) error {
	for _, stmt := range statements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return &StorageError{Op: "ddl", Err: fmt.Errorf("%q: %w", stmt, err)}
		}
	}
	return nil
}

// ArrayStats aggregates a staged array column: row total, rows with a
// non-null value, and distinct elements across all arrays.
func (p *Postgres) ArrayStats(ctx context.Context, table, column string) (ArrayStats, error) {
	var s ArrayStats
	q := fmt.Sprintf(`SELECT
  (SELECT COUNT(*) FROM %[1]s),
  (SELECT COUNT(*) FROM %[1]s WHERE %[2]s IS NOT NULL),
  (SELECT COUNT(DISTINCT v) FROM %[1]s, unnest(%[2]s) AS v)`,
		QuoteIdent(table), QuoteIdent(column))
	if err := p.pool.QueryRow(ctx, q).Scan(&s.Total, &s.NonNull, &s.Unique); err != nil {
		return s, &StorageError{Table: table, Op: "array stats", Err: err}
	}
	return s, nil
}

func (p *Postgres) RowCount(ctx context.Context, table string) (int64, error) {
	var count int64
	q := "SELECT COUNT(*) FROM " + QuoteIdent(table)
	if err := p.pool.QueryRow(ctx, q).Scan(&count); err != nil {
		return 0, &StorageError{Table: table, Op: "row count", Err: err}
	}
	return count, nil
}

// DeleteMissing removes rows whose record id is not in keepIDs. Passing an
// empty keep list empties the table.
func (p *Postgres) DeleteMissing(ctx context.Context, table string, keepIDs []string) (int64, error) {
	if keepIDs == nil {
		keepIDs = []string{}
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE %s <> ALL($1)", QuoteIdent(table), mapping.RecordIDColumn)
	tag, err := p.pool.Exec(ctx, q, keepIDs)
	if err != nil {
		return 0, &StorageError{Table: table, Op: "delete missing", Err: err}
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) DropTables(ctx context.Context, tables []string) error {
	for _, t := range tables {
		q := "DROP TABLE IF EXISTS " + QuoteIdent(t) + " CASCADE"
		if _, err := p.pool.Exec(ctx, q); err != nil {
			return &StorageError{Table: t, Op: "drop table", Err: err}
		}
	}
	return nil
}

func (p *Postgres) Close(context.Context) error {
	p.pool.Close()
	return nil
}

// QuoteIdent double-quotes an SQL identifier, doubling embedded quotes.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
