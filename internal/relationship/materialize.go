package relationship

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gridport/gridport/internal/mapping"
	"github.com/gridport/gridport/internal/storage"
)

// Materializer turns proposals into real structure: junction tables, foreign
// key columns, and their backfills from the staging arrays. Every statement
// it emits is idempotent, so a half-applied proposal can be re-run.
type Materializer struct {
	store  storage.Store
	logger *slog.Logger
}

// NewMaterializer wires a materializer over the given store.
func NewMaterializer(st storage.Store, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{store: st, logger: logger}
}

// Apply materializes one proposal. Applying an already-created proposal is a
// no-op. On success the proposal's IsCreated flag is set; the caller owns
// persisting it.
func (m *Materializer) Apply(ctx context.Context, p *Proposal) error {
	if p.IsCreated {
		m.logger.Debug("proposal already materialized", "proposal", p.ID)
		return nil
	}
	if err := m.store.RunDDL(ctx, statements(p)); err != nil {
		return fmt.Errorf("materializing proposal %s: %w", p.ID, err)
	}
	p.IsCreated = true
	m.logger.Info("materialized proposal",
		"proposal", p.ID, "kind", p.Kind, "table", owningTable(*p))
	return nil
}

// DropStaging removes a proposal's staging column. Only permitted once the
// proposal has been materialized; the raw arrays are the sole backfill
// source until then.
func (m *Materializer) DropStaging(ctx context.Context, p *Proposal) error {
	if !p.IsCreated {
		return fmt.Errorf("proposal %s not materialized, staging column retained", p.ID)
	}
	stmt := fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s",
		storage.QuoteIdent(p.SourceTable), storage.QuoteIdent(p.SourceColumn))
	return m.store.RunDDL(ctx, []string{stmt})
}

// statements builds the ordered SQL for one proposal.
func statements(p *Proposal) []string {
	var stmts []string
	if p.CreateTarget {
		stmts = append(stmts, optionsTableStatements(p)...)
	}
	switch p.Kind {
	case KindJunction:
		stmts = append(stmts, junctionStatements(p)...)
	case KindForeignKey:
		stmts = append(stmts, foreignKeyStatements(p)...)
	}
	return stmts
}

// optionsTableStatements creates the generated target table for a
// multi-select column and seeds it with the distinct staged values.
func optionsTableStatements(p *Proposal) []string {
	target := storage.QuoteIdent(p.TargetTable)
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s TEXT NOT NULL PRIMARY KEY)",
			target, mapping.RecordIDColumn),
		fmt.Sprintf("INSERT INTO %s (%s) SELECT DISTINCT unnest(%s) FROM %s WHERE %s IS NOT NULL ON CONFLICT (%s) DO NOTHING",
			target, mapping.RecordIDColumn,
			storage.QuoteIdent(p.SourceColumn), storage.QuoteIdent(p.SourceTable),
			storage.QuoteIdent(p.SourceColumn), mapping.RecordIDColumn),
	}
}

func junctionStatements(p *Proposal) []string {
	junction := storage.QuoteIdent(p.JunctionTable)
	srcCol := storage.QuoteIdent(p.SourceSideCol)
	dstCol := storage.QuoteIdent(p.TargetSideCol)
	staging := storage.QuoteIdent(p.SourceColumn)

	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s TEXT NOT NULL, %s TEXT NOT NULL, PRIMARY KEY (%s, %s))",
			junction, srcCol, dstCol, srcCol, dstCol),
		constraintStatement(p.JunctionTable, p.SourceSideCol, p.SourceTable),
		constraintStatement(p.JunctionTable, p.TargetSideCol, p.TargetTable),
		fmt.Sprintf("INSERT INTO %s (%s, %s) SELECT %s, unnest(%s) FROM %s WHERE %s IS NOT NULL ON CONFLICT DO NOTHING",
			junction, srcCol, dstCol,
			mapping.RecordIDColumn, staging, storage.QuoteIdent(p.SourceTable), staging),
	}
}

func foreignKeyStatements(p *Proposal) []string {
	fkTable := storage.QuoteIdent(p.FKTable)
	fkCol := storage.QuoteIdent(p.FKColumn)
	staging := storage.QuoteIdent(p.SourceColumn)

	stmts := []string{
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s TEXT", fkTable, fkCol),
	}

	if p.FKTable == p.SourceTable {
		// Key on the linking side: first staged id wins.
		stmts = append(stmts, fmt.Sprintf(
			"UPDATE %s SET %s = %s[1] WHERE %s IS NOT NULL AND %s IS NULL",
			fkTable, fkCol, staging, staging, fkCol))
	} else {
		// Key on the linked side: invert the staged arrays so each target
		// row points back at the source row that listed it.
		stmts = append(stmts, fmt.Sprintf(
			"UPDATE %s SET %s = links.src FROM (SELECT %s AS src, unnest(%s) AS dst FROM %s WHERE %s IS NOT NULL) AS links WHERE %s.%s = links.dst AND %s.%s IS NULL",
			fkTable, fkCol,
			mapping.RecordIDColumn, staging, storage.QuoteIdent(p.SourceTable), staging,
			fkTable, mapping.RecordIDColumn, fkTable, fkCol))
	}

	stmts = append(stmts, constraintStatement(p.FKTable, p.FKColumn, p.RefTable))

	if p.Unique {
		idx := "uq_" + p.FKTable + "_" + p.FKColumn
		if len(idx) > 63 {
			idx = idx[:63]
		}
		stmts = append(stmts, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
			storage.QuoteIdent(idx), fkTable, fkCol))
	}
	return stmts
}

// constraintStatement adds a foreign key guarded against re-runs. NOT VALID
// skips revalidating backfilled rows; source data may carry dangling links.
func constraintStatement(table, column, refTable string) string {
	name := "fk_" + table + "_" + column
	if len(name) > 63 {
		name = name[:63]
	}
	return fmt.Sprintf(
		"DO $$ BEGIN ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) NOT VALID; EXCEPTION WHEN duplicate_object THEN NULL; END $$",
		storage.QuoteIdent(table), storage.QuoteIdent(name), storage.QuoteIdent(column),
		storage.QuoteIdent(refTable), mapping.RecordIDColumn)
}
