package relationship

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gridport/gridport/internal/mapping"
	"github.com/gridport/gridport/internal/source"
	"github.com/gridport/gridport/internal/storage"
)

// Analyzer scans the staged link columns of imported tables and classifies
// each into a relationship candidate using array statistics from storage.
type Analyzer struct {
	source     source.RecordSource
	store      storage.Store
	registry   *mapping.Registry
	thresholds Thresholds
	logger     *slog.Logger
}

// NewAnalyzer wires an analyzer over the given source, store, and registry.
func NewAnalyzer(src source.RecordSource, st storage.Store, reg *mapping.Registry, th Thresholds, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		source:     src,
		store:      st,
		registry:   reg,
		thresholds: th,
		logger:     logger,
	}
}

// Analyze classifies every staging column across the session's tables.
// Per-column failures are logged, recorded as unresolved, and never abort
// the pass; the error return is reserved for context cancellation.
func (a *Analyzer) Analyze(ctx context.Context, sessionID string, tableNames []string) (*Analysis, error) {
	analysis := &Analysis{SessionID: sessionID}

	for _, name := range tableNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		table := mapping.SanitizeIdentifier(name)
		fields, err := a.source.ListFields(ctx, name)
		if err != nil {
			a.logger.Warn("skipping table, field listing failed",
				"table", name, "error", err)
			continue
		}

		plan := a.registry.PlanTable(table, fields)
		for _, pc := range plan.StagingColumns() {
			cand, reason := a.classifyColumn(ctx, sessionID, table, pc)
			if cand == nil {
				analysis.Unresolved = append(analysis.Unresolved, UnresolvedStaging{
					Table:  table,
					Field:  pc.Field.Name,
					Column: pc.Column.Name,
					Reason: reason,
				})
				continue
			}
			analysis.Candidates = append(analysis.Candidates, *cand)
		}
	}

	a.logger.Info("relationship analysis complete",
		"session", sessionID,
		"candidates", len(analysis.Candidates),
		"unresolved", len(analysis.Unresolved))
	return analysis, nil
}

// classifyColumn turns one staging column into a candidate, or explains why
// it could not.
func (a *Analyzer) classifyColumn(ctx context.Context, sessionID, table string, pc mapping.PlannedColumn) (*Candidate, string) {
	target, createTarget := a.targetFor(table, pc)
	if target == "" {
		a.logger.Warn("link field has no linked table declared",
			"table", table, "field", pc.Field.Name)
		return nil, "no linked table declared"
	}

	stats, err := a.store.ArrayStats(ctx, table, pc.Column.Name)
	if err != nil {
		aerr := &AnalysisError{Table: table, Field: pc.Field.Name, Err: err}
		a.logger.Warn("statistics query failed, skipping column", "error", aerr)
		return nil, aerr.Error()
	}

	card, conf, ok := Classify(stats.Total, stats.NonNull, stats.Unique, a.thresholds)
	if !ok {
		return nil, "no linked rows"
	}

	return &Candidate{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		SourceTable:    table,
		FieldName:      pc.Field.Name,
		SourceColumn:   pc.Column.Name,
		TargetTable:    target,
		CreateTarget:   createTarget,
		Cardinality:    card,
		Confidence:     conf,
		TotalRecords:   stats.Total,
		NonNullRecords: stats.NonNull,
		UniqueValues:   stats.Unique,
	}, ""
}

// targetFor resolves the table a staging column points at. Link fields name
// their target through the linkedTable option; multi-select fields target a
// generated options table that materialization creates on demand.
func (a *Analyzer) targetFor(table string, pc mapping.PlannedColumn) (string, bool) {
	if mapping.CategoryOf(pc.Field.Type) == mapping.CategorySelection {
		return OptionsTableName(table, pc.Column.Name), true
	}
	linked := pc.Field.StringOption("linkedTable", "")
	if linked == "" {
		return "", false
	}
	return mapping.SanitizeIdentifier(linked), false
}

// OptionsTableName derives the generated options table for a multi-select
// column, keeping the _options suffix when truncating to the identifier
// length limit.
func OptionsTableName(table, column string) string {
	const suffix = "_options"
	base := fmt.Sprintf("%s_%s", table, column)
	if len(base)+len(suffix) > 63 {
		base = base[:63-len(suffix)]
	}
	return base + suffix
}
