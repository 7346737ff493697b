package importer

import (
	"context"
	"time"

	"github.com/gridport/gridport/internal/mapping"
	"github.com/gridport/gridport/internal/progress"
	"github.com/gridport/gridport/internal/session"
	"github.com/gridport/gridport/internal/storage"
	"github.com/gridport/gridport/internal/transform"
)

// run executes a session to its terminal state. Tables import sequentially;
// a failed table records its error and the run moves on to the next one.
func (e *Engine) run(ctx context.Context, s *session.ImportSession) {
	log := e.logger.With("session", s.ID)
	log.Info("import started", "tables", len(s.TableNames), "mode", s.Mode)

	if err := e.store.Ping(ctx); err != nil {
		s.ErrorMessage = "storage unreachable: " + err.Error()
		log.Error("import aborted", "error", err)
		e.finalize(s, session.StatusFailed)
		return
	}

	cancelled := false
	for _, name := range s.TableNames {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		res := e.importTable(ctx, s, name)
		if res.Success {
			log.Info("table imported", "table", name,
				"records", res.ProcessedRecords, "inserted", res.InsertedRecords,
				"updated", res.UpdatedRecords, "skipped", res.SkippedRecords)
		} else {
			log.Error("table import failed", "table", name, "error", res.Error)
		}
	}

	status := session.Aggregate(s.Results)
	if cancelled || ctx.Err() != nil {
		status = session.StatusCancelled
	}
	e.finalize(s, status)
	log.Info("import finished", "status", status,
		"processed", s.ProcessedRecords, "total", s.TotalRecords)
}

// importTable runs the per-table protocol: plan the columns, shape the
// target table, then stream pages until the cursor runs out. The result is
// installed in the session before any work happens so a retry replaces it
// wholesale. Cancellation is honored between pages, never inside one.
func (e *Engine) importTable(ctx context.Context, s *session.ImportSession, tableName string) *session.TableResult {
	res := &session.TableResult{TableName: tableName, Mode: s.Mode}
	s.Results[tableName] = res

	fields, err := e.source.ListFields(ctx, tableName)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	table := mapping.SanitizeIdentifier(tableName)
	plan := e.registry.PlanTable(table, fields)
	for _, f := range plan.Unsupported {
		e.logger.Warn("field type unrecognized, importing as text",
			"table", tableName, "field", f)
	}

	cols := make([]mapping.ColumnDefinition, len(plan.Columns))
	for i, pc := range plan.Columns {
		cols[i] = pc.Column
	}
	if err := e.store.EnsureTable(ctx, table, cols); err != nil {
		res.Error = err.Error()
		return res
	}
	if ddl := e.registry.AdditionalDDL(plan); len(ddl) > 0 {
		if err := e.store.RunDDL(ctx, ddl); err != nil {
			res.Error = err.Error()
			return res
		}
	}

	columns := plan.ColumnNames()
	var keepIDs []string
	cursor := ""
	for {
		if ctx.Err() != nil {
			res.Error = "cancelled"
			return res
		}
		page, err := e.source.PageRecords(ctx, tableName, cursor)
		if err != nil {
			res.Error = err.Error()
			return res
		}

		rows, skipped := transform.Page(e.registry, plan, page.Records)
		res.TotalRecords += int64(len(page.Records))
		res.SkippedRecords += int64(skipped)
		if s.Mode == storage.ModeSync {
			for _, rec := range page.Records {
				keepIDs = append(keepIDs, rec.ID)
			}
		}

		if len(rows) > 0 {
			ur, err := e.store.UpsertRows(ctx, table, columns, rows, s.Mode)
			if err != nil {
				res.Error = err.Error()
				return res
			}
			res.InsertedRecords += ur.Inserted
			res.UpdatedRecords += ur.Updated
		}
		res.ProcessedRecords += int64(len(page.Records))

		s.Recalculate()
		e.publish(s, tableName, "running")
		if err := e.sessions.Update(ctx, s); err != nil {
			e.logger.Warn("persisting progress failed", "session", s.ID, "error", err)
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	if s.Mode == storage.ModeSync {
		deleted, err := e.store.DeleteMissing(ctx, table, keepIDs)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		res.DeletedRecords = deleted
	}

	res.Success = true
	return res
}

// finalize stamps the terminal state and persists it. Persistence runs on a
// fresh context: the run context may already be cancelled, and the terminal
// state must land regardless.
func (e *Engine) finalize(s *session.ImportSession, status session.Status) {
	s.Status = status
	now := time.Now().UTC()
	s.EndTime = &now
	s.Recalculate()
	if err := e.sessions.Update(context.Background(), s); err != nil {
		e.logger.Error("persisting final session state failed", "session", s.ID, "error", err)
	}
	e.publish(s, "", string(status))
}

func (e *Engine) publish(s *session.ImportSession, table, status string) {
	e.sink.Publish(progress.Event{
		SessionID:        s.ID,
		Table:            table,
		RecordsProcessed: s.ProcessedRecords,
		TotalRecords:     s.TotalRecords,
		Status:           status,
	})
}
