//go:build integration

package integration

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/gridport/gridport/internal/importer"
	"github.com/gridport/gridport/internal/relationship"
	"github.com/gridport/gridport/internal/session"
	"github.com/gridport/gridport/internal/source"
	"github.com/gridport/gridport/internal/storage"
	"github.com/gridport/gridport/internal/verify"
)

func newEngine(t *testing.T, store *storage.Postgres, sessions *session.PostgresStore, src source.RecordSource) *importer.Engine {
	t.Helper()
	return importer.New(importer.Deps{
		Source:   src,
		Store:    store,
		Sessions: sessions,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// TestImportAnalyzeApply drives the whole pipeline against a live database:
// import both fixture tables, classify the staged columns, materialize the
// approved proposals, and verify the result.
func TestImportAnalyzeApply(t *testing.T) {
	skipIfNoPostgres(t)
	ctx := context.Background()

	store := connectStore(t)
	baseTables := []string{"tasks_tasks_tags_options", "tasks_tags_options", "tasks", "projects"}
	dropTables(t, store, baseTables...)
	t.Cleanup(func() { store.DropTables(context.Background(), baseTables) })

	sessions := sessionStore(t, store)
	gs := newGridServer(t, "e2eBase", testBase())
	engine := newEngine(t, store, sessions, newGridSource(t, gs, 10))

	id, err := engine.StartImport(ctx, "integration", []string{"Projects", "Tasks"}, storage.ModeUpsert)
	if err != nil {
		t.Fatalf("starting import: %v", err)
	}
	engine.Wait(id)

	s, err := engine.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("loading session: %v", err)
	}
	if s.Status != session.StatusCompleted {
		for name, res := range s.Results {
			t.Logf("%s: success=%v error=%s", name, res.Success, res.Error)
		}
		t.Fatalf("session status = %s, want COMPLETED", s.Status)
	}
	if s.ProcessedRecords != 32 || s.TotalRecords != 32 {
		t.Errorf("processed=%d total=%d, want 32/32", s.ProcessedRecords, s.TotalRecords)
	}
	if res := s.Results["Tasks"]; res == nil || res.InsertedRecords != 30 {
		t.Errorf("Tasks result = %+v, want 30 inserted", res)
	}

	for table, want := range map[string]int64{"projects": 2, "tasks": 30} {
		count, err := store.RowCount(ctx, table)
		if err != nil {
			t.Fatalf("counting %s: %v", table, err)
		}
		if count != want {
			t.Errorf("%s row count = %d, want %d", table, count, want)
		}
	}

	analysis, err := engine.AnalyzeRelationships(ctx, id)
	if err != nil {
		t.Fatalf("analyzing relationships: %v", err)
	}
	if len(analysis.Unresolved) != 0 {
		t.Errorf("unresolved columns = %+v, want none", analysis.Unresolved)
	}
	if len(analysis.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(analysis.Candidates))
	}
	byColumn := make(map[string]relationship.Candidate, len(analysis.Candidates))
	for _, c := range analysis.Candidates {
		byColumn[c.SourceColumn] = c
	}

	project, ok := byColumn["project"]
	if !ok {
		t.Fatal("no candidate for tasks.project")
	}
	if project.Cardinality != relationship.ManyToOne {
		t.Errorf("project cardinality = %s, want many-to-one", project.Cardinality)
	}
	if project.TargetTable != "projects" || project.CreateTarget {
		t.Errorf("project target = %q create=%v, want the linked table as-is", project.TargetTable, project.CreateTarget)
	}
	if project.NonNullRecords != 30 || project.UniqueValues != 2 {
		t.Errorf("project stats = %d non-null, %d unique, want 30/2", project.NonNullRecords, project.UniqueValues)
	}

	tags, ok := byColumn["tags"]
	if !ok {
		t.Fatal("no candidate for tasks.tags")
	}
	if tags.Cardinality != relationship.ManyToMany {
		t.Errorf("tags cardinality = %s, want many-to-many", tags.Cardinality)
	}
	if tags.TargetTable != "tasks_tags_options" || !tags.CreateTarget {
		t.Errorf("tags target = %q create=%v, want a generated options table", tags.TargetTable, tags.CreateTarget)
	}
	if tags.UniqueValues != 4 {
		t.Errorf("tags unique values = %d, want 4", tags.UniqueValues)
	}

	proposals, err := engine.ApplyApprovedRelationships(ctx, id, []string{project.ID, tags.ID})
	if err != nil {
		t.Fatalf("applying relationships: %v", err)
	}
	if len(proposals) != 2 {
		t.Fatalf("got %d proposals, want 2", len(proposals))
	}
	var junction, fk *relationship.Proposal
	for i := range proposals {
		switch proposals[i].Kind {
		case relationship.KindJunction:
			junction = &proposals[i]
		case relationship.KindForeignKey:
			fk = &proposals[i]
		}
	}
	if junction == nil || fk == nil {
		t.Fatalf("proposals = %+v, want one junction and one foreign key", proposals)
	}
	if !junction.IsCreated || !fk.IsCreated {
		t.Errorf("created flags junction=%v fk=%v, want both materialized", junction.IsCreated, fk.IsCreated)
	}
	if fk.FKTable != "tasks" || fk.FKColumn != "project_id" || fk.RefTable != "projects" {
		t.Errorf("foreign key = %s.%s -> %s, want tasks.project_id -> projects", fk.FKTable, fk.FKColumn, fk.RefTable)
	}
	if junction.JunctionTable != "tasks_tasks_tags_options" {
		t.Errorf("junction table = %q, want tasks_tasks_tags_options", junction.JunctionTable)
	}

	optCount, err := store.RowCount(ctx, "tasks_tags_options")
	if err != nil {
		t.Fatalf("counting options table: %v", err)
	}
	if optCount != 4 {
		t.Errorf("options rows = %d, want one per distinct tag", optCount)
	}
	jCount, err := store.RowCount(ctx, junction.JunctionTable)
	if err != nil {
		t.Fatalf("counting junction table: %v", err)
	}
	if jCount != 30 {
		t.Errorf("junction rows = %d, want one per staged tag", jCount)
	}

	// Every third task was staged against the second project.
	var linked int64
	err = store.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM tasks WHERE project_id = 'recP2'`).Scan(&linked)
	if err != nil {
		t.Fatalf("querying backfilled keys: %v", err)
	}
	if linked != 10 {
		t.Errorf("tasks keyed to recP2 = %d, want 10", linked)
	}

	v := &verify.Verifier{Store: store}
	result, err := v.VerifyRowCounts(ctx, s)
	if err != nil {
		t.Fatalf("verifying row counts: %v", err)
	}
	if result.Status != "PASS" {
		t.Errorf("verification = %s, want PASS", result.Status)
	}

	// Re-applying reuses the persisted proposals and leaves the data alone.
	again, err := engine.ApplyApprovedRelationships(ctx, id, nil)
	if err != nil {
		t.Fatalf("re-applying relationships: %v", err)
	}
	if len(again) != 2 {
		t.Fatalf("re-apply returned %d proposals, want 2", len(again))
	}
	knownIDs := map[string]bool{junction.ID: true, fk.ID: true}
	for _, p := range again {
		if !knownIDs[p.ID] {
			t.Errorf("re-apply minted new proposal %s", p.ID)
		}
		if !p.IsCreated {
			t.Errorf("proposal %s lost its created flag on re-apply", p.ID)
		}
	}
	jCount, _ = store.RowCount(ctx, junction.JunctionTable)
	if jCount != 30 {
		t.Errorf("junction rows after re-apply = %d, want 30", jCount)
	}
}

// TestRetryFailedTable breaks one table's record pages, imports, then clears
// the fault and retries just that table.
func TestRetryFailedTable(t *testing.T) {
	skipIfNoPostgres(t)
	ctx := context.Background()

	store := connectStore(t)
	baseTables := []string{"tasks", "projects"}
	dropTables(t, store, baseTables...)
	t.Cleanup(func() { store.DropTables(context.Background(), baseTables) })

	sessions := sessionStore(t, store)
	gs := newGridServer(t, "retryBase", testBase())
	gs.SetFail("Tasks", true)
	engine := newEngine(t, store, sessions, newGridSource(t, gs, 10))

	id, err := engine.StartImport(ctx, "integration", []string{"Projects", "Tasks"}, storage.ModeUpsert)
	if err != nil {
		t.Fatalf("starting import: %v", err)
	}
	engine.Wait(id)

	s, err := engine.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("loading session: %v", err)
	}
	if s.Status != session.StatusPartialFailed {
		t.Fatalf("session status = %s, want PARTIAL_FAILED", s.Status)
	}
	res := s.Results["Tasks"]
	if res == nil || res.Success {
		t.Fatalf("Tasks result = %+v, want a recorded failure", res)
	}
	if res.Error == "" {
		t.Error("failed table carries no error message")
	}
	if proj := s.Results["Projects"]; proj == nil || !proj.Success {
		t.Fatalf("Projects result = %+v, want the healthy table imported", proj)
	}

	gs.SetFail("Tasks", false)
	retried, err := engine.RetryTable(ctx, id, "Tasks")
	if err != nil {
		t.Fatalf("retrying table: %v", err)
	}
	if !retried.Success || retried.ProcessedRecords != 30 {
		t.Fatalf("retry result = %+v, want 30 records imported", retried)
	}

	s, err = engine.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("reloading session: %v", err)
	}
	if s.Status != session.StatusCompleted {
		t.Errorf("session status after retry = %s, want COMPLETED", s.Status)
	}
	count, err := store.RowCount(ctx, "tasks")
	if err != nil {
		t.Fatalf("counting tasks: %v", err)
	}
	if count != 30 {
		t.Errorf("tasks row count = %d, want 30", count)
	}

	// Retrying a table the session never selected is rejected outright.
	if _, err := engine.RetryTable(ctx, id, "Unknown"); err == nil {
		t.Error("retrying an unselected table succeeded, want error")
	}
}
