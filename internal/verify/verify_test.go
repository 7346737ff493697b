package verify

import (
	"context"
	"testing"

	"github.com/gridport/gridport/internal/session"
	"github.com/gridport/gridport/internal/storage"
)

func finishedSession(results map[string]*session.TableResult) *session.ImportSession {
	s := &session.ImportSession{
		ID:      "v1",
		Status:  session.StatusCompleted,
		Results: results,
	}
	for name := range results {
		s.TableNames = append(s.TableNames, name)
	}
	return s
}

func TestVerifyRowCountsPass(t *testing.T) {
	st := &storage.MockStore{
		RowCounts: map[string]int64{"projects": 10, "tasks": 30},
	}
	s := finishedSession(map[string]*session.TableResult{
		"Projects": {TableName: "Projects", Success: true, Mode: storage.ModeUpsert, ProcessedRecords: 10},
		"Tasks":    {TableName: "Tasks", Success: true, Mode: storage.ModeUpsert, ProcessedRecords: 30},
	})

	var notified []string
	v := &Verifier{Store: st, Callback: func(table string, passed bool) {
		if passed {
			notified = append(notified, table)
		}
	}}

	result, err := v.VerifyRowCounts(context.Background(), s)
	if err != nil {
		t.Fatalf("VerifyRowCounts: %v", err)
	}
	if result.Status != "PASS" {
		t.Errorf("status = %s, want PASS", result.Status)
	}
	if len(result.Tables) != 2 {
		t.Fatalf("got %d tables", len(result.Tables))
	}
	if len(notified) != 2 {
		t.Errorf("callback fired for %v", notified)
	}
}

func TestVerifyRowCountsMismatch(t *testing.T) {
	st := &storage.MockStore{
		RowCounts: map[string]int64{"projects": 7},
	}
	s := finishedSession(map[string]*session.TableResult{
		"Projects": {TableName: "Projects", Success: true, Mode: storage.ModeUpsert, ProcessedRecords: 10},
	})

	v := &Verifier{Store: st}
	result, err := v.VerifyRowCounts(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != "FAIL" {
		t.Errorf("status = %s, want FAIL", result.Status)
	}
	rc := result.Tables[0].RowCountCheck
	if rc.Match || rc.Message == "" {
		t.Errorf("check = %+v", rc)
	}
}

func TestVerifyUpsertToleratesExtraRows(t *testing.T) {
	st := &storage.MockStore{
		RowCounts: map[string]int64{"projects": 15},
	}
	s := finishedSession(map[string]*session.TableResult{
		"Projects": {TableName: "Projects", Success: true, Mode: storage.ModeUpsert, ProcessedRecords: 10},
	})

	v := &Verifier{Store: st}
	result, err := v.VerifyRowCounts(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	rc := result.Tables[0].RowCountCheck
	if !rc.Match {
		t.Errorf("upsert should tolerate pre-existing rows: %+v", rc)
	}
	if rc.Message == "" {
		t.Error("extra rows should be mentioned")
	}
}

func TestVerifySyncDemandsExactCount(t *testing.T) {
	st := &storage.MockStore{
		RowCounts: map[string]int64{"projects": 15},
	}
	s := finishedSession(map[string]*session.TableResult{
		"Projects": {TableName: "Projects", Success: true, Mode: storage.ModeSync, ProcessedRecords: 10},
	})

	v := &Verifier{Store: st}
	result, err := v.VerifyRowCounts(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if result.Tables[0].RowCountCheck.Match {
		t.Error("sync mode must not tolerate extra rows")
	}
}

func TestVerifySkipsFailedTables(t *testing.T) {
	st := &storage.MockStore{
		RowCounts: map[string]int64{"projects": 10},
	}
	s := finishedSession(map[string]*session.TableResult{
		"Projects": {TableName: "Projects", Success: true, Mode: storage.ModeUpsert, ProcessedRecords: 10},
		"Tasks":    {TableName: "Tasks", Success: false, Error: "boom"},
	})

	v := &Verifier{Store: st}
	result, err := v.VerifyRowCounts(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != "PASS" {
		t.Errorf("skipped tables must not fail the run: %s", result.Status)
	}

	byName := map[string]TableCheck{}
	for _, tc := range result.Tables {
		byName[tc.Name] = tc
	}
	if byName["Tasks"].Status != "SKIPPED" {
		t.Errorf("tasks status = %s, want SKIPPED", byName["Tasks"].Status)
	}
	if byName["Tasks"].RowCountCheck != nil {
		t.Error("skipped table should carry no check")
	}
}
