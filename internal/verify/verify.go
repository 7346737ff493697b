// Package verify performs post-import verification of a finished session
// against the target store.
package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/gridport/gridport/internal/mapping"
	"github.com/gridport/gridport/internal/session"
	"github.com/gridport/gridport/internal/storage"
)

// Result holds the outcome of post-import verification.
type Result struct {
	Status      string       `json:"status"` // PASS, FAIL, PARTIAL
	Tables      []TableCheck `json:"tables"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at"`
}

// TableCheck holds verification results for a single imported table.
type TableCheck struct {
	Name          string         `json:"name"`
	RowCountCheck *RowCountCheck `json:"row_count_check,omitempty"`
	Status        string         `json:"status"` // PASS, FAIL, SKIPPED
}

// RowCountCheck holds the result of a row count comparison.
type RowCountCheck struct {
	SourceCount int64  `json:"source_count"`
	TargetCount int64  `json:"target_count"`
	Match       bool   `json:"match"`
	Message     string `json:"message,omitempty"`
}

// Verifier compares a finished session's counters against the target store.
type Verifier struct {
	Store    storage.Store
	Callback func(table string, passed bool)
}

// VerifyRowCounts checks every table of the session. Tables whose import
// never succeeded are reported as SKIPPED; their counts carry no meaning.
func (v *Verifier) VerifyRowCounts(ctx context.Context, s *session.ImportSession) (*Result, error) {
	result := &Result{StartedAt: time.Now()}

	for _, name := range s.TableNames {
		res := s.Results[name]
		tc := TableCheck{Name: name, Status: "PASS"}
		if res == nil || !res.Success {
			tc.Status = "SKIPPED"
			result.Tables = append(result.Tables, tc)
			continue
		}

		rc, err := v.checkRowCount(ctx, res)
		if err != nil {
			return nil, err
		}
		tc.RowCountCheck = rc
		if !rc.Match {
			tc.Status = "FAIL"
		}
		v.notify(name, rc.Match)
		result.Tables = append(result.Tables, tc)
	}

	result.CompletedAt = time.Now()
	result.Status = overallStatus(result.Tables)
	return result, nil
}

// checkRowCount compares processed records against stored rows. Sync mode
// demands equality; insert and upsert leave rows from earlier imports in
// place, so the target may legitimately hold more.
func (v *Verifier) checkRowCount(ctx context.Context, res *session.TableResult) (*RowCountCheck, error) {
	table := mapping.SanitizeIdentifier(res.TableName)
	target, err := v.Store.RowCount(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("counting rows in %s: %w", table, err)
	}

	check := &RowCountCheck{
		SourceCount: res.ProcessedRecords,
		TargetCount: target,
	}
	switch res.Mode {
	case storage.ModeSync:
		check.Match = target == res.ProcessedRecords
	default:
		check.Match = target >= res.ProcessedRecords
	}

	if !check.Match {
		check.Message = fmt.Sprintf("count mismatch: source=%d, target=%d (diff=%d)",
			res.ProcessedRecords, target, res.ProcessedRecords-target)
	} else if target > res.ProcessedRecords {
		check.Message = fmt.Sprintf("target holds %d rows beyond this session's records", target-res.ProcessedRecords)
	}
	return check, nil
}

func (v *Verifier) notify(table string, passed bool) {
	if v.Callback != nil {
		v.Callback(table, passed)
	}
}

func overallStatus(tables []TableCheck) string {
	checked, failed := 0, 0
	for _, t := range tables {
		switch t.Status {
		case "FAIL":
			checked++
			failed++
		case "PASS":
			checked++
		}
	}
	if failed == 0 {
		return "PASS"
	}
	if failed == checked {
		return "FAIL"
	}
	return "PARTIAL"
}
