package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gridport/gridport/internal/mapping"
	"github.com/gridport/gridport/internal/relationship"
	"github.com/gridport/gridport/internal/session"
	"github.com/gridport/gridport/internal/verify"
)

// ImportReport is the final report for one import session.
type ImportReport struct {
	Version      string                           `json:"version"`
	GeneratedAt  time.Time                        `json:"generated_at"`
	Source       SourceSummary                    `json:"source"`
	Session      SessionSummary                   `json:"session"`
	Tables       []session.TableResult            `json:"tables"`
	Coverage     *mapping.Coverage                `json:"coverage,omitempty"`
	Candidates   []relationship.Candidate         `json:"candidates,omitempty"`
	Unresolved   []relationship.UnresolvedStaging `json:"unresolved,omitempty"`
	Proposals    []relationship.Proposal          `json:"proposals,omitempty"`
	Verification *verify.Result                   `json:"verification,omitempty"`
	NextSteps    []string                         `json:"next_steps"`
}

// SourceSummary describes the imported base.
type SourceSummary struct {
	BaseID string `json:"base_id"`
	Tables int    `json:"tables"`
}

// SessionSummary describes the session's execution.
type SessionSummary struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	Mode             string     `json:"mode"`
	TotalRecords     int64      `json:"total_records"`
	ProcessedRecords int64      `json:"processed_records"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
}

// Generate assembles a report from a finished session and whatever
// relationship and verification data exists for it. Nil inputs leave their
// sections out.
func Generate(
	baseID string,
	s *session.ImportSession,
	coverage *mapping.Coverage,
	analysis *relationship.Analysis,
	proposals []relationship.Proposal,
	verification *verify.Result,
) *ImportReport {
	r := &ImportReport{
		Version:     "1",
		GeneratedAt: time.Now(),
		Source: SourceSummary{
			BaseID: baseID,
			Tables: s.TotalTables,
		},
		Session: SessionSummary{
			ID:               s.ID,
			Status:           string(s.Status),
			Mode:             string(s.Mode),
			TotalRecords:     s.TotalRecords,
			ProcessedRecords: s.ProcessedRecords,
			StartTime:        s.StartTime,
			EndTime:          s.EndTime,
		},
		Coverage:     coverage,
		Proposals:    proposals,
		Verification: verification,
	}

	for _, name := range s.TableNames {
		if res := s.Results[name]; res != nil {
			r.Tables = append(r.Tables, *res)
		}
	}
	if analysis != nil {
		r.Candidates = analysis.Candidates
		r.Unresolved = analysis.Unresolved
	}

	r.NextSteps = nextSteps(s, r.Candidates, proposals, verification)
	return r
}

func nextSteps(s *session.ImportSession, candidates []relationship.Candidate, proposals []relationship.Proposal, verification *verify.Result) []string {
	var steps []string

	for _, name := range s.TableNames {
		if res := s.Results[name]; res != nil && !res.Success {
			steps = append(steps, fmt.Sprintf("Retry the failed import of %q with 'gridport retry --table %s'", name, name))
		}
	}

	approved := 0
	for _, c := range candidates {
		if c.Approved {
			approved++
		}
	}
	created := 0
	for _, p := range proposals {
		if p.IsCreated {
			created++
		}
	}

	switch {
	case len(candidates) == 0:
		steps = append(steps, "Run 'gridport analyze' to detect relationships in the staged link columns")
	case approved == 0:
		steps = append(steps, "Review relationship candidates with 'gridport review'")
	case created < len(proposals):
		steps = append(steps, "Apply approved relationships with 'gridport apply'")
	}

	if verification == nil {
		steps = append(steps, "Verify imported row counts with 'gridport verify'")
	}
	if len(steps) == 0 {
		steps = append(steps, "Imported schema is complete; point your application at it")
	}
	return steps
}

// WriteJSON writes the report as JSON.
func WriteJSON(report *ImportReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadJSON reads a report from a JSON file.
func ReadJSON(path string) (*ImportReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	r := &ImportReport{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}
	return r, nil
}

// WriteText writes the report as human-readable text.
func WriteText(report *ImportReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	return os.WriteFile(path, []byte(FormatText(report)), 0o644)
}

// FormatText renders the report as human-readable text.
func FormatText(report *ImportReport) string {
	var b strings.Builder

	b.WriteString("=== Gridport Import Report ===\n")
	b.WriteString(fmt.Sprintf("Generated: %s\n\n", report.GeneratedAt.Format(time.RFC3339)))

	b.WriteString("Source:\n")
	b.WriteString(fmt.Sprintf("  Base:   %s\n", report.Source.BaseID))
	b.WriteString(fmt.Sprintf("  Tables: %d\n\n", report.Source.Tables))

	b.WriteString("Session:\n")
	b.WriteString(fmt.Sprintf("  ID:      %s\n", report.Session.ID))
	b.WriteString(fmt.Sprintf("  Status:  %s\n", report.Session.Status))
	b.WriteString(fmt.Sprintf("  Mode:    %s\n", report.Session.Mode))
	b.WriteString(fmt.Sprintf("  Records: %d/%d\n", report.Session.ProcessedRecords, report.Session.TotalRecords))
	if report.Session.EndTime != nil {
		b.WriteString(fmt.Sprintf("  Took:    %s\n", report.Session.EndTime.Sub(report.Session.StartTime).Round(time.Second)))
	}
	b.WriteString("\n")

	b.WriteString("Tables:\n")
	for _, tr := range report.Tables {
		status := "OK"
		if !tr.Success {
			status = "FAILED"
		}
		b.WriteString(fmt.Sprintf("  [%s] %s: %d processed, %d inserted, %d updated, %d skipped\n",
			status, tr.TableName, tr.ProcessedRecords, tr.InsertedRecords, tr.UpdatedRecords, tr.SkippedRecords))
		if tr.Error != "" {
			b.WriteString(fmt.Sprintf("           %s\n", tr.Error))
		}
	}
	b.WriteString("\n")

	if report.Coverage != nil {
		b.WriteString(fmt.Sprintf("Field coverage: %d mapped, %d fallback (%.1f%%)\n\n",
			report.Coverage.Supported, report.Coverage.Unsupported, report.Coverage.Percentage))
	}

	if len(report.Candidates) > 0 {
		b.WriteString("Relationship candidates:\n")
		for _, c := range report.Candidates {
			mark := " "
			if c.Approved {
				mark = "*"
			}
			b.WriteString(fmt.Sprintf("  [%s] %s\n", mark, c.String()))
		}
		b.WriteString("\n")
	}
	if len(report.Unresolved) > 0 {
		b.WriteString("Unresolved staging columns:\n")
		for _, u := range report.Unresolved {
			b.WriteString(fmt.Sprintf("  %s.%s: %s\n", u.Table, u.Column, u.Reason))
		}
		b.WriteString("\n")
	}

	if len(report.Proposals) > 0 {
		b.WriteString("Schema proposals:\n")
		for _, p := range report.Proposals {
			status := "pending"
			if p.IsCreated {
				status = "created"
			}
			switch p.Kind {
			case relationship.KindJunction:
				b.WriteString(fmt.Sprintf("  junction %s (%s)\n", p.JunctionTable, status))
			default:
				b.WriteString(fmt.Sprintf("  foreign key %s.%s -> %s (%s)\n", p.FKTable, p.FKColumn, p.RefTable, status))
			}
		}
		b.WriteString("\n")
	}

	if report.Verification != nil {
		b.WriteString(fmt.Sprintf("Verification: %s\n", report.Verification.Status))
		for _, tc := range report.Verification.Tables {
			b.WriteString(fmt.Sprintf("  %s: %s\n", tc.Name, tc.Status))
		}
		b.WriteString("\n")
	}

	b.WriteString("Next Steps:\n")
	for i, s := range report.NextSteps {
		b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, s))
	}

	return b.String()
}
