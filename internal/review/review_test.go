package review

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gridport/gridport/internal/relationship"
)

func testCandidates() []relationship.Candidate {
	return []relationship.Candidate{
		{
			ID: "c1", SourceTable: "tasks", FieldName: "Project", SourceColumn: "project",
			TargetTable: "projects", Cardinality: relationship.ManyToOne, Confidence: 0.85,
		},
		{
			ID: "c2", SourceTable: "projects", FieldName: "Owner", SourceColumn: "owner",
			TargetTable: "people", Cardinality: relationship.ManyToOne, Confidence: 0.85,
		},
		{
			ID: "c3", SourceTable: "tasks", FieldName: "Tags", SourceColumn: "tags",
			TargetTable: "tags", Cardinality: relationship.ManyToMany, Confidence: 0.75,
			CreateTarget: true,
		},
	}
}

func TestNewModel(t *testing.T) {
	m := NewModel(testCandidates())
	if len(m.entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(m.entries))
	}
	if m.approvedCount() != 0 {
		t.Errorf("expected 0 approved initially, got %d", m.approvedCount())
	}
	if len(m.visibleIdxs) != 3 {
		t.Errorf("expected 3 visible, got %d", len(m.visibleIdxs))
	}
}

func TestNewModel_KeepsExistingApprovals(t *testing.T) {
	cands := testCandidates()
	cands[1].Approved = true
	m := NewModel(cands)
	if m.approvedCount() != 1 {
		t.Errorf("expected 1 approved, got %d", m.approvedCount())
	}
	if got := m.ApprovedIDs(); len(got) != 1 || got[0] != "c2" {
		t.Errorf("ApprovedIDs() = %v, want [c2]", got)
	}
}

func TestToggleCurrent(t *testing.T) {
	m := NewModel(testCandidates())
	m.toggleCurrent()
	if m.approvedCount() != 1 {
		t.Errorf("expected 1 approved after toggle, got %d", m.approvedCount())
	}
	m.toggleCurrent()
	if m.approvedCount() != 0 {
		t.Errorf("expected 0 approved after second toggle, got %d", m.approvedCount())
	}
}

func TestApproveAll_ApproveNone(t *testing.T) {
	m := NewModel(testCandidates())
	m.approveAll()
	if m.approvedCount() != 3 {
		t.Errorf("approveAll: expected 3, got %d", m.approvedCount())
	}
	m.approveNone()
	if m.approvedCount() != 0 {
		t.Errorf("approveNone: expected 0, got %d", m.approvedCount())
	}
}

func TestMoveCursor(t *testing.T) {
	m := NewModel(testCandidates())
	if m.cursor != 0 {
		t.Fatalf("initial cursor should be 0, got %d", m.cursor)
	}
	m.moveCursor(1)
	if m.cursor != 1 {
		t.Errorf("cursor should be 1 after down, got %d", m.cursor)
	}
	m.moveCursor(-1)
	if m.cursor != 0 {
		t.Errorf("cursor should be 0 after up, got %d", m.cursor)
	}
	// Should clamp at boundaries
	m.moveCursor(-5)
	if m.cursor != 0 {
		t.Errorf("cursor should clamp at 0, got %d", m.cursor)
	}
	m.moveCursor(100)
	if m.cursor != 2 {
		t.Errorf("cursor should clamp at 2, got %d", m.cursor)
	}
}

func TestCycleCardinality(t *testing.T) {
	m := NewModel(testCandidates())

	// First entry starts at many-to-one
	m.cycleCardinality()
	if got := m.entries[0].candidate.Cardinality; got != relationship.ManyToMany {
		t.Errorf("after first cycle: %q, want %q", got, relationship.ManyToMany)
	}
	m.cycleCardinality()
	if got := m.entries[0].candidate.Cardinality; got != relationship.OneToOne {
		t.Errorf("after second cycle: %q, want %q", got, relationship.OneToOne)
	}
	m.cycleCardinality()
	if got := m.entries[0].candidate.Cardinality; got != relationship.OneToMany {
		t.Errorf("after third cycle: %q, want %q", got, relationship.OneToMany)
	}
	m.cycleCardinality()
	if got := m.entries[0].candidate.Cardinality; got != relationship.ManyToOne {
		t.Errorf("after full loop: %q, want %q", got, relationship.ManyToOne)
	}
}

func TestApplyFilter(t *testing.T) {
	m := NewModel(testCandidates())
	m.filter.SetValue("tasks")
	m.applyFilter()
	if len(m.visibleIdxs) != 2 {
		t.Errorf("expected 2 visible with 'tasks' filter, got %d", len(m.visibleIdxs))
	}

	// Clear filter
	m.filter.SetValue("")
	m.applyFilter()
	if len(m.visibleIdxs) != 3 {
		t.Errorf("expected 3 visible with empty filter, got %d", len(m.visibleIdxs))
	}
}

func TestApplyFilter_MatchesTarget(t *testing.T) {
	m := NewModel(testCandidates())
	m.filter.SetValue("PEOPLE")
	m.applyFilter()
	if len(m.visibleIdxs) != 1 {
		t.Fatalf("expected 1 visible with 'PEOPLE' filter, got %d", len(m.visibleIdxs))
	}
	if got := m.entries[m.visibleIdxs[0]].candidate.ID; got != "c2" {
		t.Errorf("filtered candidate = %q, want c2", got)
	}
}

func TestApproveAllRespectsFilter(t *testing.T) {
	m := NewModel(testCandidates())
	m.filter.SetValue("tasks")
	m.applyFilter()
	m.approveAll()
	// Only the two tasks candidates are visible, so only they are approved
	if m.approvedCount() != 2 {
		t.Errorf("expected 2 approved, got %d", m.approvedCount())
	}
	for _, e := range m.entries {
		if e.candidate.SourceTable == "projects" && e.candidate.Approved {
			t.Error("filtered-out candidate should not be approved")
		}
	}
}

func TestViewRenders(t *testing.T) {
	m := NewModel(testCandidates())
	m.width = 100
	m.height = 24
	v := m.View()
	if !strings.Contains(v, "Review Relationship Candidates") {
		t.Error("view should contain title")
	}
	if !strings.Contains(v, "tasks.project") {
		t.Error("view should contain the link column")
	}
	if !strings.Contains(v, "Approved: 0 of 3 candidates") {
		t.Error("view should show 0 approved")
	}
}

func TestViewWarnsOnMissingTarget(t *testing.T) {
	cands := testCandidates()
	cands[2].Approved = true // the tags candidate with CreateTarget
	m := NewModel(cands)
	v := m.View()
	if !strings.Contains(v, "tags is not imported") {
		t.Error("view should warn about the missing linked table")
	}
}

func TestUpdateEnterConfirms(t *testing.T) {
	cands := testCandidates()
	cands[0].Approved = true
	m := NewModel(cands)
	msg := tea.KeyMsg{Type: tea.KeyEnter}
	result, _ := m.updateNormal(msg)
	rm := result.(Model)
	if !rm.Done() {
		t.Error("enter should finish")
	}
	if rm.Cancelled() {
		t.Error("should not be cancelled")
	}
	r := rm.Result()
	if r == nil {
		t.Fatal("result should not be nil")
	}
	if len(r.Candidates) != 3 {
		t.Errorf("expected 3 candidates in result, got %d", len(r.Candidates))
	}
	if !r.Candidates[0].Approved {
		t.Error("approval should survive into the result")
	}
}

func TestResultNilWhenCancelled(t *testing.T) {
	m := NewModel(testCandidates())
	msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
	result, _ := m.updateNormal(msg)
	rm := result.(Model)
	if !rm.Cancelled() {
		t.Error("q should cancel")
	}
	if rm.Result() != nil {
		t.Error("result should be nil when cancelled")
	}
}

func TestResultCarriesCardinalityEdits(t *testing.T) {
	m := NewModel(testCandidates())
	m.cycleCardinality() // many-to-one -> many-to-many on the first entry
	msg := tea.KeyMsg{Type: tea.KeyEnter}
	result, _ := m.updateNormal(msg)
	rm := result.(Model)
	r := rm.Result()
	if r == nil {
		t.Fatal("result should not be nil")
	}
	if got := r.Candidates[0].Cardinality; got != relationship.ManyToMany {
		t.Errorf("cardinality edit lost: %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short string: got %q", got)
	}
	got := truncate("a_very_long_field_name", 10)
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncated string should end with ellipsis, got %q", got)
	}
	if !strings.HasPrefix(got, "a_very_lo") {
		t.Errorf("truncated string should start with prefix, got %q", got)
	}
}
