// Package review implements the interactive approval screen for
// relationship candidates.
package review

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gridport/gridport/internal/relationship"
)

// Result is returned when the user confirms the review. Candidates carry
// any approval and cardinality edits made on screen, in display order.
type Result struct {
	Candidates []relationship.Candidate
}

// cardinalityOrder is the cycle order for the c key. This screen is the
// only place one-to-one can be assigned; the classifier never emits it.
var cardinalityOrder = []relationship.Cardinality{
	relationship.OneToMany,
	relationship.ManyToOne,
	relationship.ManyToMany,
	relationship.OneToOne,
}

// candidateEntry represents one candidate row in the reviewer.
type candidateEntry struct {
	candidate relationship.Candidate
	visible   bool // false when filtered out by search
}

// Model is the bubbletea model for reviewing relationship candidates.
type Model struct {
	entries   []candidateEntry
	cursor    int
	filter    textinput.Model
	filtering bool // true when the filter bar is active

	done      bool
	cancelled bool
	width     int
	height    int

	// precomputed visible indexes for fast cursor navigation
	visibleIdxs []int
}

// NewModel creates a reviewer over the candidates of one analysis pass.
func NewModel(candidates []relationship.Candidate) Model {
	entries := make([]candidateEntry, len(candidates))
	for i, c := range candidates {
		entries[i] = candidateEntry{candidate: c, visible: true}
	}

	filter := textinput.New()
	filter.Placeholder = "table or column"
	filter.CharLimit = 64

	m := Model{
		entries: entries,
		filter:  filter,
		width:   100,
		height:  24,
	}
	m.recomputeVisible()
	return m
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilter(msg)
		}
		return m.updateNormal(msg)
	}
	return m, nil
}

func (m Model) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.cancelled = true
		m.done = true
		return m, tea.Quit

	case "up", "k":
		m.moveCursor(-1)

	case "down", "j":
		m.moveCursor(1)

	case "home":
		if len(m.visibleIdxs) > 0 {
			m.cursor = 0
		}

	case "end":
		if len(m.visibleIdxs) > 0 {
			m.cursor = len(m.visibleIdxs) - 1
		}

	case " ":
		m.toggleCurrent()

	case "a":
		m.approveAll()

	case "n":
		m.approveNone()

	case "c":
		m.cycleCardinality()

	case "/":
		m.filtering = true
		m.filter.SetValue("")
		m.applyFilter()
		return m, m.filter.Focus()

	case "enter":
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.filtering = false
		m.filter.SetValue("")
		m.filter.Blur()
		m.applyFilter()
		return m, nil

	case "enter":
		m.filtering = false
		m.filter.Blur()
		// Keep the filter applied
		return m, nil
	}

	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.applyFilter()
	return m, cmd
}

func (m Model) View() string {
	var b strings.Builder

	title := titleStyle.Render("Review Relationship Candidates")
	b.WriteString(title + "\n\n")

	// Filter bar
	if m.filtering {
		b.WriteString(highlightStyle.Render("  Filter: ") + m.filter.View() + "\n\n")
	} else if m.filter.Value() != "" {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  Filter: %s (/ to change, esc in filter to clear)", m.filter.Value())) + "\n\n")
	}

	// Column headers
	header := fmt.Sprintf("  %-3s %-34s %-20s %-14s %10s", "", "Link field", "Linked table", "Cardinality", "Confidence")
	b.WriteString(dimStyle.Render(header) + "\n")
	b.WriteString(dimStyle.Render("  "+strings.Repeat("─", min(m.width-4, 86))) + "\n")

	// Calculate visible window
	listHeight := m.height - 12 // Reserve space for header, footer, summary
	if listHeight < 5 {
		listHeight = 5
	}

	start := 0
	if m.cursor >= listHeight {
		start = m.cursor - listHeight + 1
	}

	end := start + listHeight
	if end > len(m.visibleIdxs) {
		end = len(m.visibleIdxs)
	}

	if len(m.visibleIdxs) == 0 {
		b.WriteString(dimStyle.Render("  No candidates match the filter\n"))
	}

	for vi := start; vi < end; vi++ {
		idx := m.visibleIdxs[vi]
		c := m.entries[idx].candidate

		checkbox := "[ ]"
		if c.Approved {
			checkbox = approvedStyle.Render("[x]")
		}

		cursor := "  "
		nameStyle := lipgloss.NewStyle()
		if vi == m.cursor {
			cursor = highlightStyle.Render("> ")
			nameStyle = nameStyle.Bold(true)
		}

		link := truncate(c.SourceTable+"."+c.SourceColumn, 34)
		target := truncate(c.TargetTable, 20)

		line := fmt.Sprintf("%s%s %-34s %-20s %-14s %9.2f",
			cursor, checkbox, nameStyle.Render(link), target, c.Cardinality, c.Confidence)
		b.WriteString(line + "\n")
	}

	// Scroll indicator
	if len(m.visibleIdxs) > listHeight {
		pct := 0
		if len(m.visibleIdxs) > 1 {
			pct = m.cursor * 100 / (len(m.visibleIdxs) - 1)
		}
		b.WriteString(dimStyle.Render(fmt.Sprintf("\n  Showing %d-%d of %d (%d%%)",
			start+1, end, len(m.visibleIdxs), pct)) + "\n")
	}

	b.WriteString("\n")

	// Summary bar
	summary := fmt.Sprintf("  Approved: %d of %d candidates", m.approvedCount(), len(m.entries))
	b.WriteString(summaryStyle.Render(summary) + "\n")

	// Missing-target warnings
	var missing []relationship.Candidate
	for _, e := range m.entries {
		if e.candidate.Approved && e.candidate.CreateTarget {
			missing = append(missing, e.candidate)
		}
	}
	if len(missing) > 0 {
		shown := missing
		if len(shown) > 3 {
			shown = shown[:3]
		}
		for _, c := range shown {
			b.WriteString(warnStyle.Render(fmt.Sprintf(
				"  ⚠ %s is not imported; applying will create a minimal table", c.TargetTable)) + "\n")
		}
		if len(missing) > 3 {
			b.WriteString(warnStyle.Render(fmt.Sprintf(
				"  ⚠ ...and %d more missing linked tables", len(missing)-3)) + "\n")
		}
	}

	// Keybindings help
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  space approve • a all • n none • c cardinality • / filter • enter confirm • q quit") + "\n")

	return b.String()
}

// Result returns the reviewed candidates, or nil if cancelled.
func (m Model) Result() *Result {
	if m.cancelled {
		return nil
	}
	out := make([]relationship.Candidate, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.candidate
	}
	return &Result{Candidates: out}
}

// Done returns true if the model finished.
func (m Model) Done() bool {
	return m.done
}

// Cancelled returns true if the user cancelled.
func (m Model) Cancelled() bool {
	return m.cancelled
}

// ApprovedIDs returns the IDs of approved candidates in display order.
func (m Model) ApprovedIDs() []string {
	var ids []string
	for _, e := range m.entries {
		if e.candidate.Approved {
			ids = append(ids, e.candidate.ID)
		}
	}
	return ids
}

// --- internal helpers ---

func (m *Model) moveCursor(delta int) {
	if len(m.visibleIdxs) == 0 {
		return
	}
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= len(m.visibleIdxs) {
		m.cursor = len(m.visibleIdxs) - 1
	}
}

func (m *Model) toggleCurrent() {
	if m.cursor < 0 || m.cursor >= len(m.visibleIdxs) {
		return
	}
	idx := m.visibleIdxs[m.cursor]
	m.entries[idx].candidate.Approved = !m.entries[idx].candidate.Approved
}

func (m *Model) approveAll() {
	for _, vi := range m.visibleIdxs {
		m.entries[vi].candidate.Approved = true
	}
}

func (m *Model) approveNone() {
	for _, vi := range m.visibleIdxs {
		m.entries[vi].candidate.Approved = false
	}
}

func (m *Model) cycleCardinality() {
	if m.cursor < 0 || m.cursor >= len(m.visibleIdxs) {
		return
	}
	idx := m.visibleIdxs[m.cursor]
	cur := m.entries[idx].candidate.Cardinality

	next := cardinalityOrder[0]
	for i, card := range cardinalityOrder {
		if card == cur {
			next = cardinalityOrder[(i+1)%len(cardinalityOrder)]
			break
		}
	}
	m.entries[idx].candidate.Cardinality = next
}

func (m *Model) applyFilter() {
	lower := strings.ToLower(m.filter.Value())
	for i := range m.entries {
		if lower == "" {
			m.entries[i].visible = true
		} else {
			c := m.entries[i].candidate
			hay := strings.ToLower(c.SourceTable + "." + c.SourceColumn + " " + c.TargetTable)
			m.entries[i].visible = strings.Contains(hay, lower)
		}
	}
	m.recomputeVisible()
	if m.cursor >= len(m.visibleIdxs) {
		m.cursor = max(0, len(m.visibleIdxs)-1)
	}
}

func (m *Model) recomputeVisible() {
	m.visibleIdxs = m.visibleIdxs[:0]
	for i, e := range m.entries {
		if e.visible {
			m.visibleIdxs = append(m.visibleIdxs, i)
		}
	}
}

func (m *Model) approvedCount() int {
	n := 0
	for _, e := range m.entries {
		if e.candidate.Approved {
			n++
		}
	}
	return n
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "…"
}

// styles for the reviewer
var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).BorderStyle(lipgloss.DoubleBorder()).BorderBottom(true).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	approvedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	summaryStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)
