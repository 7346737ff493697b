package relationship

import (
	"sort"

	"github.com/google/uuid"
)

// ProposalKind distinguishes the two structures a candidate can turn into.
type ProposalKind string

const (
	KindJunction   ProposalKind = "junction"
	KindForeignKey ProposalKind = "foreign_key"
)

// Proposal is the structural change derived from one approved candidate.
// SourceTable/SourceColumn/TargetTable keep the candidate's orientation:
// the staging column on SourceTable holds TargetTable record ids (raw option
// values when CreateTarget is set). The FK fields describe where the foreign
// key column lands; the junction fields describe the intermediate table.
type Proposal struct {
	ID          string       `yaml:"id" json:"id"`
	CandidateID string       `yaml:"candidate_id" json:"candidateId"`
	SessionID   string       `yaml:"session_id" json:"sessionId"`
	Kind        ProposalKind `yaml:"kind" json:"kind"`

	SourceTable  string `yaml:"source_table" json:"sourceTable"`
	SourceColumn string `yaml:"source_column" json:"sourceColumn"`
	TargetTable  string `yaml:"target_table" json:"targetTable"`
	CreateTarget bool   `yaml:"create_target,omitempty" json:"createTarget,omitempty"`

	FKTable  string `yaml:"fk_table,omitempty" json:"fkTable,omitempty"`
	FKColumn string `yaml:"fk_column,omitempty" json:"fkColumn,omitempty"`
	RefTable string `yaml:"ref_table,omitempty" json:"refTable,omitempty"`
	Unique   bool   `yaml:"unique,omitempty" json:"unique,omitempty"`

	JunctionTable string `yaml:"junction_table,omitempty" json:"junctionTable,omitempty"`
	SourceSideCol string `yaml:"source_side_col,omitempty" json:"sourceSideCol,omitempty"`
	TargetSideCol string `yaml:"target_side_col,omitempty" json:"targetSideCol,omitempty"`

	IsCreated bool `yaml:"is_created" json:"isCreated"`
}

// BuildProposals derives proposals from the approved subset of candidates.
// Mirrored many-to-many candidates (each side of a two-way link) collapse to
// a single junction proposal; the first approved side wins. Unapproved
// candidates are ignored.
func BuildProposals(sessionID string, candidates []Candidate) []Proposal {
	var out []Proposal
	seenJunctions := map[string]bool{}

	for _, c := range candidates {
		if !c.Approved {
			continue
		}
		p := Proposal{
			ID:           uuid.NewString(),
			CandidateID:  c.ID,
			SessionID:    sessionID,
			SourceTable:  c.SourceTable,
			SourceColumn: c.SourceColumn,
			TargetTable:  c.TargetTable,
			CreateTarget: c.CreateTarget,
		}

		switch c.Cardinality {
		case ManyToMany:
			junction := JunctionTableName(c.SourceTable, c.TargetTable)
			if seenJunctions[junction] {
				continue
			}
			seenJunctions[junction] = true
			p.Kind = KindJunction
			p.JunctionTable = junction
			p.SourceSideCol, p.TargetSideCol = junctionColumns(c.SourceTable, c.TargetTable)

		case OneToMany:
			// The target rows each belong to one source row, so the key
			// lands on the target and points back at the source.
			p.Kind = KindForeignKey
			p.FKTable = c.TargetTable
			p.FKColumn = ForeignKeyColumn(c.SourceTable)
			p.RefTable = c.SourceTable

		case ManyToOne, OneToOne:
			p.Kind = KindForeignKey
			p.FKTable = c.SourceTable
			p.FKColumn = ForeignKeyColumn(c.SourceColumn)
			p.RefTable = c.TargetTable
			p.Unique = c.Cardinality == OneToOne

		default:
			continue
		}

		out = append(out, p)
	}
	return out
}

// JunctionTableName names the junction for a table pair: the two names
// sorted and joined, so both orientations of a link agree on it.
func JunctionTableName(a, b string) string {
	if b < a {
		a, b = b, a
	}
	name := a + "_" + b
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

// ForeignKeyColumn appends _id to a base name, keeping the suffix when
// truncating to the identifier length limit.
func ForeignKeyColumn(base string) string {
	const suffix = "_id"
	if len(base)+len(suffix) > 63 {
		base = base[:63-len(suffix)]
	}
	return base + suffix
}

// junctionColumns names the two key columns of a junction in the candidate's
// orientation. A self-referencing link suffixes the second column to keep
// the pair distinct.
func junctionColumns(sourceTable, targetTable string) (string, string) {
	src := ForeignKeyColumn(sourceTable)
	dst := ForeignKeyColumn(targetTable)
	if src == dst {
		dst = ForeignKeyColumn(targetTable + "_2")
	}
	return src, dst
}

// SortByTable orders proposals by their owning table name, then source
// column, for stable display and reporting.
func SortByTable(ps []Proposal) {
	sort.SliceStable(ps, func(i, j int) bool {
		ti, tj := owningTable(ps[i]), owningTable(ps[j])
		if ti != tj {
			return ti < tj
		}
		return ps[i].SourceColumn < ps[j].SourceColumn
	})
}

// owningTable is the table a proposal creates or alters.
func owningTable(p Proposal) string {
	if p.Kind == KindJunction {
		return p.JunctionTable
	}
	return p.FKTable
}
