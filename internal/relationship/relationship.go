// Package relationship infers cardinality between imported tables from
// staged link columns and turns approved candidates into junction tables
// and foreign keys.
package relationship

import "fmt"

// Cardinality is the multiplicity inferred between a source table's link
// field and its target table.
type Cardinality string

const (
	OneToOne   Cardinality = "one-to-one"
	OneToMany  Cardinality = "one-to-many"
	ManyToOne  Cardinality = "many-to-one"
	ManyToMany Cardinality = "many-to-many"
)

// Thresholds are the tunable constants behind cardinality classification.
// The defaults trade recall for simplicity; operators override them in the
// analysis section of the config file.
type Thresholds struct {
	OneToManyConfidence  float64 `yaml:"one_to_many_confidence" json:"oneToManyConfidence"`
	ManyToOneConfidence  float64 `yaml:"many_to_one_confidence" json:"manyToOneConfidence"`
	ManyToManyConfidence float64 `yaml:"many_to_many_confidence" json:"manyToManyConfidence"`
	ReuseRatio           float64 `yaml:"reuse_ratio" json:"reuseRatio"`
}

// DefaultThresholds returns the stock classification constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		OneToManyConfidence:  0.95,
		ManyToOneConfidence:  0.85,
		ManyToManyConfidence: 0.75,
		ReuseRatio:           0.1,
	}
}

// Classify derives a cardinality from link-column statistics: total rows,
// rows with a non-empty array, and distinct linked values across all arrays.
// Every value used exactly once reads as one-to-many; heavy reuse of a small
// target set reads as many-to-one; anything else is many-to-many. A column
// with no linked rows cannot be classified and returns ok=false. One-to-one
// is never inferred, only assigned by an operator during review.
func Classify(total, nonNull, unique int64, th Thresholds) (Cardinality, float64, bool) {
	if nonNull == 0 {
		return "", 0, false
	}
	switch {
	case unique == nonNull:
		return OneToMany, th.OneToManyConfidence, true
	case float64(unique) < float64(nonNull)*th.ReuseRatio:
		return ManyToOne, th.ManyToOneConfidence, true
	default:
		return ManyToMany, th.ManyToManyConfidence, true
	}
}

// Candidate is one classified relationship: a staging column on SourceTable
// whose arrays hold TargetTable record ids. Table names are storage-layer
// names; FieldName keeps the source schema's spelling for display.
type Candidate struct {
	ID             string      `yaml:"id" json:"id"`
	SessionID      string      `yaml:"session_id" json:"sessionId"`
	SourceTable    string      `yaml:"source_table" json:"sourceTable"`
	FieldName      string      `yaml:"field_name" json:"fieldName"`
	SourceColumn   string      `yaml:"source_column" json:"sourceColumn"`
	TargetTable    string      `yaml:"target_table" json:"targetTable"`
	CreateTarget   bool        `yaml:"create_target,omitempty" json:"createTarget,omitempty"`
	Cardinality    Cardinality `yaml:"cardinality" json:"cardinality"`
	Confidence     float64     `yaml:"confidence" json:"confidence"`
	TotalRecords   int64       `yaml:"total_records" json:"totalRecords"`
	NonNullRecords int64       `yaml:"non_null_records" json:"nonNullRecords"`
	UniqueValues   int64       `yaml:"unique_values" json:"uniqueValues"`
	Approved       bool        `yaml:"approved" json:"approved"`
}

func (c *Candidate) String() string {
	return fmt.Sprintf("%s.%s -> %s (%s, %.2f)",
		c.SourceTable, c.SourceColumn, c.TargetTable, c.Cardinality, c.Confidence)
}

// UnresolvedStaging records a staging column analysis could not classify.
// Unresolved columns are reported, never silently dropped.
type UnresolvedStaging struct {
	Table  string `yaml:"table" json:"table"`
	Field  string `yaml:"field" json:"field"`
	Column string `yaml:"column" json:"column"`
	Reason string `yaml:"reason" json:"reason"`
}

// Analysis is the outcome of one relationship pass over a session's tables.
// Every staging column in the session lands in exactly one of Candidates or
// Unresolved.
type Analysis struct {
	SessionID  string              `yaml:"session_id" json:"sessionId"`
	Candidates []Candidate         `yaml:"candidates" json:"candidates"`
	Unresolved []UnresolvedStaging `yaml:"unresolved,omitempty" json:"unresolved,omitempty"`
}

// AnalysisError reports a failed statistics query for one staging column.
// The analyzer logs it, skips the column, and continues.
type AnalysisError struct {
	Table string
	Field string
	Err   error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analyzing %s.%s: %v", e.Table, e.Field, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }
