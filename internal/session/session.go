// Package session holds the import session model and its durable stores.
package session

import (
	"fmt"
	"time"

	"github.com/gridport/gridport/internal/storage"
)

// Status is the lifecycle state of an import session.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusRunning       Status = "RUNNING"
	StatusCompleted     Status = "COMPLETED"
	StatusFailed        Status = "FAILED"
	StatusPartialFailed Status = "PARTIAL_FAILED"
	StatusCancelled     Status = "CANCELLED"
)

// Terminal reports whether a session in this status has finished.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPartialFailed, StatusCancelled:
		return true
	}
	return false
}

// TableResult is the outcome of one table's import. A retry replaces the
// whole struct.
type TableResult struct {
	TableName        string            `yaml:"table_name" json:"tableName"`
	Success          bool              `yaml:"success" json:"success"`
	Mode             storage.WriteMode `yaml:"mode" json:"mode"`
	TotalRecords     int64             `yaml:"total_records" json:"totalRecords"`
	ProcessedRecords int64             `yaml:"processed_records" json:"processedRecords"`
	InsertedRecords  int64             `yaml:"inserted_records" json:"insertedRecords"`
	UpdatedRecords   int64             `yaml:"updated_records" json:"updatedRecords"`
	SkippedRecords   int64             `yaml:"skipped_records" json:"skippedRecords"`
	DeletedRecords   int64             `yaml:"deleted_records,omitempty" json:"deletedRecords,omitempty"`
	Error            string            `yaml:"error,omitempty" json:"error,omitempty"`
}

// ImportSession tracks one multi-table import from request to terminal
// state. Counters roll up from Results via Recalculate.
type ImportSession struct {
	ID               string                  `yaml:"id" json:"id"`
	OwnerID          string                  `yaml:"owner_id" json:"ownerId"`
	Status           Status                  `yaml:"status" json:"status"`
	Mode             storage.WriteMode       `yaml:"mode" json:"mode"`
	TableNames       []string                `yaml:"table_names" json:"tableNames"`
	TotalTables      int                     `yaml:"total_tables" json:"totalTables"`
	TotalRecords     int64                   `yaml:"total_records" json:"totalRecords"`
	ProcessedRecords int64                   `yaml:"processed_records" json:"processedRecords"`
	Results          map[string]*TableResult `yaml:"results" json:"results"`
	StartTime        time.Time               `yaml:"start_time" json:"startTime"`
	EndTime          *time.Time              `yaml:"end_time,omitempty" json:"endTime,omitempty"`
	ErrorMessage     string                  `yaml:"error_message,omitempty" json:"errorMessage,omitempty"`
}

// Recalculate refreshes the rollup counters from the per-table results.
// Totals grow as paging discovers records; they are counts-so-far until the
// session reaches a terminal state.
func (s *ImportSession) Recalculate() {
	var total, processed int64
	for _, r := range s.Results {
		total += r.TotalRecords
		processed += r.ProcessedRecords
	}
	s.TotalRecords = total
	s.ProcessedRecords = processed
}

// Clone returns a deep copy. Stores hand out clones so callers never share
// result maps with the orchestrator.
func (s *ImportSession) Clone() *ImportSession {
	c := *s
	c.TableNames = append([]string(nil), s.TableNames...)
	if s.Results != nil {
		c.Results = make(map[string]*TableResult, len(s.Results))
		for name, r := range s.Results {
			cr := *r
			c.Results[name] = &cr
		}
	}
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	return &c
}

// Aggregate derives the data-driven terminal status from per-table results:
// all succeeded, all failed, or mixed. Cancellation and pre-table failures
// are set by the orchestrator directly, not derived here.
func Aggregate(results map[string]*TableResult) Status {
	if len(results) == 0 {
		return StatusFailed
	}
	succeeded, failed := 0, 0
	for _, r := range results {
		if r.Success {
			succeeded++
		} else {
			failed++
		}
	}
	switch {
	case failed == 0:
		return StatusCompleted
	case succeeded == 0:
		return StatusFailed
	default:
		return StatusPartialFailed
	}
}

// ConflictError rejects an operation because the session is in the wrong
// state for it. Nothing has been mutated when it is returned.
type ConflictError struct {
	SessionID string
	Status    Status
	Op        string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("session %s is %s, cannot %s", e.SessionID, e.Status, e.Op)
}
