// Package importer drives multi-table imports from a record source into
// relational storage, one session at a time.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gridport/gridport/internal/mapping"
	"github.com/gridport/gridport/internal/progress"
	"github.com/gridport/gridport/internal/relationship"
	"github.com/gridport/gridport/internal/schema"
	"github.com/gridport/gridport/internal/session"
	"github.com/gridport/gridport/internal/source"
	"github.com/gridport/gridport/internal/storage"
)

// Deps are the collaborators an Engine needs. Source, Store, and Sessions
// are required; the rest default when nil.
type Deps struct {
	Source     source.RecordSource
	Store      storage.Store
	Sessions   session.Store
	Registry   *mapping.Registry
	Sink       progress.Sink
	Thresholds relationship.Thresholds
	Logger     *slog.Logger
}

// Engine is the import orchestrator. Each session's state is owned
// exclusively by the goroutine running it; other callers observe it through
// the session store.
type Engine struct {
	source     source.RecordSource
	store      storage.Store
	sessions   session.Store
	registry   *mapping.Registry
	sink       progress.Sink
	thresholds relationship.Thresholds
	logger     *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	done    map[string]chan struct{}
}

// New creates an engine with the given collaborators.
func New(deps Deps) *Engine {
	if deps.Registry == nil {
		deps.Registry = mapping.NewRegistry()
	}
	if deps.Sink == nil {
		deps.Sink = progress.NopSink{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Thresholds == (relationship.Thresholds{}) {
		deps.Thresholds = relationship.DefaultThresholds()
	}
	return &Engine{
		source:     deps.Source,
		store:      deps.Store,
		sessions:   deps.Sessions,
		registry:   deps.Registry,
		sink:       deps.Sink,
		thresholds: deps.Thresholds,
		logger:     deps.Logger,
		cancels:    make(map[string]context.CancelFunc),
		done:       make(map[string]chan struct{}),
	}
}

// Tables lists the tables available at the source.
func (e *Engine) Tables(ctx context.Context) ([]schema.Table, error) {
	return e.source.ListTables(ctx)
}

// StartImport creates a session for the named tables and runs it in the
// background. The returned id is immediately queryable via GetSession; the
// run itself detaches from ctx and stops only on Cancel or completion.
func (e *Engine) StartImport(ctx context.Context, ownerID string, tableNames []string, mode storage.WriteMode) (string, error) {
	if len(tableNames) == 0 {
		return "", fmt.Errorf("no tables selected")
	}
	if mode == "" {
		mode = storage.ModeUpsert
	}

	s := &session.ImportSession{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Status:      session.StatusPending,
		Mode:        mode,
		TableNames:  append([]string(nil), tableNames...),
		TotalTables: len(tableNames),
		Results:     make(map[string]*session.TableResult),
		StartTime:   time.Now().UTC(),
	}
	if err := e.sessions.Create(ctx, s); err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	if err := e.sessions.TryAcquireRun(ctx, s.ID); err != nil {
		return "", err
	}
	s.Status = session.StatusRunning

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.mu.Lock()
	e.cancels[s.ID] = cancel
	e.done[s.ID] = done
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			delete(e.cancels, s.ID)
			e.mu.Unlock()
			cancel()
			close(done)
		}()
		e.run(runCtx, s)
	}()

	return s.ID, nil
}

// GetSession returns the stored state of a session.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*session.ImportSession, error) {
	return e.sessions.Get(ctx, sessionID)
}

// Cancel requests cooperative cancellation: the streaming table finishes
// its current page, then the run stops without advancing. Reports whether a
// run was actually active.
func (e *Engine) Cancel(sessionID string) bool {
	e.mu.Lock()
	cancel := e.cancels[sessionID]
	e.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Wait blocks until the session's background run finishes. Sessions this
// engine never started return immediately.
func (e *Engine) Wait(sessionID string) {
	e.mu.Lock()
	done := e.done[sessionID]
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

// RetryTable re-runs the per-table protocol for one table of a finished
// session, replacing its result and re-aggregating the session status. A
// session that is RUNNING, or not yet terminal, is rejected with a
// ConflictError before anything is touched.
func (e *Engine) RetryTable(ctx context.Context, sessionID, tableName string) (*session.TableResult, error) {
	s, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !contains(s.TableNames, tableName) {
		return nil, fmt.Errorf("table %q is not part of session %s", tableName, sessionID)
	}
	if !s.Status.Terminal() {
		return nil, &session.ConflictError{SessionID: sessionID, Status: s.Status, Op: "retry table"}
	}
	if err := e.sessions.TryAcquireRun(ctx, sessionID); err != nil {
		return nil, err
	}
	s.Status = session.StatusRunning

	res := e.importTable(ctx, s, tableName)

	status := session.Aggregate(s.Results)
	if ctx.Err() != nil {
		status = session.StatusCancelled
	}
	e.finalize(s, status)
	return res, nil
}

// AnalyzeRelationships classifies the staged link columns of a finished
// session and persists the resulting candidates. Candidates carry over
// operator approvals from any earlier analysis of the same columns.
func (e *Engine) AnalyzeRelationships(ctx context.Context, sessionID string) (*relationship.Analysis, error) {
	s, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status == session.StatusRunning {
		return nil, &session.ConflictError{SessionID: sessionID, Status: s.Status, Op: "analyze relationships"}
	}
	if s.Status != session.StatusCompleted && s.Status != session.StatusPartialFailed {
		return nil, fmt.Errorf("session %s has no imported data to analyze (status %s)", sessionID, s.Status)
	}

	analyzer := relationship.NewAnalyzer(e.source, e.store, e.registry, e.thresholds, e.logger)
	analysis, err := analyzer.Analyze(ctx, sessionID, s.TableNames)
	if err != nil {
		return nil, err
	}
	for _, u := range analysis.Unresolved {
		e.logger.Warn("staging column unresolved",
			"table", u.Table, "column", u.Column, "reason", u.Reason)
	}

	if err := e.sessions.SaveCandidates(ctx, analysis.Candidates); err != nil {
		return nil, fmt.Errorf("persisting candidates: %w", err)
	}
	persisted, err := e.sessions.Candidates(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	analysis.Candidates = persisted
	return analysis, nil
}

// ApplyApprovedRelationships approves the named candidates, derives their
// proposals, and materializes them in dependency order. Re-applying is
// safe: existing proposals are reused instead of duplicated and created
// ones are skipped. Materialization failures are collected so the
// remaining proposals still apply.
func (e *Engine) ApplyApprovedRelationships(ctx context.Context, sessionID string, candidateIDs []string) ([]relationship.Proposal, error) {
	s, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status == session.StatusRunning {
		return nil, &session.ConflictError{SessionID: sessionID, Status: s.Status, Op: "apply relationships"}
	}

	for _, id := range candidateIDs {
		if err := e.sessions.SetCandidateApproved(ctx, id, true); err != nil {
			return nil, err
		}
	}
	cands, err := e.sessions.Candidates(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	proposals := e.mergeProposals(ctx, sessionID, relationship.BuildProposals(sessionID, cands))
	sorted, order := relationship.OrderProposals(proposals)
	if !order.Acyclic {
		e.logger.Warn("tables reference each other in a cycle; applying in discovery order",
			"session", sessionID, "cycles", order.Cycles)
	}
	if err := e.sessions.SaveProposals(ctx, sorted); err != nil {
		return nil, fmt.Errorf("persisting proposals: %w", err)
	}

	mat := relationship.NewMaterializer(e.store, e.logger)
	var errs []error
	for i := range sorted {
		p := &sorted[i]
		if err := mat.Apply(ctx, p); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := e.sessions.MarkProposalCreated(ctx, p.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return sorted, errors.Join(errs...)
}

// mergeProposals reuses persisted proposals over freshly built equivalents,
// keyed by candidate for foreign keys and by table name for junctions,
// whose two mirrored candidates share one proposal.
func (e *Engine) mergeProposals(ctx context.Context, sessionID string, built []relationship.Proposal) []relationship.Proposal {
	existing, err := e.sessions.Proposals(ctx, sessionID)
	if err != nil {
		e.logger.Warn("loading existing proposals failed", "session", sessionID, "error", err)
		return built
	}
	byCandidate := make(map[string]relationship.Proposal)
	byJunction := make(map[string]relationship.Proposal)
	for _, p := range existing {
		byCandidate[p.CandidateID] = p
		if p.Kind == relationship.KindJunction {
			byJunction[p.JunctionTable] = p
		}
	}

	out := make([]relationship.Proposal, 0, len(built))
	for _, p := range built {
		if old, ok := byCandidate[p.CandidateID]; ok && old.Kind == p.Kind {
			out = append(out, old)
			continue
		}
		if p.Kind == relationship.KindJunction {
			if old, ok := byJunction[p.JunctionTable]; ok {
				out = append(out, old)
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
