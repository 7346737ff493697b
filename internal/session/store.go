package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gridport/gridport/internal/relationship"
)

// ErrNotFound marks a lookup for a session, candidate, or proposal that is
// not in the store.
var ErrNotFound = errors.New("not found")

// Store persists sessions, relationship candidates, and proposals.
type Store interface {
	Create(ctx context.Context, s *ImportSession) error
	Get(ctx context.Context, id string) (*ImportSession, error)
	Update(ctx context.Context, s *ImportSession) error
	// TryAcquireRun flips a non-RUNNING session to RUNNING. A session
	// already RUNNING yields a ConflictError and nothing is mutated. This
	// is the per-session run lock.
	TryAcquireRun(ctx context.Context, id string) error

	// SaveCandidates upserts by (session, source table, field name).
	// Re-analysis refreshes statistics but keeps an existing candidate's
	// approval.
	SaveCandidates(ctx context.Context, cands []relationship.Candidate) error
	Candidates(ctx context.Context, sessionID string) ([]relationship.Candidate, error)
	SetCandidateApproved(ctx context.Context, candidateID string, approved bool) error

	SaveProposals(ctx context.Context, props []relationship.Proposal) error
	Proposals(ctx context.Context, sessionID string) ([]relationship.Proposal, error)
	MarkProposalCreated(ctx context.Context, proposalID string) error
}

// MemoryStore is the in-process Store used by tests and dry runs.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]*ImportSession
	candidates map[string][]relationship.Candidate
	proposals  map[string][]relationship.Proposal
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]*ImportSession),
		candidates: make(map[string][]relationship.Candidate),
		proposals:  make(map[string][]relationship.Proposal),
	}
}

func (m *MemoryStore) Create(_ context.Context, s *ImportSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*ImportSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, s *ImportSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return fmt.Errorf("session %s: %w", s.ID, ErrNotFound)
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) TryAcquireRun(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if s.Status == StatusRunning {
		return &ConflictError{SessionID: id, Status: s.Status, Op: "run"}
	}
	s.Status = StatusRunning
	return nil
}

func (m *MemoryStore) SaveCandidates(_ context.Context, cands []relationship.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range cands {
		existing := m.candidates[c.SessionID]
		replaced := false
		for i, old := range existing {
			if old.SourceTable == c.SourceTable && old.FieldName == c.FieldName {
				c.Approved = old.Approved
				existing[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, c)
		}
		m.candidates[c.SessionID] = existing
	}
	return nil
}

func (m *MemoryStore) Candidates(_ context.Context, sessionID string) ([]relationship.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]relationship.Candidate(nil), m.candidates[sessionID]...), nil
}

func (m *MemoryStore) SetCandidateApproved(_ context.Context, candidateID string, approved bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sid, cands := range m.candidates {
		for i := range cands {
			if cands[i].ID == candidateID {
				cands[i].Approved = approved
				m.candidates[sid] = cands
				return nil
			}
		}
	}
	return fmt.Errorf("candidate %s: %w", candidateID, ErrNotFound)
}

func (m *MemoryStore) SaveProposals(_ context.Context, props []relationship.Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range props {
		existing := m.proposals[p.SessionID]
		replaced := false
		for i, old := range existing {
			if old.ID == p.ID {
				existing[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, p)
		}
		m.proposals[p.SessionID] = existing
	}
	return nil
}

func (m *MemoryStore) Proposals(_ context.Context, sessionID string) ([]relationship.Proposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]relationship.Proposal(nil), m.proposals[sessionID]...), nil
}

func (m *MemoryStore) MarkProposalCreated(_ context.Context, proposalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sid, props := range m.proposals {
		for i := range props {
			if props[i].ID == proposalID {
				props[i].IsCreated = true
				m.proposals[sid] = props
				return nil
			}
		}
	}
	return fmt.Errorf("proposal %s: %w", proposalID, ErrNotFound)
}
