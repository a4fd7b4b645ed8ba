package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Machine owns the legal-transition table for proposal status and
// implementation status. Every transition reads the persisted state, checks
// edge legality, and writes with compare-and-set semantics: the write is
// conditioned on the revision observed by the read, so two callers racing to
// transition the same proposal cannot both succeed with stale reads.
type Machine struct {
	repo   Repository
	logger *slog.Logger
}

// NewMachine creates a state machine over the given repository.
func NewMachine(repo Repository) *Machine {
	return &Machine{
		repo:   repo,
		logger: slog.Default(),
	}
}

// SetLogger sets the logger for the machine.
func (m *Machine) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// CanTransition reports whether the edge from → to is legal. It is pure and
// side-effect free; usable for validation without touching the store.
func (m *Machine) CanTransition(from, to Status) bool {
	return from.IsValid() && to.IsValid() && from.CanTransitionTo(to)
}

// TransitionResult reports a successful transition.
type TransitionResult struct {
	ProposalID    string `json:"proposal_id"`
	PreviousState Status `json:"previous_state"`
	NewState      Status `json:"new_state"`
}

// Transition moves a proposal to the target status. The current status is
// read from the store, the edge is checked against the transition table, and
// the write is a single conditional update on the revision that was read.
//
// Unknown proposal → ErrNotFound. Illegal edge → *InvalidTransitionError
// with the stored state unchanged. A lost race → ErrRevisionConflict.
func (m *Machine) Transition(ctx context.Context, proposalID string, target Status, note string) (*TransitionResult, error) {
	if !target.IsValid() {
		return nil, fmt.Errorf("unknown target status: %s", target)
	}

	p, revision, err := m.repo.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("get proposal %s: %w", proposalID, err)
	}

	previous := p.Status
	if !previous.CanTransitionTo(target) {
		return nil, &InvalidTransitionError{ProposalID: proposalID, From: previous, To: target}
	}

	now := time.Now()
	p.Status = target
	p.UpdatedAt = now
	p.StatusHistory = append(p.StatusHistory, StatusChange{
		From:      previous,
		To:        target,
		Note:      note,
		Timestamp: now,
	})

	if err := m.repo.UpdateProposal(ctx, p, revision); err != nil {
		return nil, fmt.Errorf("transition %s %s → %s: %w", proposalID, previous, target, err)
	}

	m.logger.Info("Proposal transitioned",
		"proposal_id", proposalID,
		"from", previous.String(),
		"to", target.String())

	return &TransitionResult{
		ProposalID:    proposalID,
		PreviousState: previous,
		NewState:      target,
	}, nil
}

// TransitionImplementationStatus moves a proposal's secondary implementation
// status. Same read-check-CAS discipline as Transition.
func (m *Machine) TransitionImplementationStatus(ctx context.Context, proposalID string, target ImplStatus) error {
	if !target.IsValid() {
		return fmt.Errorf("unknown implementation status: %s", target)
	}

	p, revision, err := m.repo.GetProposal(ctx, proposalID)
	if err != nil {
		return fmt.Errorf("get proposal %s: %w", proposalID, err)
	}

	previous := p.ImplementationStatus
	if previous == target {
		return nil
	}
	if !previous.CanTransitionTo(target) {
		return &PreconditionError{
			Operation: "implementation status transition",
			Required:  fmt.Sprintf("a state that can reach %s", target),
			Actual:    previous.String(),
		}
	}

	p.ImplementationStatus = target
	p.UpdatedAt = time.Now()

	if err := m.repo.UpdateProposal(ctx, p, revision); err != nil {
		return fmt.Errorf("implementation status %s %s → %s: %w", proposalID, previous, target, err)
	}

	m.logger.Debug("Implementation status transitioned",
		"proposal_id", proposalID,
		"from", previous.String(),
		"to", target.String())

	return nil
}
