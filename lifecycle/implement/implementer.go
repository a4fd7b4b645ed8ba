// Package implement tracks the build work for approved proposals. One
// implementation record exists per proposal; progress only moves forward,
// and completion requires full progress plus a summary of what was built.
package implement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/archon/lifecycle"
)

// Implementer drives implementation records for approved proposals.
type Implementer struct {
	repo    lifecycle.Repository
	machine *lifecycle.Machine
	logger  *slog.Logger
}

// NewImplementer creates an implementer over the given repository and
// state machine.
func NewImplementer(repo lifecycle.Repository, machine *lifecycle.Machine) *Implementer {
	return &Implementer{
		repo:    repo,
		machine: machine,
		logger:  slog.Default(),
	}
}

// SetLogger sets the logger for the implementer.
func (i *Implementer) SetLogger(logger *slog.Logger) {
	if logger != nil {
		i.logger = logger
	}
}

// StartImplementation creates the implementation record for an approved
// proposal and marks the proposal's implementation status in_progress.
//
// The proposal must be approved, and must not already have an
// implementation; a second start returns lifecycle.ErrAlreadyExists.
func (i *Implementer) StartImplementation(ctx context.Context, proposalID string) (*lifecycle.Implementation, error) {
	p, _, err := i.repo.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("get proposal %s: %w", proposalID, err)
	}

	if p.Status != lifecycle.StatusApproved {
		return nil, &lifecycle.PreconditionError{
			Operation: "implementation start",
			Required:  lifecycle.StatusApproved.String(),
			Actual:    p.Status.String(),
		}
	}

	if existing, _, err := i.repo.GetImplementationByProposal(ctx, proposalID); err == nil {
		return nil, fmt.Errorf("proposal %s already has implementation %s: %w",
			proposalID, existing.ID, lifecycle.ErrAlreadyExists)
	}

	impl := &lifecycle.Implementation{
		ProposalID: proposalID,
		Status:     lifecycle.ImplementationInProgress,
		Progress:   0,
	}
	if err := i.repo.CreateImplementation(ctx, impl); err != nil {
		return nil, fmt.Errorf("create implementation: %w", err)
	}

	if err := i.machine.TransitionImplementationStatus(ctx, proposalID, lifecycle.ImplStatusInProgress); err != nil {
		return nil, err
	}

	i.logger.Info("Implementation started",
		"proposal_id", proposalID,
		"implementation_id", impl.ID)

	return impl, nil
}

// UpdateProgress advances an implementation's progress percentage. Progress
// is monotonic: a value below the stored one fails and changes nothing.
func (i *Implementer) UpdateProgress(ctx context.Context, implementationID string, progress int) error {
	if progress < 0 || progress > 100 {
		return fmt.Errorf("progress must be 0-100, got %d", progress)
	}

	impl, revision, err := i.repo.GetImplementation(ctx, implementationID)
	if err != nil {
		return fmt.Errorf("get implementation %s: %w", implementationID, err)
	}

	if impl.Status != lifecycle.ImplementationInProgress {
		return &lifecycle.PreconditionError{
			Operation: "progress update",
			Required:  string(lifecycle.ImplementationInProgress),
			Actual:    string(impl.Status),
		}
	}
	if progress < impl.Progress {
		return &lifecycle.PreconditionError{
			Operation: "progress update",
			Required:  fmt.Sprintf("progress >= %d", impl.Progress),
			Actual:    fmt.Sprintf("%d", progress),
		}
	}

	impl.Progress = progress
	if err := i.repo.UpdateImplementation(ctx, impl, revision); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}

	i.logger.Debug("Implementation progress updated",
		"implementation_id", implementationID,
		"progress", progress)

	return nil
}

// CompleteImplementation finishes an implementation. It requires full
// progress and a non-empty summary; on success the implementation is marked
// completed and the parent proposal moves to implemented.
func (i *Implementer) CompleteImplementation(ctx context.Context, implementationID, summary string) error {
	if summary == "" {
		return fmt.Errorf("completion summary is required")
	}

	impl, revision, err := i.repo.GetImplementation(ctx, implementationID)
	if err != nil {
		return fmt.Errorf("get implementation %s: %w", implementationID, err)
	}

	if impl.Status != lifecycle.ImplementationInProgress {
		return &lifecycle.PreconditionError{
			Operation: "implementation completion",
			Required:  string(lifecycle.ImplementationInProgress),
			Actual:    string(impl.Status),
		}
	}
	if impl.Progress != 100 {
		return &lifecycle.PreconditionError{
			Operation: "implementation completion",
			Required:  "progress 100",
			Actual:    fmt.Sprintf("progress %d", impl.Progress),
		}
	}

	now := time.Now()
	impl.Status = lifecycle.ImplementationCompleted
	impl.Summary = summary
	impl.CompletedAt = &now

	if err := i.repo.UpdateImplementation(ctx, impl, revision); err != nil {
		return fmt.Errorf("complete implementation: %w", err)
	}

	if _, err := i.machine.Transition(ctx, impl.ProposalID, lifecycle.StatusImplemented, "implementation completed"); err != nil {
		return err
	}
	if err := i.machine.TransitionImplementationStatus(ctx, impl.ProposalID, lifecycle.ImplStatusCompleted); err != nil {
		return err
	}

	i.logger.Info("Implementation completed",
		"implementation_id", implementationID,
		"proposal_id", impl.ProposalID)

	return nil
}

// FailImplementation marks an implementation failed. An in-progress failure
// leaves the parent proposal approved (the failure is visible through its
// implementation status); abandoning a completed implementation moves the
// proposal from implemented into the failed sink.
func (i *Implementer) FailImplementation(ctx context.Context, implementationID, reason string) error {
	impl, revision, err := i.repo.GetImplementation(ctx, implementationID)
	if err != nil {
		return fmt.Errorf("get implementation %s: %w", implementationID, err)
	}

	if impl.Status == lifecycle.ImplementationFailed {
		return &lifecycle.PreconditionError{
			Operation: "implementation failure",
			Required:  string(lifecycle.ImplementationInProgress),
			Actual:    string(impl.Status),
		}
	}

	impl.Status = lifecycle.ImplementationFailed
	if reason != "" {
		impl.Summary = reason
	}
	if err := i.repo.UpdateImplementation(ctx, impl, revision); err != nil {
		return fmt.Errorf("fail implementation: %w", err)
	}

	if err := i.machine.TransitionImplementationStatus(ctx, impl.ProposalID, lifecycle.ImplStatusFailed); err != nil {
		return err
	}

	p, _, err := i.repo.GetProposal(ctx, impl.ProposalID)
	if err != nil {
		return fmt.Errorf("get proposal %s: %w", impl.ProposalID, err)
	}
	if p.Status == lifecycle.StatusImplemented {
		if _, err := i.machine.Transition(ctx, impl.ProposalID, lifecycle.StatusFailed, reason); err != nil {
			return err
		}
	}

	i.logger.Warn("Implementation failed",
		"implementation_id", implementationID,
		"proposal_id", impl.ProposalID,
		"reason", reason)

	return nil
}
