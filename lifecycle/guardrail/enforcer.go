// Package guardrail is the sole authority for the publish invariant: a
// proposal may gain a published edge only while its status and its
// implementation status both read validated from the store, with a passing
// validation record behind them. Nothing else in the codebase writes
// published edges.
package guardrail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/c360studio/archon/lifecycle"
)

// Enforcer gates all writes of published edges.
type Enforcer struct {
	repo      lifecycle.Repository
	machine   *lifecycle.Machine
	publisher EdgePublisher
	logger    *slog.Logger
}

// EdgePublisher announces a publish to the knowledge graph. Implementations
// must be safe to skip; publication to the graph is best-effort and never
// blocks the store write.
type EdgePublisher interface {
	PublishSyncEdge(ctx context.Context, p *lifecycle.Proposal, targetSection string) error
}

// NewEnforcer creates an enforcer over the given repository and state machine.
func NewEnforcer(repo lifecycle.Repository, machine *lifecycle.Machine) *Enforcer {
	return &Enforcer{
		repo:    repo,
		machine: machine,
		logger:  slog.Default(),
	}
}

// SetLogger sets the logger for the enforcer.
func (e *Enforcer) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// SetPublisher sets the graph publisher used after a successful sync.
func (e *Enforcer) SetPublisher(p EdgePublisher) {
	e.publisher = p
}

// Decision is the outcome of a guardrail check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// ViolationError is raised when a sync is attempted against a proposal that
// does not satisfy the publish invariant. It is distinct from ordinary
// errors so callers can tell a policy refusal from an infrastructure fault.
type ViolationError struct {
	ProposalID string
	Reason     string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("guardrail violation for %s: %s", e.ProposalID, e.Reason)
}

// Violation is one entry in the audit sweep output.
type Violation struct {
	ProposalID string               `json:"proposal_id"`
	Status     lifecycle.Status     `json:"current_status"`
	ImplStatus lifecycle.ImplStatus `json:"current_impl_status"`
	Reason     string               `json:"reason"`
}

// CanSyncToArchitecture decides whether a proposal may be published. Both
// statuses are re-read from the store here; callers never pass them in. The
// decision also requires the implementation's most recent validation record
// to have passed.
func (e *Enforcer) CanSyncToArchitecture(ctx context.Context, proposalID string) (Decision, error) {
	p, _, err := e.repo.GetProposal(ctx, proposalID)
	if err != nil {
		return Decision{}, fmt.Errorf("get proposal %s: %w", proposalID, err)
	}
	return e.decide(ctx, p, lifecycle.StatusValidated), nil
}

// decide evaluates the publish predicate for a proposal against the set of
// acceptable statuses: validated for sync decisions, validated or synced for
// the audit sweep (proposals transition to synced right after their edge is
// written).
func (e *Enforcer) decide(ctx context.Context, p *lifecycle.Proposal, acceptable ...lifecycle.Status) Decision {
	// "Not complete" is reserved for implementations that never finished.
	// A completed-but-unvalidated implementation is a validation gap, not
	// a completeness one, and reports as such below.
	switch p.ImplementationStatus {
	case lifecycle.ImplStatusCompleted, lifecycle.ImplStatusValidated:
	default:
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("Implementation not complete (status=%s)", p.ImplementationStatus),
		}
	}

	statusOK := false
	for _, s := range acceptable {
		if p.Status == s {
			statusOK = true
			break
		}
	}
	if !statusOK {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("Proposal not validated (status=%s)", p.Status),
		}
	}

	if p.ImplementationStatus != lifecycle.ImplStatusValidated {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("Implementation not validated (status=%s)", p.ImplementationStatus),
		}
	}

	if !e.latestValidationPassed(ctx, p.ID) {
		return Decision{Allowed: false, Reason: "Validation did not pass"}
	}

	return Decision{Allowed: true}
}

// latestValidationPassed reports whether the proposal's implementation has a
// validation history ending in a pass.
func (e *Enforcer) latestValidationPassed(ctx context.Context, proposalID string) bool {
	impl, _, err := e.repo.GetImplementationByProposal(ctx, proposalID)
	if err != nil {
		return false
	}
	validations, err := e.repo.ListValidationsByImplementation(ctx, impl.ID)
	if err != nil || len(validations) == 0 {
		return false
	}
	return validations[len(validations)-1].Passed
}

// SyncToArchitecture publishes a proposal into an architecture document
// section. The guardrail check runs immediately before the write; a failed
// check raises *ViolationError. The edge write itself is a create-if-absent,
// so of two concurrent syncers exactly one claims the edge and the loser
// gets lifecycle.ErrAlreadyExists. After the edge exists the proposal
// transitions validated → synced.
func (e *Enforcer) SyncToArchitecture(ctx context.Context, proposalID, targetSection string) (*lifecycle.PublishedEdge, error) {
	decision, err := e.CanSyncToArchitecture(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &ViolationError{ProposalID: proposalID, Reason: decision.Reason}
	}

	p, _, err := e.repo.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("get proposal %s: %w", proposalID, err)
	}
	if targetSection == "" {
		targetSection = p.TargetSection
	}
	if targetSection == "" {
		return nil, fmt.Errorf("proposal %s has no target section", proposalID)
	}

	edge := &lifecycle.PublishedEdge{
		ProposalID:    proposalID,
		TargetSection: targetSection,
	}
	if err := e.repo.CreatePublishedEdge(ctx, edge); err != nil {
		if errors.Is(err, lifecycle.ErrAlreadyExists) {
			return nil, fmt.Errorf("proposal %s already published: %w", proposalID, err)
		}
		return nil, fmt.Errorf("create published edge: %w", err)
	}

	if _, err := e.machine.Transition(ctx, proposalID, lifecycle.StatusSynced,
		fmt.Sprintf("published to %s", targetSection)); err != nil {
		return nil, err
	}

	if e.publisher != nil {
		if err := e.publisher.PublishSyncEdge(ctx, p, targetSection); err != nil {
			e.logger.Warn("Graph publish failed",
				"proposal_id", proposalID,
				"error", err)
		}
	}

	e.logger.Info("Proposal synced to architecture",
		"proposal_id", proposalID,
		"target_section", targetSection)

	return edge, nil
}

// AuditGuardrailViolations sweeps every published edge and reports those
// whose source proposal no longer satisfies the publish predicate. A synced
// status is acceptable here: proposals move to synced immediately after
// their edge is written. A non-empty result indicates state drift from
// manual edits or a bug.
func (e *Enforcer) AuditGuardrailViolations(ctx context.Context) ([]Violation, error) {
	edges, err := e.repo.ListPublishedEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published edges: %w", err)
	}

	var violations []Violation
	for _, edge := range edges {
		p, _, err := e.repo.GetProposal(ctx, edge.ProposalID)
		if err != nil {
			violations = append(violations, Violation{
				ProposalID: edge.ProposalID,
				Reason:     fmt.Sprintf("published proposal unreadable: %v", err),
			})
			continue
		}

		decision := e.decide(ctx, p, lifecycle.StatusValidated, lifecycle.StatusSynced)
		if !decision.Allowed {
			violations = append(violations, Violation{
				ProposalID: p.ID,
				Status:     p.Status,
				ImplStatus: p.ImplementationStatus,
				Reason:     decision.Reason,
			})
		}
	}

	if len(violations) > 0 {
		e.logger.Warn("Guardrail audit found violations", "count", len(violations))
	}

	return violations, nil
}
