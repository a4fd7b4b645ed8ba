// Package vetting implements the review role of the proposal lifecycle.
// A vet moves a proposal from proposed to under_review, records an immutable
// risk assessment, and applies the verdict as an approved or rejected
// transition.
package vetting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/archon/lifecycle"
)

// DefaultVettedBy identifies the built-in reviewer on vetting records.
const DefaultVettedBy = "archon-vetter"

// Vetter performs operational-risk reviews of proposals.
type Vetter struct {
	repo     lifecycle.Repository
	machine  *lifecycle.Machine
	logger   *slog.Logger
	vettedBy string
}

// NewVetter creates a vetter over the given repository and state machine.
func NewVetter(repo lifecycle.Repository, machine *lifecycle.Machine) *Vetter {
	return &Vetter{
		repo:     repo,
		machine:  machine,
		logger:   slog.Default(),
		vettedBy: DefaultVettedBy,
	}
}

// SetLogger sets the logger for the vetter.
func (v *Vetter) SetLogger(logger *slog.Logger) {
	if logger != nil {
		v.logger = logger
	}
}

// SetVettedBy overrides the reviewer identity recorded on vetting records.
func (v *Vetter) SetVettedBy(name string) {
	if name != "" {
		v.vettedBy = name
	}
}

// VetProposal runs a full review cycle: the proposal moves to under_review,
// an assessment is recorded, and the verdict is applied as a status
// transition (approved for any approval flavor, rejected otherwise).
//
// The proposal must be in proposed state; anything else returns a
// *lifecycle.PreconditionError. Each vet appends a fresh record, so
// re-vetting a proposal sent back to the queue keeps prior reviews intact.
func (v *Vetter) VetProposal(ctx context.Context, proposalID string) (*lifecycle.Vetting, error) {
	p, _, err := v.repo.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("get proposal %s: %w", proposalID, err)
	}

	if p.Status != lifecycle.StatusProposed {
		return nil, &lifecycle.PreconditionError{
			Operation: "vetting",
			Required:  lifecycle.StatusProposed.String(),
			Actual:    p.Status.String(),
		}
	}

	if _, err := v.machine.Transition(ctx, proposalID, lifecycle.StatusUnderReview, "vetting started"); err != nil {
		return nil, err
	}

	assessment, recommendation := Assess(p)

	record := &lifecycle.Vetting{
		ProposalID:     proposalID,
		Assessment:     assessment,
		Recommendation: recommendation,
		VettedBy:       v.vettedBy,
	}
	if err := v.repo.CreateVetting(ctx, record); err != nil {
		return nil, fmt.Errorf("create vetting record: %w", err)
	}

	target := lifecycle.StatusRejected
	if recommendation.IsApproval() {
		target = lifecycle.StatusApproved
	}
	if _, err := v.machine.Transition(ctx, proposalID, target, string(recommendation)); err != nil {
		return nil, err
	}

	v.logger.Info("Proposal vetted",
		"proposal_id", proposalID,
		"recommendation", string(recommendation),
		"deployment_risk", string(assessment.DeploymentRisk),
		"vetted_by", v.vettedBy)

	return record, nil
}

// ApproveProposal moves an under_review proposal to approved without a new
// assessment. Used for manual overrides.
func (v *Vetter) ApproveProposal(ctx context.Context, proposalID, note string) error {
	_, err := v.machine.Transition(ctx, proposalID, lifecycle.StatusApproved, note)
	return err
}

// RejectProposal moves a proposal to rejected.
func (v *Vetter) RejectProposal(ctx context.Context, proposalID, note string) error {
	_, err := v.machine.Transition(ctx, proposalID, lifecycle.StatusRejected, note)
	return err
}

// ReturnToQueue withdraws a review, sending the proposal back to proposed.
func (v *Vetter) ReturnToQueue(ctx context.Context, proposalID, note string) error {
	_, err := v.machine.Transition(ctx, proposalID, lifecycle.StatusProposed, note)
	return err
}

// Assess produces a deterministic risk assessment and recommendation for a
// proposal from its category and text.
//
//   - experimental/prototype changes are rejected outright
//   - security changes are approved with conditions and graded high risk
//   - breaking or removal language is approved subject to follow-up review
//   - everything else is approved at the graded risk level
func Assess(p *lifecycle.Proposal) (lifecycle.Assessment, lifecycle.Recommendation) {
	text := strings.ToLower(p.Title + " " + p.Description)

	assessment := lifecycle.Assessment{
		DeploymentRisk:    deploymentRisk(p.Category),
		OperationalImpact: lifecycle.RiskLow,
	}

	switch {
	case strings.Contains(text, "experiment") || strings.Contains(text, "prototype"):
		assessment.OperationalImpact = lifecycle.RiskHigh
		assessment.Summary = "Experimental change; not accepted into the architecture document"
		return assessment, lifecycle.RecommendReject

	case p.Category == "security":
		assessment.Summary = "Security-sensitive change; approved subject to conditions"
		assessment.Conditions = []string{
			"Security review sign-off before rollout",
			"Rollback plan documented",
		}
		return assessment, lifecycle.RecommendApproveWithConditions

	case strings.Contains(text, "breaking") || strings.Contains(text, "remove") || strings.Contains(text, "deprecat"):
		assessment.OperationalImpact = lifecycle.RiskHigh
		assessment.Summary = "Breaking or removal change; approved pending follow-up review"
		return assessment, lifecycle.RecommendApproveWithReview

	default:
		assessment.Summary = fmt.Sprintf("Routine %s change within normal risk tolerance", categoryLabel(p.Category))
		return assessment, lifecycle.RecommendApprove
	}
}

func deploymentRisk(category string) lifecycle.RiskLevel {
	switch category {
	case "security":
		return lifecycle.RiskHigh
	case "database", "deployment":
		return lifecycle.RiskMedium
	default:
		return lifecycle.RiskLow
	}
}

func categoryLabel(category string) string {
	if category == "" {
		return "general"
	}
	return category
}
