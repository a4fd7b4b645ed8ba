// Package lifecycle provides the Archon proposal lifecycle: the data model,
// the state machine governing proposal status transitions, and the repository
// contract every role handler persists through.
package lifecycle

import (
	"time"
)

// Status represents the primary lifecycle state of a proposal.
type Status string

const (
	// StatusProposed indicates the proposal has been created but not yet reviewed.
	StatusProposed Status = "proposed"
	// StatusUnderReview indicates the proposal is being vetted.
	StatusUnderReview Status = "under_review"
	// StatusApproved indicates vetting approved the proposal for implementation.
	StatusApproved Status = "approved"
	// StatusImplemented indicates the implementation completed.
	StatusImplemented Status = "implemented"
	// StatusValidated indicates the implementation passed validation.
	StatusValidated Status = "validated"
	// StatusSynced indicates the proposal was published to the architecture document.
	StatusSynced Status = "synced"
	// StatusRejected indicates the proposal was rejected during review.
	StatusRejected Status = "rejected"
	// StatusFailed indicates the implementation failed after approval.
	StatusFailed Status = "failed"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status is a known lifecycle status.
func (s Status) IsValid() bool {
	switch s {
	case StatusProposed, StatusUnderReview, StatusApproved, StatusImplemented,
		StatusValidated, StatusSynced, StatusRejected, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusSynced || s == StatusRejected || s == StatusFailed
}

// CanTransitionTo returns true if the status can transition to the target status.
// The proposal status workflow is:
//
//	proposed → under_review (vetting started)
//	proposed → rejected (dismissed without review)
//	under_review → approved (vetting approved)
//	under_review → rejected (vetting rejected)
//	under_review → proposed (review withdrawn, back to queue)
//	approved → implemented (implementation completed)
//	approved → rejected (approval revoked)
//	implemented → validated (validation passed)
//	implemented → failed (implementation abandoned)
//	validated → synced (published to the architecture document)
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusProposed:
		return target == StatusUnderReview || target == StatusRejected
	case StatusUnderReview:
		return target == StatusApproved || target == StatusRejected || target == StatusProposed
	case StatusApproved:
		return target == StatusImplemented || target == StatusRejected
	case StatusImplemented:
		return target == StatusValidated || target == StatusFailed
	case StatusValidated:
		return target == StatusSynced
	case StatusSynced, StatusRejected, StatusFailed:
		return false // Terminal states
	default:
		return false
	}
}

// ImplStatus tracks implementation progress independently of the primary status.
type ImplStatus string

const (
	// ImplStatusNotStarted indicates no implementation exists yet.
	ImplStatusNotStarted ImplStatus = "not_started"
	// ImplStatusInProgress indicates the implementation is being built.
	ImplStatusInProgress ImplStatus = "in_progress"
	// ImplStatusCompleted indicates the implementation finished.
	ImplStatusCompleted ImplStatus = "completed"
	// ImplStatusValidated indicates the completed implementation passed validation.
	ImplStatusValidated ImplStatus = "validated"
	// ImplStatusFailed indicates the implementation failed.
	ImplStatusFailed ImplStatus = "failed"
)

// String returns the string representation of the implementation status.
func (s ImplStatus) String() string {
	return string(s)
}

// IsValid returns true if the implementation status is valid.
func (s ImplStatus) IsValid() bool {
	switch s {
	case ImplStatusNotStarted, ImplStatusInProgress, ImplStatusCompleted,
		ImplStatusValidated, ImplStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if this implementation status can transition
// to the target status.
func (s ImplStatus) CanTransitionTo(target ImplStatus) bool {
	switch s {
	case ImplStatusNotStarted:
		return target == ImplStatusInProgress
	case ImplStatusInProgress:
		return target == ImplStatusCompleted || target == ImplStatusFailed
	case ImplStatusCompleted:
		return target == ImplStatusValidated || target == ImplStatusFailed
	case ImplStatusValidated, ImplStatusFailed:
		return false // Terminal states
	default:
		return false
	}
}

// OpportunityStatus represents the lifecycle of a discovered opportunity.
type OpportunityStatus string

const (
	// OpportunityProposed indicates the opportunity awaits conversion.
	OpportunityProposed OpportunityStatus = "proposed"
	// OpportunityConverted indicates a proposal was created from the opportunity.
	OpportunityConverted OpportunityStatus = "converted"
	// OpportunityAddressed indicates the opportunity was dismissed or otherwise closed.
	OpportunityAddressed OpportunityStatus = "addressed"
)

// Opportunity is an externally-discovered gap or improvement candidate.
// Opportunities are created by a scanner outside this module and are
// immutable except for their status.
type Opportunity struct {
	// ID is the entity identifier (format: opportunity:{uuid})
	ID string `json:"id"`

	// Kind classifies the gap (e.g., missing_section, stale_content, inconsistency)
	Kind string `json:"kind"`

	// Description explains what is missing or wrong
	Description string `json:"description"`

	// Priority orders conversion (higher first)
	Priority int `json:"priority"`

	// SuggestedSection is the scanner's section hint, if any
	SuggestedSection string `json:"suggested_section,omitempty"`

	// Status is the opportunity lifecycle state
	Status OpportunityStatus `json:"status"`

	// ProposalID links to the proposal created from this opportunity
	ProposalID string `json:"proposal_id,omitempty"`

	// DiscoveredAt is when the scanner found the gap
	DiscoveredAt time.Time `json:"discovered_at"`
}

// StatusChange records a single proposal status transition.
type StatusChange struct {
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Note      string    `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Proposal is a tracked, stateful unit of change moving through review,
// implementation, and validation toward publication.
type Proposal struct {
	// ID is the entity identifier (format: proposal:{uuid})
	ID string `json:"id"`

	// Title is the human-readable title
	Title string `json:"title"`

	// Description explains the change
	Description string `json:"description"`

	// Category classifies the change (api, database, security, ...)
	Category string `json:"category,omitempty"`

	// Status is the primary lifecycle state
	Status Status `json:"status"`

	// ImplementationStatus tracks implementation progress independently
	ImplementationStatus ImplStatus `json:"implementation_status"`

	// TargetSection is the architecture document section this proposal
	// publishes into once synced
	TargetSection string `json:"target_section,omitempty"`

	// OpportunityID links back to the source opportunity, if any
	OpportunityID string `json:"opportunity_id,omitempty"`

	// StatusHistory records every status transition
	StatusHistory []StatusChange `json:"status_history,omitempty"`

	// CreatedAt is when the proposal was created
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the proposal was last modified
	UpdatedAt time.Time `json:"updated_at"`
}

// Recommendation is the vetting verdict for a proposal.
type Recommendation string

const (
	// RecommendApprove clears the proposal for implementation.
	RecommendApprove Recommendation = "approve"
	// RecommendApproveWithConditions approves with conditions recorded for audit.
	RecommendApproveWithConditions Recommendation = "approve_with_conditions"
	// RecommendApproveWithReview approves but requests a follow-up review.
	RecommendApproveWithReview Recommendation = "approve_with_review"
	// RecommendReject rejects the proposal.
	RecommendReject Recommendation = "reject"
)

// IsApproval returns true if the recommendation resolves to an approval
// transition. Qualified approvals keep their note for audit.
func (r Recommendation) IsApproval() bool {
	return r == RecommendApprove || r == RecommendApproveWithConditions || r == RecommendApproveWithReview
}

// Vetting is an immutable operational-risk review record. A re-vet creates
// a new record rather than mutating an existing one.
type Vetting struct {
	// ID is the entity identifier (format: vetting:{uuid})
	ID string `json:"id"`

	// ProposalID links to the vetted proposal
	ProposalID string `json:"proposal_id"`

	// Assessment is the structured risk assessment
	Assessment Assessment `json:"assessment"`

	// Recommendation is the verdict
	Recommendation Recommendation `json:"recommendation"`

	// VettedBy identifies the reviewer
	VettedBy string `json:"vetted_by"`

	// VettedAt is when the review completed
	VettedAt time.Time `json:"vetted_at"`
}

// RiskLevel grades an assessed risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Assessment is the structured output of a vetting review.
type Assessment struct {
	// DeploymentRisk grades the risk of deploying the change
	DeploymentRisk RiskLevel `json:"deployment_risk"`

	// OperationalImpact grades the ongoing operational burden
	OperationalImpact RiskLevel `json:"operational_impact"`

	// Summary is the reviewer's narrative assessment
	Summary string `json:"summary"`

	// Conditions lists qualifying conditions when the recommendation is
	// approve_with_conditions
	Conditions []string `json:"conditions,omitempty"`
}

// ImplementationStatus represents the state of an implementation record.
type ImplementationStatus string

const (
	// ImplementationInProgress indicates work is ongoing.
	ImplementationInProgress ImplementationStatus = "in_progress"
	// ImplementationCompleted indicates the work finished.
	ImplementationCompleted ImplementationStatus = "completed"
	// ImplementationFailed indicates the work failed.
	ImplementationFailed ImplementationStatus = "failed"
)

// Implementation tracks the build work for one approved proposal.
// Progress is monotonic non-decreasing within one record's lifetime.
type Implementation struct {
	// ID is the entity identifier (format: implementation:{uuid})
	ID string `json:"id"`

	// ProposalID links to the parent proposal
	ProposalID string `json:"proposal_id"`

	// Status is the implementation state
	Status ImplementationStatus `json:"status"`

	// Progress is the completion percentage (0-100, never decreases)
	Progress int `json:"progress"`

	// Summary describes what was built (required for completion)
	Summary string `json:"summary,omitempty"`

	// StartedAt is when the implementation began
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the implementation finished
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Check is a single validation check outcome.
type Check struct {
	// Name identifies the check
	Name string `json:"name"`

	// Passed is the check outcome
	Passed bool `json:"passed"`

	// Critical marks checks that must pass for the validation to pass
	Critical bool `json:"critical"`

	// Detail explains the outcome
	Detail string `json:"detail,omitempty"`
}

// Validation is an append-only audit record of one validation run.
// Records are never mutated after creation; re-validation creates a
// fresh record.
type Validation struct {
	// ID is the entity identifier (format: validation:{uuid})
	ID string `json:"id"`

	// ImplementationID links to the validated implementation
	ImplementationID string `json:"implementation_id"`

	// Checks lists every check that ran
	Checks []Check `json:"checks"`

	// Passed is true iff no critical check failed
	Passed bool `json:"passed"`

	// ValidatedAt is when the validation ran
	ValidatedAt time.Time `json:"validated_at"`
}

// NewValidation builds a Validation record from check outcomes. Passed is
// derived from the checks here so a record can never claim success while a
// critical check failed.
func NewValidation(implementationID string, checks []Check) *Validation {
	passed := true
	for _, c := range checks {
		if c.Critical && !c.Passed {
			passed = false
			break
		}
	}
	return &Validation{
		ImplementationID: implementationID,
		Checks:           checks,
		Passed:           passed,
		ValidatedAt:      time.Now(),
	}
}

// FailedChecks returns the names of all failed checks.
func (v *Validation) FailedChecks() []string {
	var failed []string
	for _, c := range v.Checks {
		if !c.Passed {
			failed = append(failed, c.Name)
		}
	}
	return failed
}

// PublishedEdge records that a proposal was published into an architecture
// document section. At most one edge exists per proposal; creation is
// guarded by the guardrail enforcer.
type PublishedEdge struct {
	// ProposalID is the source proposal
	ProposalID string `json:"proposal_id"`

	// TargetSection is the architecture section published into
	TargetSection string `json:"target_section"`

	// SyncedAt is when the edge was created
	SyncedAt time.Time `json:"synced_at"`
}
