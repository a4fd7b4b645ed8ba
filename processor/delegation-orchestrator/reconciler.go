// Package delegationorchestrator provides the component that drives
// proposals through the lifecycle stages automatically: convert, vet,
// implement, validate, sync. Each stage is independently toggleable and one
// reconciliation pass is idempotent, so it can run on a timer and on demand
// without double-applying work.
package delegationorchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/c360studio/archon/lifecycle"
	"github.com/c360studio/archon/lifecycle/validation"
)

// Converter turns opportunities into proposals.
type Converter interface {
	Convert(ctx context.Context, opportunityID string) (*lifecycle.Proposal, error)
}

// Vetter reviews proposed proposals.
type Vetter interface {
	VetProposal(ctx context.Context, proposalID string) (*lifecycle.Vetting, error)
}

// Implementer builds approved proposals.
type Implementer interface {
	StartImplementation(ctx context.Context, proposalID string) (*lifecycle.Implementation, error)
	UpdateProgress(ctx context.Context, implementationID string, progress int) error
	CompleteImplementation(ctx context.Context, implementationID, summary string) error
}

// Validator checks completed implementations.
type Validator interface {
	ValidateImplementation(ctx context.Context, implementationID string) (*validation.Result, error)
}

// Router supplies the sync work queue and section assignment.
type Router interface {
	ReadyToSync(ctx context.Context) ([]*lifecycle.Proposal, error)
	MapProposalToSection(ctx context.Context, proposalID string) (string, error)
}

// Syncer publishes validated proposals through the guardrail.
type Syncer interface {
	SyncToArchitecture(ctx context.Context, proposalID, targetSection string) (*lifecycle.PublishedEdge, error)
}

// Stages bundles the handlers one reconciliation pass drives.
type Stages struct {
	Converter   Converter
	Vetter      Vetter
	Implementer Implementer
	Validator   Validator
	Router      Router
	Syncer      Syncer
}

// Toggles enables or disables each automatic stage. Conversion always runs;
// it only creates proposals and never advances them.
type Toggles struct {
	AutoVet       bool
	AutoImplement bool
	AutoValidate  bool
	AutoSync      bool
}

// StageFailure records one isolated failure inside a pass.
type StageFailure struct {
	Stage    string `json:"stage"`
	EntityID string `json:"entity_id"`
	Error    string `json:"error"`
}

// PassReport summarizes one reconciliation pass.
type PassReport struct {
	Converted   int            `json:"converted"`
	Vetted      int            `json:"vetted"`
	Implemented int            `json:"implemented"`
	Validated   int            `json:"validated"`
	Synced      int            `json:"synced"`
	Failures    []StageFailure `json:"failures,omitempty"`
}

// Advanced returns the total number of entities moved forward by the pass.
func (r *PassReport) Advanced() int {
	return r.Converted + r.Vetted + r.Implemented + r.Validated + r.Synced
}

// Reconciler runs reconciliation passes over the store. It holds no state
// between passes; everything is re-derived from persisted status, which is
// what makes repeated invocation safe.
type Reconciler struct {
	repo    lifecycle.Repository
	stages  Stages
	toggles Toggles
	logger  *slog.Logger
}

// NewReconciler creates a reconciler over the given repository and stage
// handlers.
func NewReconciler(repo lifecycle.Repository, stages Stages, toggles Toggles) *Reconciler {
	return &Reconciler{
		repo:    repo,
		stages:  stages,
		toggles: toggles,
		logger:  slog.Default(),
	}
}

// SetLogger sets the logger for the reconciler.
func (r *Reconciler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// ProcessPendingWorkflows runs one reconciliation pass: convert eligible
// opportunities, vet new proposals, implement approved ones, validate
// completed implementations, and sync validated proposals. A failure in one
// entity's stage is recorded and does not abort the pass for the others.
func (r *Reconciler) ProcessPendingWorkflows(ctx context.Context) (*PassReport, error) {
	report := &PassReport{}

	if err := r.convertStage(ctx, report); err != nil {
		return report, err
	}
	if r.toggles.AutoVet {
		if err := r.vetStage(ctx, report); err != nil {
			return report, err
		}
	}
	if r.toggles.AutoImplement {
		if err := r.implementStage(ctx, report); err != nil {
			return report, err
		}
	}
	if r.toggles.AutoValidate {
		if err := r.validateStage(ctx, report); err != nil {
			return report, err
		}
	}
	if r.toggles.AutoSync {
		if err := r.syncStage(ctx, report); err != nil {
			return report, err
		}
	}

	r.logger.Info("Reconciliation pass complete",
		"converted", report.Converted,
		"vetted", report.Vetted,
		"implemented", report.Implemented,
		"validated", report.Validated,
		"synced", report.Synced,
		"failures", len(report.Failures))

	return report, nil
}

func (r *Reconciler) fail(report *PassReport, stage, entityID string, err error) {
	report.Failures = append(report.Failures, StageFailure{
		Stage:    stage,
		EntityID: entityID,
		Error:    err.Error(),
	})
	r.logger.Warn("Stage failed for entity",
		"stage", stage,
		"entity_id", entityID,
		"error", err)
}

// convertStage turns every proposed opportunity into a proposal, highest
// priority first.
func (r *Reconciler) convertStage(ctx context.Context, report *PassReport) error {
	opportunities, err := r.repo.ListOpportunities(ctx)
	if err != nil {
		return fmt.Errorf("list opportunities: %w", err)
	}

	var pending []*lifecycle.Opportunity
	for _, o := range opportunities {
		if o.Status == lifecycle.OpportunityProposed {
			pending = append(pending, o)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Priority > pending[j].Priority
	})

	for _, o := range pending {
		if _, err := r.stages.Converter.Convert(ctx, o.ID); err != nil {
			r.fail(report, "convert", o.ID, err)
			continue
		}
		report.Converted++
	}
	return nil
}

func (r *Reconciler) vetStage(ctx context.Context, report *PassReport) error {
	proposals, err := r.repo.ListProposals(ctx)
	if err != nil {
		return fmt.Errorf("list proposals: %w", err)
	}

	for _, p := range proposals {
		if p.Status != lifecycle.StatusProposed {
			continue
		}
		if _, err := r.stages.Vetter.VetProposal(ctx, p.ID); err != nil {
			r.fail(report, "vet", p.ID, err)
			continue
		}
		report.Vetted++
	}
	return nil
}

// implementStage drives every freshly-approved proposal through a full
// implementation record. Proposals whose implementation already exists
// (including failed ones awaiting manual attention) are left alone.
func (r *Reconciler) implementStage(ctx context.Context, report *PassReport) error {
	proposals, err := r.repo.ListProposals(ctx)
	if err != nil {
		return fmt.Errorf("list proposals: %w", err)
	}

	for _, p := range proposals {
		if p.Status != lifecycle.StatusApproved || p.ImplementationStatus != lifecycle.ImplStatusNotStarted {
			continue
		}

		impl, err := r.stages.Implementer.StartImplementation(ctx, p.ID)
		if err != nil {
			r.fail(report, "implement", p.ID, err)
			continue
		}
		if err := r.stages.Implementer.UpdateProgress(ctx, impl.ID, 100); err != nil {
			r.fail(report, "implement", p.ID, err)
			continue
		}
		summary := fmt.Sprintf("Applied %q to the architecture model", p.Title)
		if err := r.stages.Implementer.CompleteImplementation(ctx, impl.ID, summary); err != nil {
			r.fail(report, "implement", p.ID, err)
			continue
		}
		report.Implemented++
	}
	return nil
}

func (r *Reconciler) validateStage(ctx context.Context, report *PassReport) error {
	proposals, err := r.repo.ListProposals(ctx)
	if err != nil {
		return fmt.Errorf("list proposals: %w", err)
	}

	for _, p := range proposals {
		if p.Status != lifecycle.StatusImplemented || p.ImplementationStatus != lifecycle.ImplStatusCompleted {
			continue
		}

		impl, _, err := r.repo.GetImplementationByProposal(ctx, p.ID)
		if err != nil {
			r.fail(report, "validate", p.ID, err)
			continue
		}
		result, err := r.stages.Validator.ValidateImplementation(ctx, impl.ID)
		if err != nil {
			r.fail(report, "validate", p.ID, err)
			continue
		}
		if result.Passed {
			report.Validated++
		}
	}
	return nil
}

// syncStage publishes everything the router reports ready. The guardrail
// re-derives the predicate inside the sync call; the queue is advisory.
func (r *Reconciler) syncStage(ctx context.Context, report *PassReport) error {
	ready, err := r.stages.Router.ReadyToSync(ctx)
	if err != nil {
		return fmt.Errorf("ready to sync: %w", err)
	}

	for _, p := range ready {
		section := p.TargetSection
		if section == "" {
			section, err = r.stages.Router.MapProposalToSection(ctx, p.ID)
			if err != nil {
				r.fail(report, "sync", p.ID, err)
				continue
			}
		}
		if _, err := r.stages.Syncer.SyncToArchitecture(ctx, p.ID, section); err != nil {
			r.fail(report, "sync", p.ID, err)
			continue
		}
		report.Synced++
	}
	return nil
}
