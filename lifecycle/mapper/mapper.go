// Package mapper converts externally-discovered opportunities into proposals
// and assigns the architecture document section each proposal publishes into.
// Section matching is a fixed ordered keyword table; it is routing policy,
// not part of the publish invariant.
package mapper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/archon/lifecycle"
	"github.com/c360studio/archon/lifecycle/guardrail"
)

// DefaultSection is assigned when no keyword rule matches.
const DefaultSection = "System Overview"

// sectionRule maps a category's keyword set to its architecture section.
// Rules are evaluated in order; the first match wins.
type sectionRule struct {
	category string
	section  string
	keywords []string
}

// sectionRules is the fixed ordered matching table.
var sectionRules = []sectionRule{
	{"api", "API Design", []string{"api", "endpoint", "rest", "graphql", "route"}},
	{"database", "Data Architecture", []string{"database", "schema", "migration", "sql", "query"}},
	{"security", "Security Architecture", []string{"security", "auth", "encrypt", "credential", "token"}},
	{"deployment", "Deployment Architecture", []string{"deploy", "rollout", "release", "kubernetes", "container"}},
	{"agent-coordination", "Agent Coordination", []string{"agent", "orchestrat", "coordination", "delegation"}},
	{"memory", "Memory Systems", []string{"memory", "cache", "caching", "recall", "retention"}},
	{"frontend", "Frontend Architecture", []string{"frontend", "react", "browser", "web client"}},
	{"monitoring", "Monitoring & Observability", []string{"monitor", "metric", "alert", "observab", "logging", "tracing", "dashboard"}},
}

// MatchSection assigns an architecture section to free text using the
// ordered keyword table. Unmatched text goes to DefaultSection.
func MatchSection(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range sectionRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.section
			}
		}
	}
	return DefaultSection
}

// CategoryFor classifies free text into a proposal category using the same
// ordered table as MatchSection. Unmatched text yields an empty category.
func CategoryFor(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range sectionRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return ""
}

// Guard is the slice of the guardrail enforcer the mapper consults when
// assembling the sync work queue.
type Guard interface {
	CanSyncToArchitecture(ctx context.Context, proposalID string) (guardrail.Decision, error)
}

// Mapper converts opportunities and routes proposals to sections.
type Mapper struct {
	repo   lifecycle.Repository
	guard  Guard
	logger *slog.Logger
}

// NewMapper creates a mapper over the given repository. The guard keeps
// ReadyToSync in exact agreement with the enforcer's sync decisions.
func NewMapper(repo lifecycle.Repository, guard Guard) *Mapper {
	return &Mapper{
		repo:   repo,
		guard:  guard,
		logger: slog.Default(),
	}
}

// SetLogger sets the logger for the mapper.
func (m *Mapper) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Convert creates a proposal from an opportunity and marks the opportunity
// converted. The opportunity must still be in proposed state. The new
// proposal starts at status proposed with its category and target section
// derived from the opportunity's text (the scanner's suggested section, if
// any, takes precedence).
func (m *Mapper) Convert(ctx context.Context, opportunityID string) (*lifecycle.Proposal, error) {
	o, revision, err := m.repo.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("get opportunity %s: %w", opportunityID, err)
	}

	if o.Status != lifecycle.OpportunityProposed {
		return nil, &lifecycle.PreconditionError{
			Operation: "opportunity conversion",
			Required:  string(lifecycle.OpportunityProposed),
			Actual:    string(o.Status),
		}
	}

	text := o.Kind + " " + o.Description
	section := o.SuggestedSection
	if section == "" {
		section = MatchSection(text)
	}

	p := &lifecycle.Proposal{
		Title:         titleFor(o),
		Description:   o.Description,
		Category:      CategoryFor(text),
		TargetSection: section,
		OpportunityID: o.ID,
	}
	if err := m.repo.CreateProposal(ctx, p); err != nil {
		return nil, fmt.Errorf("create proposal: %w", err)
	}

	o.Status = lifecycle.OpportunityConverted
	o.ProposalID = p.ID
	if err := m.repo.UpdateOpportunity(ctx, o, revision); err != nil {
		return nil, fmt.Errorf("mark opportunity converted: %w", err)
	}

	m.logger.Info("Opportunity converted",
		"opportunity_id", opportunityID,
		"proposal_id", p.ID,
		"target_section", section)

	return p, nil
}

// MapProposalToSection assigns and persists a proposal's target section from
// its title and description. The assignment is deterministic.
func (m *Mapper) MapProposalToSection(ctx context.Context, proposalID string) (string, error) {
	p, revision, err := m.repo.GetProposal(ctx, proposalID)
	if err != nil {
		return "", fmt.Errorf("get proposal %s: %w", proposalID, err)
	}

	section := MatchSection(p.Title + " " + p.Description)
	if p.TargetSection == section {
		return section, nil
	}

	p.TargetSection = section
	if err := m.repo.UpdateProposal(ctx, p, revision); err != nil {
		return "", fmt.Errorf("persist target section: %w", err)
	}

	m.logger.Debug("Proposal mapped to section",
		"proposal_id", proposalID,
		"target_section", section)

	return section, nil
}

// ReadyToSync returns the validated proposals that do not yet have a
// published edge. This is the orchestrator's sync work queue; every
// returned proposal would be approved by the guardrail's check.
func (m *Mapper) ReadyToSync(ctx context.Context) ([]*lifecycle.Proposal, error) {
	proposals, err := m.repo.ListProposals(ctx)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}

	var ready []*lifecycle.Proposal
	for _, p := range proposals {
		if p.Status != lifecycle.StatusValidated {
			continue
		}
		if _, err := m.repo.GetPublishedEdge(ctx, p.ID); !errors.Is(err, lifecycle.ErrNotFound) {
			continue
		}
		if m.guard != nil {
			decision, err := m.guard.CanSyncToArchitecture(ctx, p.ID)
			if err != nil || !decision.Allowed {
				continue
			}
		}
		ready = append(ready, p)
	}
	return ready, nil
}

// DismissOpportunity closes an opportunity without converting it.
func (m *Mapper) DismissOpportunity(ctx context.Context, opportunityID string) error {
	o, revision, err := m.repo.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return fmt.Errorf("get opportunity %s: %w", opportunityID, err)
	}

	if o.Status != lifecycle.OpportunityProposed {
		return &lifecycle.PreconditionError{
			Operation: "opportunity dismissal",
			Required:  string(lifecycle.OpportunityProposed),
			Actual:    string(o.Status),
		}
	}

	o.Status = lifecycle.OpportunityAddressed
	if err := m.repo.UpdateOpportunity(ctx, o, revision); err != nil {
		return fmt.Errorf("mark opportunity addressed: %w", err)
	}

	m.logger.Info("Opportunity dismissed", "opportunity_id", opportunityID)
	return nil
}

// titleFor derives a proposal title from an opportunity's kind and
// description.
func titleFor(o *lifecycle.Opportunity) string {
	kind := strings.ReplaceAll(o.Kind, "_", " ")
	if kind == "" {
		kind = "improvement"
	}
	desc := o.Description
	if r := []rune(desc); len(r) > 72 {
		desc = strings.TrimSpace(string(r[:72])) + "..."
	}
	if desc == "" {
		return "Address " + kind
	}
	return fmt.Sprintf("Address %s: %s", kind, desc)
}
