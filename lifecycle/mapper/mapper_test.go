package mapper

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/c360studio/archon/lifecycle"
	"github.com/c360studio/archon/lifecycle/guardrail"
	"github.com/c360studio/archon/lifecycle/implement"
	"github.com/c360studio/archon/lifecycle/validation"
	"github.com/c360studio/archon/storage"
)

func TestMatchSection(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"api keyword", "Add a new REST endpoint for billing", "API Design"},
		{"database keyword", "Migration to split the orders schema", "Data Architecture"},
		{"security keyword", "Rotate auth tokens automatically", "Security Architecture"},
		{"deployment keyword", "Stage the rollout across regions", "Deployment Architecture"},
		{"agent keyword", "Improve agent handoff protocol", "Agent Coordination"},
		{"memory keyword", "Add a read-through cache", "Memory Systems"},
		{"frontend keyword", "Rework the frontend state handling", "Frontend Architecture"},
		{"monitoring keyword", "Wire latency metrics into alerts", "Monitoring & Observability"},
		{"no match falls back", "Document the team onboarding flow", DefaultSection},
		{"first match wins", "Secure the API endpoint", "API Design"},
		{"case insensitive", "DATABASE cleanup", "Data Architecture"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := MatchSection(tc.text); got != tc.want {
				t.Errorf("MatchSection(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func TestTitleFor(t *testing.T) {
	t.Run("short description passes through", func(t *testing.T) {
		got := titleFor(&lifecycle.Opportunity{Kind: "missing_section", Description: "Add a caching note"})
		if got != "Address missing section: Add a caching note" {
			t.Errorf("title = %q", got)
		}
	})

	t.Run("long description truncates on a rune boundary", func(t *testing.T) {
		got := titleFor(&lifecycle.Opportunity{
			Kind:        "stale_content",
			Description: strings.Repeat("ü", 80),
		})
		if !utf8.ValidString(got) {
			t.Errorf("title is not valid UTF-8: %q", got)
		}
		if !strings.HasSuffix(got, "...") {
			t.Errorf("expected truncated title, got %q", got)
		}
	})
}

func TestConvert(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a linked proposal and marks the opportunity", func(t *testing.T) {
		repo := storage.NewMemoryStore()
		m := NewMapper(repo, nil)

		o := &lifecycle.Opportunity{
			Kind:        "missing_section",
			Description: "The deployment rollout process is undocumented",
			Priority:    3,
		}
		if err := repo.CreateOpportunity(ctx, o); err != nil {
			t.Fatalf("create opportunity: %v", err)
		}

		p, err := m.Convert(ctx, o.ID)
		if err != nil {
			t.Fatalf("convert: %v", err)
		}
		if p.Status != lifecycle.StatusProposed {
			t.Errorf("expected proposed, got %s", p.Status)
		}
		if p.ImplementationStatus != lifecycle.ImplStatusNotStarted {
			t.Errorf("expected not_started, got %s", p.ImplementationStatus)
		}
		if p.OpportunityID != o.ID {
			t.Errorf("expected link to %s, got %s", o.ID, p.OpportunityID)
		}
		if p.TargetSection != "Deployment Architecture" {
			t.Errorf("unexpected section: %s", p.TargetSection)
		}
		if p.Category != "deployment" {
			t.Errorf("unexpected category: %s", p.Category)
		}

		got, _, err := repo.GetOpportunity(ctx, o.ID)
		if err != nil {
			t.Fatalf("get opportunity: %v", err)
		}
		if got.Status != lifecycle.OpportunityConverted {
			t.Errorf("expected converted, got %s", got.Status)
		}
		if got.ProposalID != p.ID {
			t.Errorf("expected proposal link %s, got %s", p.ID, got.ProposalID)
		}
	})

	t.Run("suggested section takes precedence", func(t *testing.T) {
		repo := storage.NewMemoryStore()
		m := NewMapper(repo, nil)

		o := &lifecycle.Opportunity{
			Kind:             "stale_content",
			Description:      "Database section references the retired cluster",
			SuggestedSection: "Data Architecture",
		}
		if err := repo.CreateOpportunity(ctx, o); err != nil {
			t.Fatalf("create: %v", err)
		}

		p, err := m.Convert(ctx, o.ID)
		if err != nil {
			t.Fatalf("convert: %v", err)
		}
		if p.TargetSection != "Data Architecture" {
			t.Errorf("expected suggested section, got %s", p.TargetSection)
		}
	})

	t.Run("double conversion is rejected", func(t *testing.T) {
		repo := storage.NewMemoryStore()
		m := NewMapper(repo, nil)

		o := &lifecycle.Opportunity{Kind: "inconsistency", Description: "Stale diagram"}
		if err := repo.CreateOpportunity(ctx, o); err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := m.Convert(ctx, o.ID); err != nil {
			t.Fatalf("first convert: %v", err)
		}

		_, err := m.Convert(ctx, o.ID)
		var precondition *lifecycle.PreconditionError
		if !errors.As(err, &precondition) {
			t.Fatalf("expected PreconditionError, got %v", err)
		}

		proposals, _ := repo.ListProposals(ctx)
		if len(proposals) != 1 {
			t.Errorf("expected 1 proposal, got %d", len(proposals))
		}
	})
}

func TestMapProposalToSection(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns and persists the section", func(t *testing.T) {
		repo := storage.NewMemoryStore()
		m := NewMapper(repo, nil)

		p := &lifecycle.Proposal{Title: "Tighten credential storage", Description: "Move secrets into the vault"}
		if err := repo.CreateProposal(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}

		section, err := m.MapProposalToSection(ctx, p.ID)
		if err != nil {
			t.Fatalf("map: %v", err)
		}
		if section != "Security Architecture" {
			t.Errorf("unexpected section: %s", section)
		}

		got, _, _ := repo.GetProposal(ctx, p.ID)
		if got.TargetSection != "Security Architecture" {
			t.Errorf("section not persisted, got %q", got.TargetSection)
		}
	})

	t.Run("mapping is deterministic across calls", func(t *testing.T) {
		repo := storage.NewMemoryStore()
		m := NewMapper(repo, nil)

		p := &lifecycle.Proposal{Title: "Add query caching", Description: "Cache hot queries"}
		if err := repo.CreateProposal(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}

		first, err := m.MapProposalToSection(ctx, p.ID)
		if err != nil {
			t.Fatalf("map: %v", err)
		}
		second, err := m.MapProposalToSection(ctx, p.ID)
		if err != nil {
			t.Fatalf("second map: %v", err)
		}
		if first != second {
			t.Errorf("mapping not deterministic: %q then %q", first, second)
		}
	})
}

func TestReadyToSync(t *testing.T) {
	ctx := context.Background()

	// Drive one proposal to validated, one to approved, and publish a third;
	// only the validated, unpublished one is ready.
	repo := storage.NewMemoryStore()
	machine := lifecycle.NewMachine(repo)
	impl := implement.NewImplementer(repo, machine)
	validator := validation.NewValidator(repo, machine)
	enforcer := guardrail.NewEnforcer(repo, machine)
	m := NewMapper(repo, enforcer)

	toValidated := func(t *testing.T, title string) *lifecycle.Proposal {
		t.Helper()
		p := &lifecycle.Proposal{Title: title, TargetSection: "API Design"}
		if err := repo.CreateProposal(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
		for _, target := range []lifecycle.Status{lifecycle.StatusUnderReview, lifecycle.StatusApproved} {
			if _, err := machine.Transition(ctx, p.ID, target, ""); err != nil {
				t.Fatalf("transition: %v", err)
			}
		}
		rec, err := impl.StartImplementation(ctx, p.ID)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		if err := impl.UpdateProgress(ctx, rec.ID, 100); err != nil {
			t.Fatalf("progress: %v", err)
		}
		if err := impl.CompleteImplementation(ctx, rec.ID, "done"); err != nil {
			t.Fatalf("complete: %v", err)
		}
		if _, err := validator.ValidateImplementation(ctx, rec.ID); err != nil {
			t.Fatalf("validate: %v", err)
		}
		return p
	}

	pending := toValidated(t, "Pending publish")
	published := toValidated(t, "Already published")
	if _, err := enforcer.SyncToArchitecture(ctx, published.ID, ""); err != nil {
		t.Fatalf("sync: %v", err)
	}

	notReady := &lifecycle.Proposal{Title: "Still proposed"}
	if err := repo.CreateProposal(ctx, notReady); err != nil {
		t.Fatalf("create: %v", err)
	}

	ready, err := m.ReadyToSync(ctx)
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	if len(ready) != 1 {
		t.Fatalf("expected 1 ready proposal, got %d", len(ready))
	}
	if ready[0].ID != pending.ID {
		t.Errorf("expected %s, got %s", pending.ID, ready[0].ID)
	}

	// The queue must agree with the enforcer's own decision.
	decision, err := enforcer.CanSyncToArchitecture(ctx, ready[0].ID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !decision.Allowed {
		t.Errorf("ready proposal refused by guardrail: %s", decision.Reason)
	}
}

func TestDismissOpportunity(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryStore()
	m := NewMapper(repo, nil)

	o := &lifecycle.Opportunity{Kind: "stale_content", Description: "Old diagram"}
	if err := repo.CreateOpportunity(ctx, o); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := m.DismissOpportunity(ctx, o.ID); err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	got, _, _ := repo.GetOpportunity(ctx, o.ID)
	if got.Status != lifecycle.OpportunityAddressed {
		t.Errorf("expected addressed, got %s", got.Status)
	}

	// A dismissed opportunity cannot be converted.
	if _, err := m.Convert(ctx, o.ID); err == nil {
		t.Error("expected conversion of dismissed opportunity to fail")
	}
}
