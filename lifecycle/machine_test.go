package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memRepo is a minimal in-process Repository covering what Machine touches.
// The full store implementations live in the storage package; this fake
// keeps the machine tests free of that dependency.
type memRepo struct {
	mu        sync.Mutex
	proposals map[string]*memProposal
}

type memProposal struct {
	p        Proposal
	revision uint64
}

func newMemRepo() *memRepo {
	return &memRepo{proposals: make(map[string]*memProposal)}
}

func (r *memRepo) CreateProposal(_ context.Context, p *Proposal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = "proposal:" + time.Now().Format("150405.000000000")
	}
	if p.Status == "" {
		p.Status = StatusProposed
	}
	if p.ImplementationStatus == "" {
		p.ImplementationStatus = ImplStatusNotStarted
	}
	r.proposals[p.ID] = &memProposal{p: *p, revision: 1}
	return nil
}

func (r *memRepo) GetProposal(_ context.Context, id string) (*Proposal, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.proposals[id]
	if !ok {
		return nil, 0, ErrNotFound
	}
	p := entry.p
	p.StatusHistory = append([]StatusChange(nil), entry.p.StatusHistory...)
	return &p, entry.revision, nil
}

func (r *memRepo) UpdateProposal(_ context.Context, p *Proposal, revision uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.proposals[p.ID]
	if !ok {
		return ErrNotFound
	}
	if entry.revision != revision {
		return ErrRevisionConflict
	}
	entry.p = *p
	entry.revision++
	return nil
}

func (r *memRepo) ListProposals(_ context.Context) ([]*Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Proposal
	for _, entry := range r.proposals {
		p := entry.p
		out = append(out, &p)
	}
	return out, nil
}

// Unused surface of the Repository interface.
func (r *memRepo) CreateOpportunity(context.Context, *Opportunity) error { return nil }
func (r *memRepo) GetOpportunity(context.Context, string) (*Opportunity, uint64, error) {
	return nil, 0, ErrNotFound
}
func (r *memRepo) UpdateOpportunity(context.Context, *Opportunity, uint64) error { return nil }
func (r *memRepo) ListOpportunities(context.Context) ([]*Opportunity, error)     { return nil, nil }
func (r *memRepo) CreateVetting(context.Context, *Vetting) error                 { return nil }
func (r *memRepo) ListVettingsByProposal(context.Context, string) ([]*Vetting, error) {
	return nil, nil
}
func (r *memRepo) CreateImplementation(context.Context, *Implementation) error { return nil }
func (r *memRepo) GetImplementation(context.Context, string) (*Implementation, uint64, error) {
	return nil, 0, ErrNotFound
}
func (r *memRepo) UpdateImplementation(context.Context, *Implementation, uint64) error { return nil }
func (r *memRepo) GetImplementationByProposal(context.Context, string) (*Implementation, uint64, error) {
	return nil, 0, ErrNotFound
}
func (r *memRepo) CreateValidation(context.Context, *Validation) error { return nil }
func (r *memRepo) ListValidationsByImplementation(context.Context, string) ([]*Validation, error) {
	return nil, nil
}
func (r *memRepo) CreatePublishedEdge(context.Context, *PublishedEdge) error { return nil }
func (r *memRepo) GetPublishedEdge(context.Context, string) (*PublishedEdge, error) {
	return nil, ErrNotFound
}
func (r *memRepo) ListPublishedEdges(context.Context) ([]*PublishedEdge, error) { return nil, nil }

func TestMachineTransition(t *testing.T) {
	ctx := context.Background()

	t.Run("legal edge succeeds and records history", func(t *testing.T) {
		repo := newMemRepo()
		machine := NewMachine(repo)
		p := &Proposal{Title: "Add caching"}
		if err := repo.CreateProposal(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}

		result, err := machine.Transition(ctx, p.ID, StatusUnderReview, "vetting started")
		if err != nil {
			t.Fatalf("transition: %v", err)
		}
		if result.PreviousState != StatusProposed {
			t.Errorf("expected previous proposed, got %s", result.PreviousState)
		}
		if result.NewState != StatusUnderReview {
			t.Errorf("expected new under_review, got %s", result.NewState)
		}

		got, _, _ := repo.GetProposal(ctx, p.ID)
		if got.Status != StatusUnderReview {
			t.Errorf("expected under_review, got %s", got.Status)
		}
		if len(got.StatusHistory) != 1 {
			t.Fatalf("expected 1 history entry, got %d", len(got.StatusHistory))
		}
		entry := got.StatusHistory[0]
		if entry.From != StatusProposed || entry.To != StatusUnderReview {
			t.Errorf("unexpected history entry: %+v", entry)
		}
		if entry.Note != "vetting started" {
			t.Errorf("note not recorded: %q", entry.Note)
		}
	})

	t.Run("illegal edge leaves state unchanged", func(t *testing.T) {
		repo := newMemRepo()
		machine := NewMachine(repo)
		p := &Proposal{Title: "Add caching"}
		if err := repo.CreateProposal(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}

		_, err := machine.Transition(ctx, p.ID, StatusSynced, "")
		var invalid *InvalidTransitionError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidTransitionError, got %v", err)
		}
		if invalid.From != StatusProposed || invalid.To != StatusSynced {
			t.Errorf("unexpected edge in error: %s → %s", invalid.From, invalid.To)
		}

		got, _, _ := repo.GetProposal(ctx, p.ID)
		if got.Status != StatusProposed {
			t.Errorf("state changed after illegal transition: %s", got.Status)
		}
		if len(got.StatusHistory) != 0 {
			t.Errorf("history written after illegal transition: %v", got.StatusHistory)
		}
	})

	t.Run("unknown proposal returns ErrNotFound", func(t *testing.T) {
		machine := NewMachine(newMemRepo())
		_, err := machine.Transition(ctx, "proposal:missing", StatusUnderReview, "")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("unknown target status is rejected", func(t *testing.T) {
		machine := NewMachine(newMemRepo())
		if _, err := machine.Transition(ctx, "proposal:x", Status("bogus"), ""); err == nil {
			t.Error("expected error for unknown status")
		}
	})

	t.Run("concurrent transitions on one proposal cannot both win", func(t *testing.T) {
		repo := newMemRepo()
		machine := NewMachine(repo)
		p := &Proposal{Title: "Add caching"}
		if err := repo.CreateProposal(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := machine.Transition(ctx, p.ID, StatusUnderReview, ""); err != nil {
			t.Fatalf("setup transition: %v", err)
		}

		// Both goroutines race the same under_review proposal toward
		// different sinks. Exactly one transition can be applied; the
		// loser fails either on edge legality or on the conditional write.
		var wg sync.WaitGroup
		outcomes := make(chan error, 2)
		for _, target := range []Status{StatusApproved, StatusRejected} {
			wg.Add(1)
			go func(target Status) {
				defer wg.Done()
				_, err := machine.Transition(ctx, p.ID, target, "")
				outcomes <- err
			}(target)
		}
		wg.Wait()
		close(outcomes)

		var failures int
		for err := range outcomes {
			if err != nil {
				failures++
			}
		}
		if failures != 1 {
			t.Fatalf("expected exactly one loser, got %d failures", failures)
		}

		got, _, _ := repo.GetProposal(ctx, p.ID)
		if got.Status != StatusApproved && got.Status != StatusRejected {
			t.Errorf("unexpected final state: %s", got.Status)
		}
		if len(got.StatusHistory) != 2 {
			t.Errorf("expected exactly 2 transitions applied, got %d", len(got.StatusHistory))
		}
	})
}

func TestMachineCanTransition(t *testing.T) {
	machine := NewMachine(newMemRepo())

	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusProposed, StatusUnderReview, true},
		{StatusValidated, StatusSynced, true},
		{StatusProposed, StatusSynced, false},
		{StatusSynced, StatusProposed, false},
		{Status("bogus"), StatusProposed, false},
		{StatusProposed, Status("bogus"), false},
	}

	for _, tc := range tests {
		if got := machine.CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTransitionImplementationStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("legal chain advances", func(t *testing.T) {
		repo := newMemRepo()
		machine := NewMachine(repo)
		p := &Proposal{Title: "Add caching"}
		if err := repo.CreateProposal(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}

		for _, target := range []ImplStatus{ImplStatusInProgress, ImplStatusCompleted, ImplStatusValidated} {
			if err := machine.TransitionImplementationStatus(ctx, p.ID, target); err != nil {
				t.Fatalf("transition to %s: %v", target, err)
			}
		}

		got, _, _ := repo.GetProposal(ctx, p.ID)
		if got.ImplementationStatus != ImplStatusValidated {
			t.Errorf("expected validated, got %s", got.ImplementationStatus)
		}
	})

	t.Run("same-state transition is a no-op", func(t *testing.T) {
		repo := newMemRepo()
		machine := NewMachine(repo)
		p := &Proposal{Title: "Add caching"}
		if err := repo.CreateProposal(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}

		if err := machine.TransitionImplementationStatus(ctx, p.ID, ImplStatusNotStarted); err != nil {
			t.Fatalf("no-op transition: %v", err)
		}
	})

	t.Run("illegal edge is rejected", func(t *testing.T) {
		repo := newMemRepo()
		machine := NewMachine(repo)
		p := &Proposal{Title: "Add caching"}
		if err := repo.CreateProposal(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}

		err := machine.TransitionImplementationStatus(ctx, p.ID, ImplStatusValidated)
		var precondition *PreconditionError
		if !errors.As(err, &precondition) {
			t.Fatalf("expected PreconditionError, got %v", err)
		}
	})
}
