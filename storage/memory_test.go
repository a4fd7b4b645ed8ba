package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/c360studio/archon/lifecycle"
)

func TestMemoryStoreProposals(t *testing.T) {
	ctx := context.Background()

	t.Run("create assigns ID and defaults", func(t *testing.T) {
		store := NewMemoryStore()
		p := &lifecycle.Proposal{Title: "Add rate limiting", Category: "api"}
		if err := store.CreateProposal(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
		if p.ID == "" {
			t.Fatal("expected ID to be assigned")
		}
		if p.Status != lifecycle.StatusProposed {
			t.Errorf("expected status proposed, got %s", p.Status)
		}
		if p.ImplementationStatus != lifecycle.ImplStatusNotStarted {
			t.Errorf("expected impl status not_started, got %s", p.ImplementationStatus)
		}
	})

	t.Run("get returns revision", func(t *testing.T) {
		store := NewMemoryStore()
		p := &lifecycle.Proposal{Title: "Test"}
		if err := store.CreateProposal(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
		got, revision, err := store.GetProposal(ctx, p.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if revision == 0 {
			t.Error("expected non-zero revision")
		}
		if got.Title != "Test" {
			t.Errorf("unexpected title: %s", got.Title)
		}
	})

	t.Run("get unknown returns ErrNotFound", func(t *testing.T) {
		store := NewMemoryStore()
		_, _, err := store.GetProposal(ctx, "proposal:missing")
		if !errors.Is(err, lifecycle.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("stale revision update fails", func(t *testing.T) {
		store := NewMemoryStore()
		p := &lifecycle.Proposal{Title: "Test"}
		if err := store.CreateProposal(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
		first, revision, err := store.GetProposal(ctx, p.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}

		// First writer wins
		first.Status = lifecycle.StatusUnderReview
		if err := store.UpdateProposal(ctx, first, revision); err != nil {
			t.Fatalf("first update: %v", err)
		}

		// Second writer holds the stale revision and must lose
		first.Status = lifecycle.StatusRejected
		err = store.UpdateProposal(ctx, first, revision)
		if !errors.Is(err, lifecycle.ErrRevisionConflict) {
			t.Errorf("expected ErrRevisionConflict, got %v", err)
		}

		got, _, err := store.GetProposal(ctx, p.ID)
		if err != nil {
			t.Fatalf("get after conflict: %v", err)
		}
		if got.Status != lifecycle.StatusUnderReview {
			t.Errorf("expected under_review after losing write, got %s", got.Status)
		}
	})
}

func TestMemoryStorePublishedEdges(t *testing.T) {
	ctx := context.Background()

	t.Run("second publish fails with ErrAlreadyExists", func(t *testing.T) {
		store := NewMemoryStore()
		p := &lifecycle.Proposal{Title: "Test"}
		if err := store.CreateProposal(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}

		edge := &lifecycle.PublishedEdge{ProposalID: p.ID, TargetSection: "API Design"}
		if err := store.CreatePublishedEdge(ctx, edge); err != nil {
			t.Fatalf("first publish: %v", err)
		}

		dup := &lifecycle.PublishedEdge{ProposalID: p.ID, TargetSection: "API Design"}
		err := store.CreatePublishedEdge(ctx, dup)
		if !errors.Is(err, lifecycle.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}

		edges, err := store.ListPublishedEdges(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(edges) != 1 {
			t.Errorf("expected exactly 1 edge, got %d", len(edges))
		}
	})

	t.Run("get returns stored edge", func(t *testing.T) {
		store := NewMemoryStore()
		p := &lifecycle.Proposal{Title: "Test"}
		if err := store.CreateProposal(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
		edge := &lifecycle.PublishedEdge{ProposalID: p.ID, TargetSection: "Data Architecture"}
		if err := store.CreatePublishedEdge(ctx, edge); err != nil {
			t.Fatalf("publish: %v", err)
		}
		got, err := store.GetPublishedEdge(ctx, p.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.TargetSection != "Data Architecture" {
			t.Errorf("unexpected section: %s", got.TargetSection)
		}
		if got.SyncedAt.IsZero() {
			t.Error("expected SyncedAt to be set")
		}
	})
}

func TestMemoryStoreLinkedRecords(t *testing.T) {
	ctx := context.Background()

	t.Run("implementation lookup by proposal", func(t *testing.T) {
		store := NewMemoryStore()
		p := &lifecycle.Proposal{Title: "Test"}
		if err := store.CreateProposal(ctx, p); err != nil {
			t.Fatalf("create proposal: %v", err)
		}

		_, _, err := store.GetImplementationByProposal(ctx, p.ID)
		if !errors.Is(err, lifecycle.ErrNotFound) {
			t.Fatalf("expected ErrNotFound before create, got %v", err)
		}

		impl := &lifecycle.Implementation{ProposalID: p.ID, Progress: 0}
		if err := store.CreateImplementation(ctx, impl); err != nil {
			t.Fatalf("create implementation: %v", err)
		}

		got, revision, err := store.GetImplementationByProposal(ctx, p.ID)
		if err != nil {
			t.Fatalf("get by proposal: %v", err)
		}
		if got.ID != impl.ID {
			t.Errorf("expected %s, got %s", impl.ID, got.ID)
		}
		if revision == 0 {
			t.Error("expected non-zero revision")
		}
	})

	t.Run("vettings are append-only per proposal", func(t *testing.T) {
		store := NewMemoryStore()
		p := &lifecycle.Proposal{Title: "Test"}
		if err := store.CreateProposal(ctx, p); err != nil {
			t.Fatalf("create proposal: %v", err)
		}

		for _, rec := range []lifecycle.Recommendation{
			lifecycle.RecommendReject,
			lifecycle.RecommendApprove,
		} {
			v := &lifecycle.Vetting{ProposalID: p.ID, Recommendation: rec, VettedBy: "archon-vetter"}
			if err := store.CreateVetting(ctx, v); err != nil {
				t.Fatalf("create vetting: %v", err)
			}
		}

		vettings, err := store.ListVettingsByProposal(ctx, p.ID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(vettings) != 2 {
			t.Fatalf("expected 2 vettings, got %d", len(vettings))
		}
	})
}
