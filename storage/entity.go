// Package storage provides the NATS KV implementation of the lifecycle
// repository. Each entity type lives in its own bucket; mutable entities are
// read with their KV revision and written with conditional updates so every
// mutation is a compare-and-set against the state the caller observed.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/archon/lifecycle"
)

// EntityType represents the type of entity stored in KV.
type EntityType string

const (
	EntityTypeOpportunity    EntityType = "opportunity"
	EntityTypeProposal       EntityType = "proposal"
	EntityTypeVetting        EntityType = "vetting"
	EntityTypeImplementation EntityType = "implementation"
	EntityTypeValidation     EntityType = "validation"
)

// Bucket names for each entity type.
const (
	BucketOpportunities   = "ARCHON_OPPORTUNITIES"
	BucketProposals       = "ARCHON_PROPOSALS"
	BucketVettings        = "ARCHON_VETTINGS"
	BucketImplementations = "ARCHON_IMPLEMENTATIONS"
	BucketValidations     = "ARCHON_VALIDATIONS"
	BucketPublished       = "ARCHON_PUBLISHED"
)

// EntityID represents a typed entity identifier.
type EntityID struct {
	Type EntityType
	ID   string
}

// String returns the string representation of the entity ID.
func (e EntityID) String() string {
	return fmt.Sprintf("%s:%s", e.Type, e.ID)
}

// ParseEntityID parses an entity ID string into its components.
func ParseEntityID(s string) (EntityID, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return EntityID{}, fmt.Errorf("invalid entity ID format: %s", s)
	}
	entityType := EntityType(parts[0])
	switch entityType {
	case EntityTypeOpportunity, EntityTypeProposal, EntityTypeVetting,
		EntityTypeImplementation, EntityTypeValidation:
		return EntityID{Type: entityType, ID: parts[1]}, nil
	default:
		return EntityID{}, fmt.Errorf("unknown entity type: %s", parts[0])
	}
}

// NewEntityID generates a new unique entity ID for the given type.
func NewEntityID(t EntityType) EntityID {
	return EntityID{
		Type: t,
		ID:   uuid.New().String(),
	}
}

// keyFor extracts the KV key (the uuid portion) of an entity ID string,
// verifying the type matches.
func keyFor(id string, want EntityType) (string, error) {
	parsed, err := ParseEntityID(id)
	if err != nil {
		return "", err
	}
	if parsed.Type != want {
		return "", fmt.Errorf("invalid entity type: expected %s, got %s", want, parsed.Type)
	}
	return parsed.ID, nil
}

// Store provides entity storage operations backed by NATS KV.
// It implements lifecycle.Repository.
type Store struct {
	opportunities   jetstream.KeyValue
	proposals       jetstream.KeyValue
	vettings        jetstream.KeyValue
	implementations jetstream.KeyValue
	validations     jetstream.KeyValue
	published       jetstream.KeyValue
}

// NewStore creates a new Store with the given JetStream context.
// It creates the necessary KV buckets if they don't exist.
func NewStore(ctx context.Context, js jetstream.JetStream) (*Store, error) {
	s := &Store{}
	for _, b := range []struct {
		name   string
		target *jetstream.KeyValue
	}{
		{BucketOpportunities, &s.opportunities},
		{BucketProposals, &s.proposals},
		{BucketVettings, &s.vettings},
		{BucketImplementations, &s.implementations},
		{BucketValidations, &s.validations},
		{BucketPublished, &s.published},
	} {
		kv, err := getOrCreateBucket(ctx, js, b.name)
		if err != nil {
			return nil, fmt.Errorf("create %s bucket: %w", strings.ToLower(b.name), err)
		}
		*b.target = kv
	}
	return s, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Archon %s storage", strings.ToLower(strings.TrimPrefix(name, "ARCHON_"))),
		History:     5, // Keep last 5 revisions
	})
}

// translateErr maps jetstream KV errors onto the lifecycle sentinels.
func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jetstream.ErrKeyNotFound):
		return lifecycle.ErrNotFound
	case errors.Is(err, jetstream.ErrKeyExists):
		return lifecycle.ErrAlreadyExists
	case strings.Contains(err.Error(), "wrong last sequence"):
		return lifecycle.ErrRevisionConflict
	default:
		return err
	}
}

// --- Opportunities ---

// CreateOpportunity creates a new opportunity, assigning its ID.
func (s *Store) CreateOpportunity(ctx context.Context, o *lifecycle.Opportunity) error {
	id := NewEntityID(EntityTypeOpportunity)
	o.ID = id.String()
	if o.Status == "" {
		o.Status = lifecycle.OpportunityProposed
	}
	if o.DiscoveredAt.IsZero() {
		o.DiscoveredAt = time.Now()
	}
	return s.create(ctx, s.opportunities, id.ID, o)
}

// GetOpportunity retrieves an opportunity and its revision.
func (s *Store) GetOpportunity(ctx context.Context, id string) (*lifecycle.Opportunity, uint64, error) {
	key, err := keyFor(id, EntityTypeOpportunity)
	if err != nil {
		return nil, 0, err
	}
	var o lifecycle.Opportunity
	revision, err := s.get(ctx, s.opportunities, key, &o)
	if err != nil {
		return nil, 0, fmt.Errorf("get opportunity: %w", err)
	}
	return &o, revision, nil
}

// UpdateOpportunity updates an opportunity conditionally on its revision.
func (s *Store) UpdateOpportunity(ctx context.Context, o *lifecycle.Opportunity, revision uint64) error {
	key, err := keyFor(o.ID, EntityTypeOpportunity)
	if err != nil {
		return err
	}
	return s.update(ctx, s.opportunities, key, o, revision)
}

// ListOpportunities returns all opportunities.
func (s *Store) ListOpportunities(ctx context.Context) ([]*lifecycle.Opportunity, error) {
	var out []*lifecycle.Opportunity
	err := s.scan(ctx, s.opportunities, func(data []byte) {
		var o lifecycle.Opportunity
		if json.Unmarshal(data, &o) == nil {
			out = append(out, &o)
		}
	})
	return out, err
}

// --- Proposals ---

// CreateProposal creates a new proposal, assigning its ID and timestamps.
func (s *Store) CreateProposal(ctx context.Context, p *lifecycle.Proposal) error {
	id := NewEntityID(EntityTypeProposal)
	p.ID = id.String()
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = lifecycle.StatusProposed
	}
	if p.ImplementationStatus == "" {
		p.ImplementationStatus = lifecycle.ImplStatusNotStarted
	}
	return s.create(ctx, s.proposals, id.ID, p)
}

// GetProposal retrieves a proposal and its revision.
func (s *Store) GetProposal(ctx context.Context, id string) (*lifecycle.Proposal, uint64, error) {
	key, err := keyFor(id, EntityTypeProposal)
	if err != nil {
		return nil, 0, err
	}
	var p lifecycle.Proposal
	revision, err := s.get(ctx, s.proposals, key, &p)
	if err != nil {
		return nil, 0, fmt.Errorf("get proposal: %w", err)
	}
	return &p, revision, nil
}

// UpdateProposal updates a proposal conditionally on its revision.
func (s *Store) UpdateProposal(ctx context.Context, p *lifecycle.Proposal, revision uint64) error {
	key, err := keyFor(p.ID, EntityTypeProposal)
	if err != nil {
		return err
	}
	p.UpdatedAt = time.Now()
	return s.update(ctx, s.proposals, key, p, revision)
}

// ListProposals returns all proposals.
func (s *Store) ListProposals(ctx context.Context) ([]*lifecycle.Proposal, error) {
	var out []*lifecycle.Proposal
	err := s.scan(ctx, s.proposals, func(data []byte) {
		var p lifecycle.Proposal
		if json.Unmarshal(data, &p) == nil {
			out = append(out, &p)
		}
	})
	return out, err
}

// --- Vettings ---

// CreateVetting creates a new immutable vetting record.
func (s *Store) CreateVetting(ctx context.Context, v *lifecycle.Vetting) error {
	id := NewEntityID(EntityTypeVetting)
	v.ID = id.String()
	if v.VettedAt.IsZero() {
		v.VettedAt = time.Now()
	}
	return s.create(ctx, s.vettings, id.ID, v)
}

// ListVettingsByProposal returns all vetting records for a proposal,
// oldest first.
func (s *Store) ListVettingsByProposal(ctx context.Context, proposalID string) ([]*lifecycle.Vetting, error) {
	var out []*lifecycle.Vetting
	err := s.scan(ctx, s.vettings, func(data []byte) {
		var v lifecycle.Vetting
		if json.Unmarshal(data, &v) == nil && v.ProposalID == proposalID {
			out = append(out, &v)
		}
	})
	sortByTime(out, func(v *lifecycle.Vetting) time.Time { return v.VettedAt })
	return out, err
}

// --- Implementations ---

// CreateImplementation creates a new implementation record.
func (s *Store) CreateImplementation(ctx context.Context, impl *lifecycle.Implementation) error {
	id := NewEntityID(EntityTypeImplementation)
	impl.ID = id.String()
	if impl.Status == "" {
		impl.Status = lifecycle.ImplementationInProgress
	}
	if impl.StartedAt.IsZero() {
		impl.StartedAt = time.Now()
	}
	return s.create(ctx, s.implementations, id.ID, impl)
}

// GetImplementation retrieves an implementation and its revision.
func (s *Store) GetImplementation(ctx context.Context, id string) (*lifecycle.Implementation, uint64, error) {
	key, err := keyFor(id, EntityTypeImplementation)
	if err != nil {
		return nil, 0, err
	}
	var impl lifecycle.Implementation
	revision, err := s.get(ctx, s.implementations, key, &impl)
	if err != nil {
		return nil, 0, fmt.Errorf("get implementation: %w", err)
	}
	return &impl, revision, nil
}

// UpdateImplementation updates an implementation conditionally on its revision.
func (s *Store) UpdateImplementation(ctx context.Context, impl *lifecycle.Implementation, revision uint64) error {
	key, err := keyFor(impl.ID, EntityTypeImplementation)
	if err != nil {
		return err
	}
	return s.update(ctx, s.implementations, key, impl, revision)
}

// GetImplementationByProposal returns the implementation linked to a
// proposal, or lifecycle.ErrNotFound when none exists.
func (s *Store) GetImplementationByProposal(ctx context.Context, proposalID string) (*lifecycle.Implementation, uint64, error) {
	keys, err := s.implementations.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, 0, lifecycle.ErrNotFound
		}
		return nil, 0, fmt.Errorf("list implementation keys: %w", err)
	}

	for _, key := range keys {
		entry, err := s.implementations.Get(ctx, key)
		if err != nil {
			continue
		}
		var impl lifecycle.Implementation
		if err := json.Unmarshal(entry.Value(), &impl); err != nil {
			continue
		}
		if impl.ProposalID == proposalID {
			return &impl, entry.Revision(), nil
		}
	}

	return nil, 0, lifecycle.ErrNotFound
}

// --- Validations ---

// CreateValidation creates a new append-only validation record.
func (s *Store) CreateValidation(ctx context.Context, v *lifecycle.Validation) error {
	id := NewEntityID(EntityTypeValidation)
	v.ID = id.String()
	if v.ValidatedAt.IsZero() {
		v.ValidatedAt = time.Now()
	}
	return s.create(ctx, s.validations, id.ID, v)
}

// ListValidationsByImplementation returns all validation records for an
// implementation, oldest first. Only the most recent record counts for the
// sync predicate; history is kept for audit.
func (s *Store) ListValidationsByImplementation(ctx context.Context, implementationID string) ([]*lifecycle.Validation, error) {
	var out []*lifecycle.Validation
	err := s.scan(ctx, s.validations, func(data []byte) {
		var v lifecycle.Validation
		if json.Unmarshal(data, &v) == nil && v.ImplementationID == implementationID {
			out = append(out, &v)
		}
	})
	sortByTime(out, func(v *lifecycle.Validation) time.Time { return v.ValidatedAt })
	return out, err
}

// --- Published edges ---

// CreatePublishedEdge records a publish. The edge is keyed by the proposal's
// uuid and written with Create, so a second publish of the same proposal
// fails with lifecycle.ErrAlreadyExists at the store level.
func (s *Store) CreatePublishedEdge(ctx context.Context, e *lifecycle.PublishedEdge) error {
	key, err := keyFor(e.ProposalID, EntityTypeProposal)
	if err != nil {
		return err
	}
	if e.SyncedAt.IsZero() {
		e.SyncedAt = time.Now()
	}
	return s.create(ctx, s.published, key, e)
}

// GetPublishedEdge returns the published edge for a proposal, or
// lifecycle.ErrNotFound.
func (s *Store) GetPublishedEdge(ctx context.Context, proposalID string) (*lifecycle.PublishedEdge, error) {
	key, err := keyFor(proposalID, EntityTypeProposal)
	if err != nil {
		return nil, err
	}
	var e lifecycle.PublishedEdge
	if _, err := s.get(ctx, s.published, key, &e); err != nil {
		return nil, fmt.Errorf("get published edge: %w", err)
	}
	return &e, nil
}

// ListPublishedEdges returns all published edges.
func (s *Store) ListPublishedEdges(ctx context.Context) ([]*lifecycle.PublishedEdge, error) {
	var out []*lifecycle.PublishedEdge
	err := s.scan(ctx, s.published, func(data []byte) {
		var e lifecycle.PublishedEdge
		if json.Unmarshal(data, &e) == nil {
			out = append(out, &e)
		}
	})
	return out, err
}

// --- KV plumbing ---

func (s *Store) create(ctx context.Context, kv jetstream.KeyValue, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}
	if _, err := kv.Create(ctx, key, data); err != nil {
		return fmt.Errorf("store entity: %w", translateErr(err))
	}
	return nil
}

func (s *Store) get(ctx context.Context, kv jetstream.KeyValue, key string, v any) (uint64, error) {
	entry, err := kv.Get(ctx, key)
	if err != nil {
		return 0, translateErr(err)
	}
	if err := json.Unmarshal(entry.Value(), v); err != nil {
		return 0, fmt.Errorf("unmarshal entity: %w", err)
	}
	return entry.Revision(), nil
}

func (s *Store) update(ctx context.Context, kv jetstream.KeyValue, key string, v any, revision uint64) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}
	if _, err := kv.Update(ctx, key, data, revision); err != nil {
		return translateErr(err)
	}
	return nil
}

// scan iterates every entry in a bucket, skipping entries that fail to load.
func (s *Store) scan(ctx context.Context, kv jetstream.KeyValue, fn func(data []byte)) error {
	keys, err := kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil
		}
		return fmt.Errorf("list keys: %w", err)
	}
	for _, key := range keys {
		entry, err := kv.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		fn(entry.Value())
	}
	return nil
}

// sortByTime sorts records oldest first by the extracted timestamp.
func sortByTime[T any](items []*T, at func(*T) time.Time) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && at(items[j]).Before(at(items[j-1])); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
