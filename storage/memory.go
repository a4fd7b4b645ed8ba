package storage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/c360studio/archon/lifecycle"
)

// memEntry holds one serialized record plus its revision counter.
type memEntry struct {
	data     []byte
	revision uint64
}

// MemoryStore is an in-memory implementation of lifecycle.Repository with
// the same conditional-write semantics as the KV-backed Store. It is used
// in tests and for running the engine without a NATS server.
type MemoryStore struct {
	mu              sync.Mutex
	opportunities   map[string]*memEntry
	proposals       map[string]*memEntry
	vettings        map[string]*memEntry
	implementations map[string]*memEntry
	validations     map[string]*memEntry
	published       map[string]*memEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		opportunities:   make(map[string]*memEntry),
		proposals:       make(map[string]*memEntry),
		vettings:        make(map[string]*memEntry),
		implementations: make(map[string]*memEntry),
		validations:     make(map[string]*memEntry),
		published:       make(map[string]*memEntry),
	}
}

func memCreate(m map[string]*memEntry, key string, v any) error {
	if _, exists := m[key]; exists {
		return lifecycle.ErrAlreadyExists
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m[key] = &memEntry{data: data, revision: 1}
	return nil
}

func memGet(m map[string]*memEntry, key string, v any) (uint64, error) {
	entry, ok := m[key]
	if !ok {
		return 0, lifecycle.ErrNotFound
	}
	if err := json.Unmarshal(entry.data, v); err != nil {
		return 0, err
	}
	return entry.revision, nil
}

func memUpdate(m map[string]*memEntry, key string, v any, revision uint64) error {
	entry, ok := m[key]
	if !ok {
		return lifecycle.ErrNotFound
	}
	if entry.revision != revision {
		return lifecycle.ErrRevisionConflict
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	entry.data = data
	entry.revision++
	return nil
}

func memScan(m map[string]*memEntry, fn func(data []byte)) {
	for _, entry := range m {
		fn(entry.data)
	}
}

// --- Opportunities ---

func (s *MemoryStore) CreateOpportunity(_ context.Context, o *lifecycle.Opportunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := NewEntityID(EntityTypeOpportunity)
	o.ID = id.String()
	if o.Status == "" {
		o.Status = lifecycle.OpportunityProposed
	}
	if o.DiscoveredAt.IsZero() {
		o.DiscoveredAt = time.Now()
	}
	return memCreate(s.opportunities, id.ID, o)
}

func (s *MemoryStore) GetOpportunity(_ context.Context, id string) (*lifecycle.Opportunity, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, err := keyFor(id, EntityTypeOpportunity)
	if err != nil {
		return nil, 0, err
	}
	var o lifecycle.Opportunity
	revision, err := memGet(s.opportunities, key, &o)
	if err != nil {
		return nil, 0, err
	}
	return &o, revision, nil
}

func (s *MemoryStore) UpdateOpportunity(_ context.Context, o *lifecycle.Opportunity, revision uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, err := keyFor(o.ID, EntityTypeOpportunity)
	if err != nil {
		return err
	}
	return memUpdate(s.opportunities, key, o, revision)
}

func (s *MemoryStore) ListOpportunities(_ context.Context) ([]*lifecycle.Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*lifecycle.Opportunity
	memScan(s.opportunities, func(data []byte) {
		var o lifecycle.Opportunity
		if json.Unmarshal(data, &o) == nil {
			out = append(out, &o)
		}
	})
	return out, nil
}

// --- Proposals ---

func (s *MemoryStore) CreateProposal(_ context.Context, p *lifecycle.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
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
	return memCreate(s.proposals, id.ID, p)
}

func (s *MemoryStore) GetProposal(_ context.Context, id string) (*lifecycle.Proposal, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, err := keyFor(id, EntityTypeProposal)
	if err != nil {
		return nil, 0, err
	}
	var p lifecycle.Proposal
	revision, err := memGet(s.proposals, key, &p)
	if err != nil {
		return nil, 0, err
	}
	return &p, revision, nil
}

func (s *MemoryStore) UpdateProposal(_ context.Context, p *lifecycle.Proposal, revision uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, err := keyFor(p.ID, EntityTypeProposal)
	if err != nil {
		return err
	}
	p.UpdatedAt = time.Now()
	return memUpdate(s.proposals, key, p, revision)
}

func (s *MemoryStore) ListProposals(_ context.Context) ([]*lifecycle.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*lifecycle.Proposal
	memScan(s.proposals, func(data []byte) {
		var p lifecycle.Proposal
		if json.Unmarshal(data, &p) == nil {
			out = append(out, &p)
		}
	})
	return out, nil
}

// --- Vettings ---

func (s *MemoryStore) CreateVetting(_ context.Context, v *lifecycle.Vetting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := NewEntityID(EntityTypeVetting)
	v.ID = id.String()
	if v.VettedAt.IsZero() {
		v.VettedAt = time.Now()
	}
	return memCreate(s.vettings, id.ID, v)
}

func (s *MemoryStore) ListVettingsByProposal(_ context.Context, proposalID string) ([]*lifecycle.Vetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*lifecycle.Vetting
	memScan(s.vettings, func(data []byte) {
		var v lifecycle.Vetting
		if json.Unmarshal(data, &v) == nil && v.ProposalID == proposalID {
			out = append(out, &v)
		}
	})
	sortByTime(out, func(v *lifecycle.Vetting) time.Time { return v.VettedAt })
	return out, nil
}

// --- Implementations ---

func (s *MemoryStore) CreateImplementation(_ context.Context, impl *lifecycle.Implementation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := NewEntityID(EntityTypeImplementation)
	impl.ID = id.String()
	if impl.Status == "" {
		impl.Status = lifecycle.ImplementationInProgress
	}
	if impl.StartedAt.IsZero() {
		impl.StartedAt = time.Now()
	}
	return memCreate(s.implementations, id.ID, impl)
}

func (s *MemoryStore) GetImplementation(_ context.Context, id string) (*lifecycle.Implementation, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, err := keyFor(id, EntityTypeImplementation)
	if err != nil {
		return nil, 0, err
	}
	var impl lifecycle.Implementation
	revision, err := memGet(s.implementations, key, &impl)
	if err != nil {
		return nil, 0, err
	}
	return &impl, revision, nil
}

func (s *MemoryStore) UpdateImplementation(_ context.Context, impl *lifecycle.Implementation, revision uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, err := keyFor(impl.ID, EntityTypeImplementation)
	if err != nil {
		return err
	}
	return memUpdate(s.implementations, key, impl, revision)
}

func (s *MemoryStore) GetImplementationByProposal(_ context.Context, proposalID string) (*lifecycle.Implementation, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.implementations {
		var impl lifecycle.Implementation
		if json.Unmarshal(entry.data, &impl) == nil && impl.ProposalID == proposalID {
			return &impl, entry.revision, nil
		}
	}
	return nil, 0, lifecycle.ErrNotFound
}

// --- Validations ---

func (s *MemoryStore) CreateValidation(_ context.Context, v *lifecycle.Validation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := NewEntityID(EntityTypeValidation)
	v.ID = id.String()
	if v.ValidatedAt.IsZero() {
		v.ValidatedAt = time.Now()
	}
	return memCreate(s.validations, id.ID, v)
}

func (s *MemoryStore) ListValidationsByImplementation(_ context.Context, implementationID string) ([]*lifecycle.Validation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*lifecycle.Validation
	memScan(s.validations, func(data []byte) {
		var v lifecycle.Validation
		if json.Unmarshal(data, &v) == nil && v.ImplementationID == implementationID {
			out = append(out, &v)
		}
	})
	sortByTime(out, func(v *lifecycle.Validation) time.Time { return v.ValidatedAt })
	return out, nil
}

// --- Published edges ---

func (s *MemoryStore) CreatePublishedEdge(_ context.Context, e *lifecycle.PublishedEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, err := keyFor(e.ProposalID, EntityTypeProposal)
	if err != nil {
		return err
	}
	if e.SyncedAt.IsZero() {
		e.SyncedAt = time.Now()
	}
	return memCreate(s.published, key, e)
}

func (s *MemoryStore) GetPublishedEdge(_ context.Context, proposalID string) (*lifecycle.PublishedEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, err := keyFor(proposalID, EntityTypeProposal)
	if err != nil {
		return nil, err
	}
	var e lifecycle.PublishedEdge
	if _, err := memGet(s.published, key, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *MemoryStore) ListPublishedEdges(_ context.Context) ([]*lifecycle.PublishedEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*lifecycle.PublishedEdge
	memScan(s.published, func(data []byte) {
		var e lifecycle.PublishedEdge
		if json.Unmarshal(data, &e) == nil {
			out = append(out, &e)
		}
	})
	return out, nil
}
