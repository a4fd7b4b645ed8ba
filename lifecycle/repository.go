package lifecycle

import "context"

// Repository abstracts all reads and writes against the persistent store.
// It is the only boundary through which lifecycle code touches persistence.
//
// Mutable entities (opportunities, proposals, implementations) are read with
// a revision and written conditionally on it: an update whose revision no
// longer matches the stored record fails with ErrRevisionConflict
// and changes nothing. Vettings and validations are append-only.
//
// Create methods assign the entity ID and timestamps on the passed record.
type Repository interface {
	// Opportunities
	CreateOpportunity(ctx context.Context, o *Opportunity) error
	GetOpportunity(ctx context.Context, id string) (*Opportunity, uint64, error)
	UpdateOpportunity(ctx context.Context, o *Opportunity, revision uint64) error
	ListOpportunities(ctx context.Context) ([]*Opportunity, error)

	// Proposals
	CreateProposal(ctx context.Context, p *Proposal) error
	GetProposal(ctx context.Context, id string) (*Proposal, uint64, error)
	UpdateProposal(ctx context.Context, p *Proposal, revision uint64) error
	ListProposals(ctx context.Context) ([]*Proposal, error)

	// Vettings (append-only)
	CreateVetting(ctx context.Context, v *Vetting) error
	ListVettingsByProposal(ctx context.Context, proposalID string) ([]*Vetting, error)

	// Implementations
	CreateImplementation(ctx context.Context, impl *Implementation) error
	GetImplementation(ctx context.Context, id string) (*Implementation, uint64, error)
	UpdateImplementation(ctx context.Context, impl *Implementation, revision uint64) error
	GetImplementationByProposal(ctx context.Context, proposalID string) (*Implementation, uint64, error)

	// Validations (append-only)
	CreateValidation(ctx context.Context, v *Validation) error
	ListValidationsByImplementation(ctx context.Context, implementationID string) ([]*Validation, error)

	// Published edges. CreatePublishedEdge fails with ErrAlreadyExists
	// if an edge for the proposal already exists.
	CreatePublishedEdge(ctx context.Context, e *PublishedEdge) error
	GetPublishedEdge(ctx context.Context, proposalID string) (*PublishedEdge, error)
	ListPublishedEdges(ctx context.Context) ([]*PublishedEdge, error)
}
