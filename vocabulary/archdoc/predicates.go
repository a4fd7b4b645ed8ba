// Package archdoc defines the vocabulary for architecture document
// lifecycle entities published to the knowledge graph.
package archdoc

import "github.com/c360studio/semstreams/vocabulary"

// Namespace for architecture document predicates.
const Namespace = "https://archon.dev/vocabulary/archdoc#"

// PROV-O IRI constants for temporal predicates.
const (
	// ProvGeneratedAtTime indicates when an entity was generated.
	ProvGeneratedAtTime = "http://www.w3.org/ns/prov#generatedAtTime"
)

// Core proposal predicates.
const (
	// PredicateTitle is the proposal title.
	PredicateTitle = "archon.proposal.title"

	// PredicateDescription is the proposal description.
	PredicateDescription = "archon.proposal.description"

	// PredicateStatus is the lifecycle status.
	// Values: proposed, under_review, approved, implemented, validated,
	// synced, rejected, failed
	PredicateStatus = "archon.proposal.status"

	// PredicateImplementationStatus is the implementation progress track.
	// Values: not_started, in_progress, completed, validated, failed
	PredicateImplementationStatus = "archon.proposal.implementation_status"

	// PredicateCategory is the proposal's change category.
	PredicateCategory = "archon.proposal.category"

	// PredicateCreatedAt is the RFC3339 timestamp when the proposal was created.
	PredicateCreatedAt = "archon.proposal.created_at"

	// PredicateUpdatedAt is the RFC3339 timestamp when the proposal was last updated.
	PredicateUpdatedAt = "archon.proposal.updated_at"
)

// Relationship predicates.
const (
	// PredicateOpportunity links a proposal to its source opportunity.
	PredicateOpportunity = "archon.proposal.opportunity"

	// PredicatePublishedTo links a synced proposal to the architecture
	// section that received it.
	PredicatePublishedTo = "archon.proposal.published_to"

	// PredicateSyncedAt is the RFC3339 timestamp of publication.
	PredicateSyncedAt = "archon.proposal.synced_at"
)

func init() {
	// Register core predicates
	vocabulary.Register(PredicateTitle,
		vocabulary.WithDescription("Proposal title"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"title"))

	vocabulary.Register(PredicateDescription,
		vocabulary.WithDescription("Proposal description"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"description"))

	vocabulary.Register(PredicateStatus,
		vocabulary.WithDescription("Lifecycle status"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"status"))

	vocabulary.Register(PredicateImplementationStatus,
		vocabulary.WithDescription("Implementation progress track"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"implementationStatus"))

	vocabulary.Register(PredicateCategory,
		vocabulary.WithDescription("Change category"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"category"))

	vocabulary.Register(PredicateCreatedAt,
		vocabulary.WithDescription("Creation timestamp (RFC3339)"),
		vocabulary.WithDataType("datetime"),
		vocabulary.WithIRI(ProvGeneratedAtTime))

	vocabulary.Register(PredicateUpdatedAt,
		vocabulary.WithDescription("Last update timestamp (RFC3339)"),
		vocabulary.WithDataType("datetime"))

	// Register relationship predicates
	vocabulary.Register(PredicateOpportunity,
		vocabulary.WithDescription("Link to the source opportunity"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(Namespace+"fromOpportunity"))

	vocabulary.Register(PredicatePublishedTo,
		vocabulary.WithDescription("Link to the architecture section published into"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(Namespace+"publishedTo"))

	vocabulary.Register(PredicateSyncedAt,
		vocabulary.WithDescription("Publication timestamp (RFC3339)"),
		vocabulary.WithDataType("datetime"))
}
