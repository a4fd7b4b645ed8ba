// Package graph publishes lifecycle entities to the knowledge graph.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"

	"github.com/c360studio/archon/lifecycle"
	"github.com/c360studio/archon/vocabulary/archdoc"
)

// GraphIngestSubject is the subject for graph ingestion.
const GraphIngestSubject = "graph.ingest.entity"

// tripleSource identifies this module as the origin of published triples.
const tripleSource = "archon.lifecycle"

// Publisher publishes proposal entities and sync edges to the graph.
// A nil NATS client degrades every publish to a no-op, so callers never
// need to guard for offline operation.
type Publisher struct {
	nc *natsclient.Client
}

// NewPublisher creates a publisher over the given NATS client.
func NewPublisher(nc *natsclient.Client) *Publisher {
	return &Publisher{nc: nc}
}

// PublishProposal publishes a proposal entity to the knowledge graph.
func (p *Publisher) PublishProposal(ctx context.Context, proposal *lifecycle.Proposal) error {
	if p.nc == nil {
		return nil // Skip publishing if no NATS client (graceful degradation)
	}

	entityID := ProposalEntityID(proposal.ID)
	now := time.Now()

	triples := []message.Triple{
		triple(entityID, archdoc.PredicateTitle, proposal.Title, now),
		triple(entityID, archdoc.PredicateDescription, proposal.Description, now),
		triple(entityID, archdoc.PredicateStatus, proposal.Status.String(), now),
		triple(entityID, archdoc.PredicateImplementationStatus, proposal.ImplementationStatus.String(), now),
		triple(entityID, archdoc.PredicateCreatedAt, proposal.CreatedAt.Format(time.RFC3339), now),
		triple(entityID, archdoc.PredicateUpdatedAt, proposal.UpdatedAt.Format(time.RFC3339), now),
	}
	if proposal.Category != "" {
		triples = append(triples, triple(entityID, archdoc.PredicateCategory, proposal.Category, now))
	}
	if proposal.OpportunityID != "" {
		triples = append(triples, triple(entityID, archdoc.PredicateOpportunity, proposal.OpportunityID, now))
	}

	return p.publish(ctx, entityID, triples, now)
}

// PublishSyncEdge publishes the "published" relationship between a proposal
// and its architecture section.
func (p *Publisher) PublishSyncEdge(ctx context.Context, proposal *lifecycle.Proposal, targetSection string) error {
	if p.nc == nil {
		return nil
	}

	entityID := ProposalEntityID(proposal.ID)
	now := time.Now()

	triples := []message.Triple{
		triple(entityID, archdoc.PredicatePublishedTo, SectionEntityID(targetSection), now),
		triple(entityID, archdoc.PredicateSyncedAt, now.Format(time.RFC3339), now),
		triple(entityID, archdoc.PredicateStatus, lifecycle.StatusSynced.String(), now),
	}

	return p.publish(ctx, entityID, triples, now)
}

func (p *Publisher) publish(ctx context.Context, entityID string, triples []message.Triple, now time.Time) error {
	payload := EntityPayload{
		EntityID_:  entityID,
		TripleData: triples,
		UpdatedAt:  now,
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("invalid graph entity: %w", err)
	}

	data, err := json.Marshal(&payload)
	if err != nil {
		return fmt.Errorf("marshal graph entity: %w", err)
	}

	if err := p.nc.PublishToStream(ctx, GraphIngestSubject, data); err != nil {
		return fmt.Errorf("publish graph entity: %w", err)
	}

	return nil
}

func triple(subject, predicate string, object any, now time.Time) message.Triple {
	return message.Triple{
		Subject:    subject,
		Predicate:  predicate,
		Object:     object,
		Source:     tripleSource,
		Timestamp:  now,
		Confidence: 1.0,
	}
}

// ProposalEntityID generates a consistent graph entity ID for a proposal.
// The input is the storage entity ID (proposal:{uuid}).
func ProposalEntityID(id string) string {
	return "archon.local.lifecycle.proposal." + strings.TrimPrefix(id, "proposal:")
}

// SectionEntityID generates a consistent graph entity ID for an
// architecture document section.
func SectionEntityID(title string) string {
	slug := strings.ToLower(title)
	slug = strings.NewReplacer(" ", "-", "&", "and").Replace(slug)
	return "archon.local.archdoc.section." + slug
}
