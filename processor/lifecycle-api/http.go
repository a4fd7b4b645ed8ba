package lifecycleapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/c360studio/archon/lifecycle"
	"github.com/c360studio/archon/lifecycle/guardrail"
	"github.com/c360studio/archon/lifecycle/mapper"
)

// RegisterHTTPHandlers registers HTTP handlers for the lifecycle-api component.
// The prefix includes the trailing slash (e.g., "/lifecycle-api/").
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	mux.HandleFunc(prefix+"reconcile", c.handleReconcile)
	mux.HandleFunc(prefix+"opportunities", c.handleOpportunities)
	mux.HandleFunc(prefix+"proposals", c.handleListProposals)
	mux.HandleFunc(prefix+"proposals/", c.handleProposal)
	mux.HandleFunc(prefix+"guardrail/violations", c.handleViolations)
}

// WorkflowView is the full lifecycle picture for one proposal: the record
// itself, every vetting and validation that touched it, and the guardrail's
// current verdict on publishing it.
type WorkflowView struct {
	Proposal       *lifecycle.Proposal       `json:"proposal"`
	Vettings       []*lifecycle.Vetting      `json:"vettings"`
	Implementation *lifecycle.Implementation `json:"implementation,omitempty"`
	Validations    []*lifecycle.Validation   `json:"validations"`
	PublishedEdge  *lifecycle.PublishedEdge  `json:"published_edge,omitempty"`
	SyncDecision   *guardrail.Decision       `json:"sync_decision,omitempty"`
}

// CreateOpportunityRequest is the body for POST /opportunities.
type CreateOpportunityRequest struct {
	Kind             string `json:"kind"`
	Description      string `json:"description"`
	Priority         int    `json:"priority"`
	SuggestedSection string `json:"suggested_section,omitempty"`
}

// SyncRequest is the body for POST /proposals/{id}/sync.
type SyncRequest struct {
	TargetSection string `json:"target_section,omitempty"`
}

// handleReconcile handles POST /reconcile.
// It publishes a trigger message that the delegation orchestrator consumes.
func (c *Component) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if c.natsClient == nil {
		http.Error(w, "Reconciliation trigger not available", http.StatusServiceUnavailable)
		return
	}

	payload := []byte(`{"source":"lifecycle-api"}`)
	if err := c.natsClient.PublishToStream(r.Context(), c.config.TriggerSubject, payload); err != nil {
		c.logger.Error("Failed to publish reconcile trigger",
			"subject", c.config.TriggerSubject, "error", err)
		http.Error(w, "Failed to request reconciliation", http.StatusInternalServerError)
		return
	}

	c.writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

// handleOpportunities handles GET and POST /opportunities.
func (c *Component) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		c.listOpportunities(w, r)
	case http.MethodPost:
		c.createOpportunity(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (c *Component) listOpportunities(w http.ResponseWriter, r *http.Request) {
	repo := c.repository()
	if repo == nil {
		http.Error(w, "Lifecycle store not available", http.StatusServiceUnavailable)
		return
	}

	opportunities, err := repo.ListOpportunities(r.Context())
	if err != nil {
		c.logger.Error("Failed to list opportunities", "error", err)
		http.Error(w, "Failed to list opportunities", http.StatusInternalServerError)
		return
	}

	if filter := r.URL.Query().Get("status"); filter != "" {
		status := lifecycle.OpportunityStatus(filter)
		filtered := opportunities[:0]
		for _, o := range opportunities {
			if o.Status == status {
				filtered = append(filtered, o)
			}
		}
		opportunities = filtered
	}

	if opportunities == nil {
		opportunities = []*lifecycle.Opportunity{}
	}
	c.writeJSON(w, http.StatusOK, opportunities)
}

func (c *Component) createOpportunity(w http.ResponseWriter, r *http.Request) {
	repo := c.repository()
	if repo == nil {
		http.Error(w, "Lifecycle store not available", http.StatusServiceUnavailable)
		return
	}

	var req CreateOpportunityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Kind == "" || req.Description == "" {
		http.Error(w, "Fields kind and description are required", http.StatusBadRequest)
		return
	}

	o := &lifecycle.Opportunity{
		Kind:             req.Kind,
		Description:      req.Description,
		Priority:         req.Priority,
		SuggestedSection: req.SuggestedSection,
	}
	if err := repo.CreateOpportunity(r.Context(), o); err != nil {
		c.logger.Error("Failed to create opportunity", "error", err)
		http.Error(w, "Failed to create opportunity", http.StatusInternalServerError)
		return
	}

	c.logger.Info("Opportunity created", "opportunity_id", o.ID, "kind", o.Kind)
	c.writeJSON(w, http.StatusCreated, o)
}

// handleListProposals handles GET /proposals with an optional ?status= filter.
func (c *Component) handleListProposals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	repo := c.repository()
	if repo == nil {
		http.Error(w, "Lifecycle store not available", http.StatusServiceUnavailable)
		return
	}

	proposals, err := repo.ListProposals(r.Context())
	if err != nil {
		c.logger.Error("Failed to list proposals", "error", err)
		http.Error(w, "Failed to list proposals", http.StatusInternalServerError)
		return
	}

	if filter := r.URL.Query().Get("status"); filter != "" {
		status := lifecycle.Status(filter)
		if !status.IsValid() {
			http.Error(w, "Unknown status filter", http.StatusBadRequest)
			return
		}
		filtered := proposals[:0]
		for _, p := range proposals {
			if p.Status == status {
				filtered = append(filtered, p)
			}
		}
		proposals = filtered
	}

	if proposals == nil {
		proposals = []*lifecycle.Proposal{}
	}
	c.writeJSON(w, http.StatusOK, proposals)
}

// handleProposal routes /proposals/{id} and its sub-resources.
func (c *Component) handleProposal(w http.ResponseWriter, r *http.Request) {
	id, endpoint := extractProposalPath(r.URL.Path)
	if id == "" {
		http.Error(w, "Proposal ID required", http.StatusBadRequest)
		return
	}

	// ready-to-sync is a collection endpoint that shares the /proposals/ prefix.
	if id == "ready-to-sync" && endpoint == "" {
		c.handleReadyToSync(w, r)
		return
	}

	switch endpoint {
	case "":
		c.getProposal(w, r, id)
	case "workflow":
		c.getWorkflow(w, r, id)
	case "sync":
		c.syncProposal(w, r, id)
	default:
		http.Error(w, "Unknown endpoint", http.StatusNotFound)
	}
}

func (c *Component) getProposal(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	repo := c.repository()
	if repo == nil {
		http.Error(w, "Lifecycle store not available", http.StatusServiceUnavailable)
		return
	}

	p, _, err := repo.GetProposal(r.Context(), id)
	if err != nil {
		if errors.Is(err, lifecycle.ErrNotFound) {
			http.Error(w, "Proposal not found", http.StatusNotFound)
			return
		}
		c.logger.Error("Failed to get proposal", "proposal_id", id, "error", err)
		http.Error(w, "Failed to retrieve proposal", http.StatusInternalServerError)
		return
	}

	c.writeJSON(w, http.StatusOK, p)
}

func (c *Component) getWorkflow(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	repo := c.repository()
	enforcer := c.guardrail()
	if repo == nil || enforcer == nil {
		http.Error(w, "Lifecycle store not available", http.StatusServiceUnavailable)
		return
	}

	ctx := r.Context()

	p, _, err := repo.GetProposal(ctx, id)
	if err != nil {
		if errors.Is(err, lifecycle.ErrNotFound) {
			http.Error(w, "Proposal not found", http.StatusNotFound)
			return
		}
		c.logger.Error("Failed to get proposal", "proposal_id", id, "error", err)
		http.Error(w, "Failed to retrieve proposal", http.StatusInternalServerError)
		return
	}

	view := WorkflowView{Proposal: p}

	view.Vettings, err = repo.ListVettingsByProposal(ctx, id)
	if err != nil {
		c.logger.Error("Failed to list vettings", "proposal_id", id, "error", err)
		http.Error(w, "Failed to retrieve workflow", http.StatusInternalServerError)
		return
	}
	if view.Vettings == nil {
		view.Vettings = []*lifecycle.Vetting{}
	}

	impl, _, err := repo.GetImplementationByProposal(ctx, id)
	switch {
	case err == nil:
		view.Implementation = impl
		view.Validations, err = repo.ListValidationsByImplementation(ctx, impl.ID)
		if err != nil {
			c.logger.Error("Failed to list validations", "proposal_id", id, "error", err)
			http.Error(w, "Failed to retrieve workflow", http.StatusInternalServerError)
			return
		}
	case errors.Is(err, lifecycle.ErrNotFound):
		// No implementation yet; the view stays partial.
	default:
		c.logger.Error("Failed to get implementation", "proposal_id", id, "error", err)
		http.Error(w, "Failed to retrieve workflow", http.StatusInternalServerError)
		return
	}
	if view.Validations == nil {
		view.Validations = []*lifecycle.Validation{}
	}

	edge, err := repo.GetPublishedEdge(ctx, id)
	if err == nil {
		view.PublishedEdge = edge
	} else if !errors.Is(err, lifecycle.ErrNotFound) {
		c.logger.Error("Failed to get published edge", "proposal_id", id, "error", err)
		http.Error(w, "Failed to retrieve workflow", http.StatusInternalServerError)
		return
	}

	decision, err := enforcer.CanSyncToArchitecture(ctx, id)
	if err != nil {
		c.logger.Error("Failed to evaluate guardrail", "proposal_id", id, "error", err)
		http.Error(w, "Failed to retrieve workflow", http.StatusInternalServerError)
		return
	}
	view.SyncDecision = &decision

	c.writeJSON(w, http.StatusOK, view)
}

// syncProposal handles POST /proposals/{id}/sync. The guardrail is the only
// path to a published edge; a refusal comes back as 409 with the reason.
func (c *Component) syncProposal(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	enforcer := c.guardrail()
	if enforcer == nil {
		http.Error(w, "Lifecycle store not available", http.StatusServiceUnavailable)
		return
	}

	var req SyncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	// Without an explicit section the proposal's stored section wins, and
	// a proposal that never got one is routed through the section mapper.
	section := req.TargetSection
	if section == "" {
		repo := c.repository()
		router := c.sectionRouter()
		if repo == nil || router == nil {
			http.Error(w, "Lifecycle store not available", http.StatusServiceUnavailable)
			return
		}

		p, _, err := repo.GetProposal(r.Context(), id)
		if err != nil {
			if errors.Is(err, lifecycle.ErrNotFound) {
				http.Error(w, "Proposal not found", http.StatusNotFound)
				return
			}
			c.logger.Error("Failed to get proposal", "proposal_id", id, "error", err)
			http.Error(w, "Failed to sync proposal", http.StatusInternalServerError)
			return
		}

		section = p.TargetSection
		if section == "" {
			section, err = router.MapProposalToSection(r.Context(), id)
			if err != nil {
				c.logger.Error("Failed to map proposal to section", "proposal_id", id, "error", err)
				http.Error(w, "Failed to sync proposal", http.StatusInternalServerError)
				return
			}
		}
	}

	edge, err := enforcer.SyncToArchitecture(r.Context(), id, section)
	if err != nil {
		var violation *guardrail.ViolationError
		switch {
		case errors.As(err, &violation):
			c.writeJSON(w, http.StatusConflict, map[string]string{
				"proposal_id": violation.ProposalID,
				"reason":      violation.Reason,
			})
		case errors.Is(err, lifecycle.ErrNotFound):
			http.Error(w, "Proposal not found", http.StatusNotFound)
		case errors.Is(err, lifecycle.ErrAlreadyExists):
			http.Error(w, "Proposal already synced", http.StatusConflict)
		default:
			c.logger.Error("Failed to sync proposal", "proposal_id", id, "error", err)
			http.Error(w, "Failed to sync proposal", http.StatusInternalServerError)
		}
		return
	}

	c.writeJSON(w, http.StatusOK, edge)
}

// handleReadyToSync handles GET /proposals/ready-to-sync.
func (c *Component) handleReadyToSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	router := c.sectionRouter()
	if router == nil {
		http.Error(w, "Lifecycle store not available", http.StatusServiceUnavailable)
		return
	}

	ready, err := router.ReadyToSync(r.Context())
	if err != nil {
		c.logger.Error("Failed to list ready proposals", "error", err)
		http.Error(w, "Failed to list ready proposals", http.StatusInternalServerError)
		return
	}

	if ready == nil {
		ready = []*lifecycle.Proposal{}
	}
	c.writeJSON(w, http.StatusOK, ready)
}

// handleViolations handles GET /guardrail/violations.
func (c *Component) handleViolations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	enforcer := c.guardrail()
	if enforcer == nil {
		http.Error(w, "Lifecycle store not available", http.StatusServiceUnavailable)
		return
	}

	violations, err := enforcer.AuditGuardrailViolations(r.Context())
	if err != nil {
		c.logger.Error("Failed to audit published edges", "error", err)
		http.Error(w, "Failed to audit published edges", http.StatusInternalServerError)
		return
	}

	if violations == nil {
		violations = []guardrail.Violation{}
	}
	c.writeJSON(w, http.StatusOK, violations)
}

func (c *Component) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		c.logger.Warn("Failed to write response", "error", err)
	}
}

func (c *Component) repository() lifecycle.Repository {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.repo
}

func (c *Component) guardrail() *guardrail.Enforcer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enforcer
}

func (c *Component) sectionRouter() *mapper.Mapper {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.router
}

// extractProposalPath extracts the proposal ID and sub-resource from a path
// like /lifecycle-api/proposals/{id}/workflow.
func extractProposalPath(path string) (id, endpoint string) {
	idx := strings.Index(path, "/proposals/")
	if idx == -1 {
		return "", ""
	}

	remainder := path[idx+len("/proposals/"):]

	parts := strings.SplitN(remainder, "/", 2)
	if len(parts) == 0 {
		return "", ""
	}

	id = parts[0]
	if len(parts) > 1 {
		endpoint = strings.TrimSuffix(parts[1], "/")
	}

	return id, endpoint
}
