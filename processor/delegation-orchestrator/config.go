package delegationorchestrator

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// Config holds configuration for the delegation orchestrator component.
type Config struct {
	// AutoVet enables automatic vetting of proposed proposals.
	// Defaults to true when omitted.
	AutoVet *bool `json:"auto_vet,omitempty"`

	// AutoImplement enables automatic implementation of approved proposals.
	// Defaults to true when omitted.
	AutoImplement *bool `json:"auto_implement,omitempty"`

	// AutoValidate enables automatic validation of completed implementations.
	// Defaults to true when omitted.
	AutoValidate *bool `json:"auto_validate,omitempty"`

	// AutoSync enables automatic publication of validated proposals.
	// Defaults to true when omitted.
	AutoSync *bool `json:"auto_sync,omitempty"`

	// ReconcileIntervalSeconds is the period between automatic passes.
	ReconcileIntervalSeconds int `json:"reconcile_interval_seconds"`

	// TriggerSubject is the subject that requests an immediate pass.
	TriggerSubject string `json:"trigger_subject"`

	// StreamName is the JetStream stream carrying trigger and report messages.
	StreamName string `json:"stream_name"`

	// Ports contains input/output port definitions.
	Ports *component.PortConfig `json:"ports,omitempty"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		ReconcileIntervalSeconds: 60,
		TriggerSubject:           "archon.reconcile.trigger",
		StreamName:               "ARCHON",
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "reconcile-triggers",
					Type:        "jetstream",
					Subject:     "archon.reconcile.trigger",
					StreamName:  "ARCHON",
					Description: "On-demand reconciliation pass requests",
					Required:    false,
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "pass-reports",
					Type:        "jetstream",
					Subject:     "archon.reconcile.report",
					StreamName:  "ARCHON",
					Description: "Publish reconciliation pass reports",
					Required:    false,
				},
			},
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ReconcileIntervalSeconds <= 0 {
		return fmt.Errorf("reconcile_interval_seconds must be positive")
	}
	if c.TriggerSubject == "" {
		return fmt.Errorf("trigger_subject is required")
	}
	if c.StreamName == "" {
		return fmt.Errorf("stream_name is required")
	}
	return nil
}

// Toggles resolves the configured stage toggles, applying the
// default-enabled semantics for omitted fields.
func (c *Config) Toggles() Toggles {
	enabled := func(v *bool) bool { return v == nil || *v }
	return Toggles{
		AutoVet:       enabled(c.AutoVet),
		AutoImplement: enabled(c.AutoImplement),
		AutoValidate:  enabled(c.AutoValidate),
		AutoSync:      enabled(c.AutoSync),
	}
}
