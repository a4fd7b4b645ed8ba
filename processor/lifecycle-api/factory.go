package lifecycleapi

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the lifecycle-api component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "lifecycle-api",
		Factory:     NewComponent,
		Schema:      lifecycleAPISchema,
		Type:        "processor",
		Protocol:    "http",
		Domain:      "governance",
		Description: "HTTP endpoints for proposal lifecycle state, guardrail audits, and reconciliation triggers",
		Version:     "0.1.0",
	})
}
