package lifecycleapi

import (
	"fmt"
	"reflect"

	"github.com/c360studio/semstreams/component"
)

// lifecycleAPISchema defines the configuration schema.
var lifecycleAPISchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the lifecycle-api component.
type Config struct {
	// StreamName is the JetStream stream carrying lifecycle subjects.
	StreamName string `json:"stream_name" schema:"type:string,description:JetStream stream for lifecycle subjects,category:basic,default:ARCHON"`

	// TriggerSubject is where reconciliation requests are published.
	TriggerSubject string `json:"trigger_subject" schema:"type:string,description:Subject for reconciliation trigger requests,category:basic,default:archon.reconcile.trigger"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		StreamName:     "ARCHON",
		TriggerSubject: "archon.reconcile.trigger",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.StreamName == "" {
		return fmt.Errorf("stream_name is required")
	}
	if c.TriggerSubject == "" {
		return fmt.Errorf("trigger_subject is required")
	}
	return nil
}
