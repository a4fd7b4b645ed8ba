package delegationorchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/archon/graph"
	"github.com/c360studio/archon/lifecycle"
	"github.com/c360studio/archon/lifecycle/guardrail"
	"github.com/c360studio/archon/lifecycle/implement"
	"github.com/c360studio/archon/lifecycle/mapper"
	"github.com/c360studio/archon/lifecycle/validation"
	"github.com/c360studio/archon/lifecycle/vetting"
	"github.com/c360studio/archon/storage"
)

// orchestratorSchema defines the configuration schema.
var orchestratorSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Component implements the delegation orchestrator processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger
	platform   component.PlatformMeta

	reconciler *Reconciler
	mu         sync.RWMutex

	// Lifecycle management
	running    bool
	startTime  time.Time
	cancelFunc context.CancelFunc

	// Metrics
	passes       int64
	advanced     int64
	failures     int64
	lastActivity time.Time
}

// NewComponent creates a new delegation orchestrator component.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults
	defaults := DefaultConfig()
	if config.ReconcileIntervalSeconds == 0 {
		config.ReconcileIntervalSeconds = defaults.ReconcileIntervalSeconds
	}
	if config.TriggerSubject == "" {
		config.TriggerSubject = defaults.TriggerSubject
	}
	if config.StreamName == "" {
		config.StreamName = defaults.StreamName
	}
	if config.Ports == nil {
		config.Ports = defaults.Ports
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Component{
		name:       "delegation-orchestrator",
		config:     config,
		natsClient: deps.NATSClient,
		logger:     deps.GetLogger(),
		platform:   deps.Platform,
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	return nil
}

// Start builds the lifecycle handlers over the KV store and begins the
// reconciliation loop.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}

	if c.natsClient == nil {
		c.mu.Unlock()
		return fmt.Errorf("NATS client required")
	}

	js, err := c.natsClient.JetStream()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("get JetStream context: %w", err)
	}

	store, err := storage.NewStore(ctx, js)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("create entity store: %w", err)
	}

	c.reconciler = c.buildReconciler(store)

	runCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	c.running = true
	c.startTime = time.Now()
	c.mu.Unlock()

	toggles := c.config.Toggles()
	c.logger.Info("Delegation orchestrator started",
		"interval_seconds", c.config.ReconcileIntervalSeconds,
		"auto_vet", toggles.AutoVet,
		"auto_implement", toggles.AutoImplement,
		"auto_validate", toggles.AutoValidate,
		"auto_sync", toggles.AutoSync)

	go c.runTicker(runCtx)

	if err := c.consumeTriggers(runCtx); err != nil {
		c.logger.Error("Failed to consume reconcile triggers", "error", err)
	}

	return nil
}

// buildReconciler wires the role handlers over a shared repository and
// state machine.
func (c *Component) buildReconciler(repo lifecycle.Repository) *Reconciler {
	machine := lifecycle.NewMachine(repo)
	machine.SetLogger(c.logger)

	vetter := vetting.NewVetter(repo, machine)
	vetter.SetLogger(c.logger)

	implementer := implement.NewImplementer(repo, machine)
	implementer.SetLogger(c.logger)

	validator := validation.NewValidator(repo, machine)
	validator.SetLogger(c.logger)

	enforcer := guardrail.NewEnforcer(repo, machine)
	enforcer.SetLogger(c.logger)
	if c.natsClient != nil {
		enforcer.SetPublisher(graph.NewPublisher(c.natsClient))
	}

	router := mapper.NewMapper(repo, enforcer)
	router.SetLogger(c.logger)

	reconciler := NewReconciler(repo, Stages{
		Converter:   router,
		Vetter:      vetter,
		Implementer: implementer,
		Validator:   validator,
		Router:      router,
		Syncer:      enforcer,
	}, c.config.Toggles())
	reconciler.SetLogger(c.logger)
	return reconciler
}

// runTicker runs periodic reconciliation passes.
func (c *Component) runTicker(ctx context.Context) {
	interval := time.Duration(c.config.ReconcileIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runPass(ctx)
		}
	}
}

// consumeTriggers runs an immediate pass for each trigger message.
func (c *Component) consumeTriggers(ctx context.Context) error {
	cfg := natsclient.StreamConsumerConfig{
		StreamName:    c.config.StreamName,
		ConsumerName:  "delegation-orchestrator-trigger",
		FilterSubject: c.config.TriggerSubject,
		DeliverPolicy: "new",
		AckPolicy:     "explicit",
		MaxDeliver:    3,
	}

	return c.natsClient.ConsumeStreamWithConfig(ctx, cfg, func(msgCtx context.Context, msg jetstream.Msg) {
		c.runPass(msgCtx)
		if ackErr := msg.Ack(); ackErr != nil {
			c.logger.Error("Failed to ack reconcile trigger", "error", ackErr)
		}
	})
}

// runPass executes one reconciliation pass and publishes its report.
func (c *Component) runPass(ctx context.Context) {
	report, err := c.reconciler.ProcessPendingWorkflows(ctx)
	if err != nil {
		c.logger.Error("Reconciliation pass failed", "error", err)
		return
	}

	c.mu.Lock()
	c.passes++
	c.advanced += int64(report.Advanced())
	c.failures += int64(len(report.Failures))
	c.lastActivity = time.Now()
	c.mu.Unlock()

	data, err := json.Marshal(report)
	if err != nil {
		c.logger.Error("Failed to marshal pass report", "error", err)
		return
	}
	if err := c.natsClient.PublishToStream(ctx, "archon.reconcile.report", data); err != nil {
		c.logger.Warn("Failed to publish pass report", "error", err)
	}
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	if c.natsClient != nil {
		c.natsClient.StopConsumer(c.config.StreamName, "delegation-orchestrator-trigger")
	}

	c.running = false
	c.logger.Info("Delegation orchestrator stopped",
		"passes", c.passes,
		"advanced", c.advanced,
		"failures", c.failures)

	return nil
}

// Discoverable interface implementation

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "delegation-orchestrator",
		Type:        "processor",
		Description: "Drives proposals through vetting, implementation, validation, and sync",
		Version:     "0.1.0",
	}
}

// InputPorts returns configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "reconcile-triggers",
			Direction:   component.DirectionInput,
			Description: "On-demand reconciliation pass requests",
			Config: component.JetStreamPort{
				StreamName: c.config.StreamName,
				Subjects:   []string{c.config.TriggerSubject},
			},
		},
	}
}

// OutputPorts returns configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "pass-reports",
			Direction:   component.DirectionOutput,
			Description: "Publish reconciliation pass reports",
			Config: component.JetStreamPort{
				StreamName: c.config.StreamName,
				Subjects:   []string{"archon.reconcile.report"},
			},
		},
		{
			Name:        "graph-entities",
			Direction:   component.DirectionOutput,
			Description: "Publish synced proposals to the knowledge graph",
			Config: component.JetStreamPort{
				StreamName: "GRAPH",
				Subjects:   []string{"graph.ingest.entity"},
			},
		},
	}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return orchestratorSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := "stopped"
	if c.running {
		status = "running"
	}

	return component.HealthStatus{
		Healthy:    c.running,
		LastCheck:  time.Now(),
		ErrorCount: int(c.failures),
		Uptime:     time.Since(c.startTime),
		Status:     status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return component.FlowMetrics{
		MessagesPerSecond: 0,
		BytesPerSecond:    0,
		ErrorRate:         0,
		LastActivity:      c.lastActivity,
	}
}
