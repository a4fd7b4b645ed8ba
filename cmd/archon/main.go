// Package main provides the archon binary entry point.
// Archon keeps an architecture document honest: it drives improvement
// opportunities through a governed proposal lifecycle and only publishes
// validated changes to the document graph.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	// Register vocabularies via init()
	_ "github.com/c360studio/archon/vocabulary/archdoc"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/componentregistry"
	"github.com/c360studio/semstreams/config"
	"github.com/c360studio/semstreams/metric"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/c360studio/semstreams/payloadbuiltins"
	"github.com/c360studio/semstreams/payloadregistry"
	"github.com/c360studio/semstreams/service"
	"github.com/c360studio/semstreams/types"
	"github.com/spf13/cobra"

	appconfig "github.com/c360studio/archon/config"
	"github.com/c360studio/archon/graph"
	"github.com/c360studio/archon/lifecycle"
	"github.com/c360studio/archon/lifecycle/guardrail"
	delegationorchestrator "github.com/c360studio/archon/processor/delegation-orchestrator"
	lifecycleapi "github.com/c360studio/archon/processor/lifecycle-api"
	"github.com/c360studio/archon/storage"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "archon"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "archon",
		Short: "Architecture document lifecycle engine",
		Long: `Archon governs how architecture documentation changes.

It provides:
- An opportunity-to-proposal mapper for detected documentation gaps
- A persisted proposal lifecycle with vetting, implementation, and validation
- A guardrail enforcer that is the only path to published document edges
- An idempotent delegation orchestrator that advances pending work

All components communicate via NATS using the semstreams framework.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(logLevel)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	cmd.AddCommand(statusCmd(&logLevel))
	cmd.AddCommand(proposalsCmd(&logLevel))
	cmd.AddCommand(auditCmd(&logLevel))
	cmd.AddCommand(syncCmd(&logLevel))
	cmd.AddCommand(reconcileCmd(&logLevel))

	return cmd
}

func run(logLevel string) error {
	printBanner()

	logger := newLogger(logLevel)
	slog.SetDefault(logger)

	// Load layered configuration (defaults, user, project)
	appCfg, err := appconfig.NewLoader(logger).Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	natsClient, err := connectToNATS(ctx, appCfg, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close(ctx)

	cfg, err := buildServiceConfig(appCfg)
	if err != nil {
		return fmt.Errorf("build service config: %w", err)
	}

	// Ensure JetStream streams exist
	if err := ensureStreams(ctx, cfg, natsClient, logger); err != nil {
		return err
	}

	slog.Info("Archon ready", "version", Version, "nats_url", appCfg.NATS.URL)

	metricsRegistry := metric.NewMetricsRegistry()
	platform := extractPlatformMeta(cfg)

	// Shared payload registry: builtins first, then archon's graph payloads
	payloadReg := payloadregistry.New()
	if err := payloadbuiltins.Register(payloadReg); err != nil {
		return fmt.Errorf("register builtin payloads: %w", err)
	}
	if err := graph.RegisterPayloads(payloadReg); err != nil {
		return fmt.Errorf("register graph payloads: %w", err)
	}

	// Create and start config manager (required for component-manager to access component configs)
	configManager, err := config.NewConfigManager(cfg, natsClient, logger)
	if err != nil {
		return fmt.Errorf("create config manager: %w", err)
	}
	if err := configManager.Start(ctx); err != nil {
		return fmt.Errorf("start config manager: %w", err)
	}
	defer configManager.Stop(5 * time.Second)

	// Create and populate component registry
	componentRegistry := component.NewRegistry()

	slog.Debug("Registering semstreams component factories")
	if err := componentregistry.Register(componentRegistry); err != nil {
		return fmt.Errorf("register semstreams components: %w", err)
	}

	slog.Debug("Registering archon component factories")
	if err := delegationorchestrator.Register(componentRegistry); err != nil {
		return fmt.Errorf("register delegation-orchestrator: %w", err)
	}
	if err := lifecycleapi.Register(componentRegistry); err != nil {
		return fmt.Errorf("register lifecycle-api: %w", err)
	}

	factories := componentRegistry.ListFactories()
	slog.Info("Component factories registered", "count", len(factories))

	// Create service registry and manager (semstreams pattern)
	serviceRegistry := service.NewServiceRegistry()
	if err := service.RegisterAll(serviceRegistry); err != nil {
		return fmt.Errorf("register services: %w", err)
	}

	manager := service.NewServiceManager(serviceRegistry)
	ensureServiceManagerConfig(cfg, appCfg)

	svcDeps := &service.Dependencies{
		NATSClient:        natsClient,
		MetricsRegistry:   metricsRegistry,
		Logger:            logger,
		Platform:          platform,
		Manager:           configManager,
		ComponentRegistry: componentRegistry,
		PayloadRegistry:   payloadReg,
	}

	if err := configureAndCreateServices(cfg, manager, svcDeps); err != nil {
		return err
	}

	slog.Info("All services configured")

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	slog.Info("Starting all services")
	if err := manager.StartAll(signalCtx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	slog.Info("All services started successfully")

	// Block until shutdown signal
	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	shutdownTimeout := 30 * time.Second
	if err := manager.StopAll(shutdownTimeout); err != nil {
		slog.Error("Error stopping services", "error", err)
	}

	slog.Info("Archon shutdown complete")
	return nil
}

// statusCmd prints every proposal with its lifecycle position.
func statusCmd(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show proposal lifecycle status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(*logLevel, func(ctx context.Context, store *storage.Store, _ *natsclient.Client) error {
				proposals, err := store.ListProposals(ctx)
				if err != nil {
					return fmt.Errorf("list proposals: %w", err)
				}

				if len(proposals) == 0 {
					fmt.Println("No proposals.")
					return nil
				}

				fmt.Printf("%-44s %-13s %-13s %s\n", "ID", "STATUS", "IMPL", "TITLE")
				for _, p := range proposals {
					fmt.Printf("%-44s %-13s %-13s %s\n", p.ID, p.Status, p.ImplementationStatus, p.Title)
				}
				return nil
			})
		},
	}
}

// proposalsCmd lists proposals, optionally filtered by lifecycle status.
func proposalsCmd(logLevel *string) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "proposals",
		Short: "List proposals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(*logLevel, func(ctx context.Context, store *storage.Store, _ *natsclient.Client) error {
				if statusFilter != "" && !lifecycle.Status(statusFilter).IsValid() {
					return fmt.Errorf("unknown status %q", statusFilter)
				}

				proposals, err := store.ListProposals(ctx)
				if err != nil {
					return fmt.Errorf("list proposals: %w", err)
				}

				shown := 0
				for _, p := range proposals {
					if statusFilter != "" && p.Status != lifecycle.Status(statusFilter) {
						continue
					}
					fmt.Printf("%-44s %-13s %s\n", p.ID, p.Status, p.Title)
					shown++
				}
				if shown == 0 {
					fmt.Println("No proposals.")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by lifecycle status")
	return cmd
}

// syncCmd publishes one validated proposal through the guardrail.
func syncCmd(logLevel *string) *cobra.Command {
	var targetSection string

	cmd := &cobra.Command{
		Use:   "sync <proposal-id>",
		Short: "Publish a validated proposal to the architecture document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(*logLevel, func(ctx context.Context, store *storage.Store, client *natsclient.Client) error {
				machine := lifecycle.NewMachine(store)
				enforcer := guardrail.NewEnforcer(store, machine)
				enforcer.SetPublisher(graph.NewPublisher(client))

				edge, err := enforcer.SyncToArchitecture(ctx, args[0], targetSection)
				if err != nil {
					var violation *guardrail.ViolationError
					if errors.As(err, &violation) {
						return fmt.Errorf("sync refused: %s", violation.Reason)
					}
					return fmt.Errorf("sync proposal: %w", err)
				}

				fmt.Printf("Published %s to section %q.\n", edge.ProposalID, edge.TargetSection)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&targetSection, "section", "", "Target document section (defaults to the mapped section)")
	return cmd
}

// auditCmd sweeps published edges for guardrail violations.
func auditCmd(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Audit published edges for guardrail violations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(*logLevel, func(ctx context.Context, store *storage.Store, _ *natsclient.Client) error {
				machine := lifecycle.NewMachine(store)
				enforcer := guardrail.NewEnforcer(store, machine)

				violations, err := enforcer.AuditGuardrailViolations(ctx)
				if err != nil {
					return fmt.Errorf("audit published edges: %w", err)
				}

				if len(violations) == 0 {
					fmt.Println("No guardrail violations.")
					return nil
				}

				for _, v := range violations {
					fmt.Printf("%s  status=%s impl=%s  %s\n", v.ProposalID, v.Status, v.ImplStatus, v.Reason)
				}
				return fmt.Errorf("%d guardrail violation(s) found", len(violations))
			})
		},
	}
}

// reconcileCmd requests an immediate reconciliation pass.
func reconcileCmd(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Trigger a reconciliation pass on a running instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(*logLevel, func(ctx context.Context, _ *storage.Store, client *natsclient.Client) error {
				subject := delegationorchestrator.DefaultConfig().TriggerSubject
				if err := client.PublishToStream(ctx, subject, []byte(`{"source":"cli"}`)); err != nil {
					return fmt.Errorf("publish reconcile trigger: %w", err)
				}
				fmt.Println("Reconciliation requested.")
				return nil
			})
		},
	}
}

// withStore connects to NATS, opens the lifecycle store, and runs fn.
func withStore(logLevel string, fn func(context.Context, *storage.Store, *natsclient.Client) error) error {
	logger := newLogger(logLevel)
	slog.SetDefault(logger)

	appCfg, err := appconfig.NewLoader(logger).Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	client, err := connectToNATS(ctx, appCfg, logger)
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	js, err := client.JetStream()
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}

	store, err := storage.NewStore(ctx, js)
	if err != nil {
		return fmt.Errorf("open lifecycle store: %w", err)
	}

	return fn(ctx, store, client)
}

func newLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════════╗")
	fmt.Println("║             Archon v" + Version + "                      ║")
	fmt.Println("║    Architecture Lifecycle Engine              ║")
	fmt.Println("╚═══════════════════════════════════════════════╝")
}

func connectToNATS(ctx context.Context, appCfg *appconfig.Config, logger *slog.Logger) (*natsclient.Client, error) {
	natsURL := appCfg.NATS.URL

	// Environment variable override takes precedence
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		natsURL = envURL
	} else if envURL := os.Getenv("ARCHON_NATS_URL"); envURL != "" {
		natsURL = envURL
	}

	logger.Info("Connecting to NATS", "url", natsURL)

	client, err := natsclient.NewClient(natsURL,
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(-1),
		natsclient.WithReconnectWait(time.Second),
		natsclient.WithCircuitBreakerThreshold(20), // Higher threshold for startup bursts
		natsclient.WithHealthInterval(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, wrapNATSError(err, natsURL)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, wrapNATSError(err, natsURL)
	}

	logger.Info("Connected to NATS", "url", natsURL)
	return client, nil
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker compose up -d nats

Or set NATS_URL environment variable to point to your NATS server.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}

// buildServiceConfig translates the layered archon config into the
// semstreams service configuration.
func buildServiceConfig(appCfg *appconfig.Config) (*config.Config, error) {
	orchestratorConfig := delegationorchestrator.Config{
		AutoVet:                  appCfg.Orchestrator.AutoVet,
		AutoImplement:            appCfg.Orchestrator.AutoImplement,
		AutoValidate:             appCfg.Orchestrator.AutoValidate,
		AutoSync:                 appCfg.Orchestrator.AutoSync,
		ReconcileIntervalSeconds: int(appCfg.Orchestrator.ReconcileInterval.Seconds()),
	}
	orchestratorJSON, err := json.Marshal(orchestratorConfig)
	if err != nil {
		return nil, fmt.Errorf("marshal orchestrator config: %w", err)
	}

	apiJSON, err := json.Marshal(lifecycleapi.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("marshal lifecycle-api config: %w", err)
	}

	return &config.Config{
		Version: "1.0.0",
		Platform: config.PlatformConfig{
			Org:         "archon",
			ID:          "archon-local",
			Environment: "dev",
		},
		NATS: config.NATSConfig{
			URLs:          []string{appCfg.NATS.URL},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			JetStream: config.JetStreamConfig{
				Enabled: true,
			},
		},
		Services: types.ServiceConfigs{},
		Components: config.ComponentConfigs{
			"delegation-orchestrator": types.ComponentConfig{
				Name:    "delegation-orchestrator",
				Type:    types.ComponentTypeProcessor,
				Enabled: true,
				Config:  orchestratorJSON,
			},
			"lifecycle-api": types.ComponentConfig{
				Name:    "lifecycle-api",
				Type:    types.ComponentTypeProcessor,
				Enabled: true,
				Config:  apiJSON,
			},
		},
		Streams: config.StreamConfigs{
			"ARCHON": config.StreamConfig{
				Subjects: []string{
					"archon.reconcile.>",
				},
				MaxAge:   "24h",
				Storage:  "file",
				Replicas: 1,
			},
			"GRAPH": config.StreamConfig{
				Subjects: []string{
					"graph.ingest.entity",
					"graph.export.>",
				},
				MaxAge:   "24h",
				Storage:  "memory",
				Replicas: 1,
			},
		},
	}, nil
}

func ensureStreams(ctx context.Context, cfg *config.Config, natsClient *natsclient.Client, logger *slog.Logger) error {
	logger.Debug("Creating JetStream streams")
	streamsManager := config.NewStreamsManager(natsClient, logger)

	if err := streamsManager.EnsureStreams(ctx, cfg); err != nil {
		return fmt.Errorf("ensure streams: %w", err)
	}

	logger.Debug("JetStream streams ready")
	return nil
}

func extractPlatformMeta(cfg *config.Config) types.PlatformMeta {
	platformID := cfg.Platform.InstanceID
	if platformID == "" {
		platformID = cfg.Platform.ID
	}

	return types.PlatformMeta{
		Org:      cfg.Platform.Org,
		Platform: platformID,
	}
}

// ensureServiceManagerConfig ensures service-manager config exists with defaults
func ensureServiceManagerConfig(cfg *config.Config, appCfg *appconfig.Config) {
	if cfg.Services == nil {
		cfg.Services = make(types.ServiceConfigs)
	}

	if _, exists := cfg.Services["service-manager"]; !exists {
		slog.Debug("Adding default service-manager config")
		defaultConfig := map[string]any{
			"http_port":  httpPort(appCfg.HTTP.Addr),
			"swagger_ui": false,
			"server_info": map[string]string{
				"title":       "Archon API",
				"description": "architecture document lifecycle - proposals, guardrails, and reconciliation",
				"version":     Version,
			},
		}
		defaultConfigJSON, _ := json.Marshal(defaultConfig)
		cfg.Services["service-manager"] = types.ServiceConfig{
			Name:    "service-manager",
			Enabled: true,
			Config:  defaultConfigJSON,
		}
		slog.Debug("Service-manager config added", "enabled", true)
	}
}

// httpPort extracts the port number from a listen address like ":8080".
func httpPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 8080
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 8080
	}
	return port
}

// configureAndCreateServices configures the manager and creates all services
func configureAndCreateServices(
	cfg *config.Config,
	manager *service.Manager,
	svcDeps *service.Dependencies,
) error {
	slog.Debug("Configuring Manager")
	if err := manager.ConfigureFromServices(cfg.Services, svcDeps); err != nil {
		return fmt.Errorf("configure service manager: %w", err)
	}

	slog.Debug("Creating services from config", "count", len(cfg.Services))
	for name, svcConfig := range cfg.Services {
		if name == "service-manager" {
			slog.Debug("Skipping service-manager (configured directly)")
			continue
		}

		if err := createServiceIfEnabled(manager, name, svcConfig, svcDeps); err != nil {
			return err
		}
	}

	return nil
}

// createServiceIfEnabled creates a service if it's enabled and registered
func createServiceIfEnabled(
	manager *service.Manager,
	name string,
	svcConfig types.ServiceConfig,
	svcDeps *service.Dependencies,
) error {
	slog.Debug("Processing service config", "key", name, "name", svcConfig.Name, "enabled", svcConfig.Enabled)

	if !svcConfig.Enabled {
		slog.Info("Service disabled in config", "name", name)
		return nil
	}

	if !manager.HasConstructor(name) {
		slog.Warn("Service configured but not registered", "key", name, "available_constructors", manager.ListConstructors())
		return nil
	}

	slog.Debug("Creating service", "name", name, "has_constructor", true)
	if _, err := manager.CreateService(name, svcConfig.Config, svcDeps); err != nil {
		return fmt.Errorf("create service %s: %w", name, err)
	}

	slog.Info("Created service", "name", name, "config_name", svcConfig.Name)
	return nil
}
