// Package config provides configuration loading and management for Archon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete Archon configuration
type Config struct {
	NATS         NATSConfig         `yaml:"nats"`
	HTTP         HTTPConfig         `yaml:"http"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL
	URL string `yaml:"url"`
}

// HTTPConfig configures the control-surface HTTP listener
type HTTPConfig struct {
	// Addr is the listen address for lifecycle-api endpoints
	Addr string `yaml:"addr"`
}

// OrchestratorConfig configures the delegation orchestrator
type OrchestratorConfig struct {
	// ReconcileInterval is the delay between automatic reconciliation passes
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	// AutoVet enables the vetting stage (nil = enabled)
	AutoVet *bool `yaml:"auto_vet"`
	// AutoImplement enables the implementation stage (nil = enabled)
	AutoImplement *bool `yaml:"auto_implement"`
	// AutoValidate enables the validation stage (nil = enabled)
	AutoValidate *bool `yaml:"auto_validate"`
	// AutoSync enables guardrail-checked publishing (nil = enabled)
	AutoSync *bool `yaml:"auto_sync"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Orchestrator: OrchestratorConfig{
			ReconcileInterval: time.Minute,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.Orchestrator.ReconcileInterval <= 0 {
		return fmt.Errorf("orchestrator.reconcile_interval must be positive")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}

	// HTTP
	if other.HTTP.Addr != "" {
		c.HTTP.Addr = other.HTTP.Addr
	}

	// Orchestrator
	if other.Orchestrator.ReconcileInterval != 0 {
		c.Orchestrator.ReconcileInterval = other.Orchestrator.ReconcileInterval
	}
	if other.Orchestrator.AutoVet != nil {
		c.Orchestrator.AutoVet = other.Orchestrator.AutoVet
	}
	if other.Orchestrator.AutoImplement != nil {
		c.Orchestrator.AutoImplement = other.Orchestrator.AutoImplement
	}
	if other.Orchestrator.AutoValidate != nil {
		c.Orchestrator.AutoValidate = other.Orchestrator.AutoValidate
	}
	if other.Orchestrator.AutoSync != nil {
		c.Orchestrator.AutoSync = other.Orchestrator.AutoSync
	}
}
