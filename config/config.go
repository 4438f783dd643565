// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config provides configuration types and utilities for the swarm
// coordination service.
// This file contains the main unified configuration entry point.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/swarmhive/swarmd/pkg/observability"
)

// ============================================================================
// MAIN UNIFIED CONFIGURATION
// ============================================================================

// Config represents the complete configuration of a swarmd instance: the
// HTTP surface, logging/performance settings, and every component the
// Swarm Coordinator, Agents, Tool Host, and RAG Store are built from.
type Config struct {
	Version     string            `yaml:"version,omitempty"`
	Name        string            `yaml:"name,omitempty"`
	Description string            `yaml:"description,omitempty"`
	Metadata    map[string]string `yaml:"metadata,omitempty"`

	Server        ServerConfig         `yaml:"server,omitempty"`
	Logging       LoggingConfig        `yaml:"logging,omitempty"`
	Performance   PerformanceConfig    `yaml:"performance,omitempty"`
	Observability observability.Config `yaml:"observability,omitempty"`

	LLM           LLMConfig           `yaml:"llm,omitempty"`
	Embedder      EmbedderConfig      `yaml:"embedder,omitempty"`
	RAG           RAGConfig           `yaml:"rag,omitempty"`
	Tools         ToolsConfig         `yaml:"tools,omitempty"`
	AgentDefaults AgentDefaultsConfig `yaml:"agent_defaults,omitempty"`
	Coordinator   CoordinatorConfig   `yaml:"coordinator,omitempty"`
}

// Validate implements Config.Validate for Config.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config validation failed: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config validation failed: %w", err)
	}
	if err := c.Performance.Validate(); err != nil {
		return fmt.Errorf("performance config validation failed: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability config validation failed: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm config validation failed: %w", err)
	}
	if err := c.Embedder.Validate(); err != nil {
		return fmt.Errorf("embedder config validation failed: %w", err)
	}
	if err := c.RAG.Validate(); err != nil {
		return fmt.Errorf("rag config validation failed: %w", err)
	}
	if err := c.Tools.Validate(); err != nil {
		return fmt.Errorf("tools config validation failed: %w", err)
	}
	if err := c.AgentDefaults.Validate(); err != nil {
		return fmt.Errorf("agent_defaults config validation failed: %w", err)
	}
	if err := c.Coordinator.Validate(); err != nil {
		return fmt.Errorf("coordinator config validation failed: %w", err)
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for Config.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Logging.SetDefaults()
	c.Performance.SetDefaults()
	c.Observability.SetDefaults()
	c.LLM.SetDefaults()
	c.Embedder.SetDefaults()
	c.RAG.SetDefaults()
	c.Tools.SetDefaults()
	c.AgentDefaults.SetDefaults()
	c.Coordinator.SetDefaults()
}

// ============================================================================
// CONFIGURATION LOADING
// ============================================================================

// LoadConfig loads the complete configuration from a YAML file, expanding
// ${VAR}-style environment references before parsing.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadConfigFromString(string(data))
}

// LoadConfigFromString loads configuration from a YAML string, expanding
// ${VAR}-style environment references before parsing.
func LoadConfigFromString(yamlContent string) (*Config, error) {
	expanded := expandEnvVars(yamlContent)

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
