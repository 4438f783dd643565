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
// This file defines the component configuration families: LLM backend
// selection, embedder backend selection with fallback, the RAG store, tool
// class policies, agent resource defaults, the Coordinator, and the HTTP
// server.
package config

import (
	"fmt"
	"time"

	"github.com/swarmhive/swarmd/pkg/toolhost"
	"github.com/swarmhive/swarmd/pkg/vector"
)

// ============================================================================
// LLM CONFIGURATION
// ============================================================================

// LLMConfig selects and configures the backend every Agent and the
// Coordinator's planner/merge turns talk to through the LLM Client.
type LLMConfig struct {
	Backend     string  `yaml:"backend"` // "ollama" or "openai"
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature,omitempty"`
	TopP        float64 `yaml:"top_p,omitempty"`

	Ollama OllamaBackendConfig `yaml:"ollama,omitempty"`
	OpenAI OpenAIBackendConfig `yaml:"openai,omitempty"`

	Resilience ResilienceConfig `yaml:"resilience,omitempty"`
}

// OllamaBackendConfig configures a local Ollama chat endpoint.
type OllamaBackendConfig struct {
	BaseURL    string `yaml:"base_url,omitempty"`
	MaxRetries int    `yaml:"max_retries,omitempty"`
}

// OpenAIBackendConfig configures a remote OpenAI-compatible chat endpoint.
type OpenAIBackendConfig struct {
	BaseURL    string `yaml:"base_url,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	MaxRetries int    `yaml:"max_retries,omitempty"`
}

// ResilienceConfig mirrors the retry/breaker/rate-limit/concurrency knobs
// the LLM Client applies uniformly regardless of backend.
type ResilienceConfig struct {
	MaxRetries int           `yaml:"max_retries,omitempty"`
	BaseDelay  time.Duration `yaml:"base_delay,omitempty"`
	MaxDelay   time.Duration `yaml:"max_delay,omitempty"`

	BreakerFailureThreshold int           `yaml:"breaker_failure_threshold,omitempty"`
	BreakerSuccessThreshold int           `yaml:"breaker_success_threshold,omitempty"`
	BreakerCooldown         time.Duration `yaml:"breaker_cooldown,omitempty"`

	RateLimit float64 `yaml:"rate_limit,omitempty"` // tokens/sec
	RateBurst int     `yaml:"rate_burst,omitempty"`

	Concurrency int `yaml:"concurrency,omitempty"`
}

// Validate implements Config.Validate for LLMConfig.
func (c *LLMConfig) Validate() error {
	switch c.Backend {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unsupported llm backend %q (valid: ollama, openai)", c.Backend)
	}
	if c.Backend == "openai" && c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai backend requires api_key")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for LLMConfig.
func (c *LLMConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "ollama"
	}
	if c.Model == "" {
		switch c.Backend {
		case "openai":
			c.Model = "gpt-4o-mini"
		default:
			c.Model = "llama3.1"
		}
	}
	if c.TopP == 0 {
		c.TopP = 1.0
	}
}

// ============================================================================
// EMBEDDER CONFIGURATION
// ============================================================================

// EmbedderBackendConfig names one embedding backend: Ollama or OpenAI.
type EmbedderBackendConfig struct {
	Backend string `yaml:"backend"` // "ollama" or "openai"
	Model   string `yaml:"model,omitempty"`

	Ollama EmbedderOllamaConfig `yaml:"ollama,omitempty"`
	OpenAI EmbedderOpenAIConfig `yaml:"openai,omitempty"`
}

// EmbedderOllamaConfig configures a local Ollama embedding endpoint.
type EmbedderOllamaConfig struct {
	BaseURL    string `yaml:"base_url,omitempty"`
	MaxRetries int    `yaml:"max_retries,omitempty"`
}

// EmbedderOpenAIConfig configures a remote, OpenAI-style embeddings endpoint.
type EmbedderOpenAIConfig struct {
	BaseURL    string `yaml:"base_url,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	MaxRetries int    `yaml:"max_retries,omitempty"`
}

func (c *EmbedderBackendConfig) setDefaults() {
	if c.Backend == "" {
		c.Backend = "ollama"
	}
	if c.Model == "" {
		switch c.Backend {
		case "openai":
			c.Model = "text-embedding-3-small"
		default:
			c.Model = "nomic-embed-text"
		}
	}
}

func (c *EmbedderBackendConfig) validate() error {
	switch c.Backend {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unsupported embedder backend %q (valid: ollama, openai)", c.Backend)
	}
	if c.Backend == "openai" && c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai embedder backend requires api_key")
	}
	return nil
}

// EmbedderConfig selects the primary embedding backend and an optional
// fallback the embedder package's primary/secondary wrapper switches to
// when the primary backend is unavailable.
type EmbedderConfig struct {
	Primary  EmbedderBackendConfig  `yaml:"primary"`
	Fallback *EmbedderBackendConfig `yaml:"fallback,omitempty"`
}

// Validate implements Config.Validate for EmbedderConfig.
func (c *EmbedderConfig) Validate() error {
	if err := c.Primary.validate(); err != nil {
		return fmt.Errorf("primary: %w", err)
	}
	if c.Fallback != nil {
		if err := c.Fallback.validate(); err != nil {
			return fmt.Errorf("fallback: %w", err)
		}
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for EmbedderConfig.
func (c *EmbedderConfig) SetDefaults() {
	c.Primary.setDefaults()
	if c.Fallback != nil {
		c.Fallback.setDefaults()
	}
}

// ============================================================================
// RAG STORE CONFIGURATION
// ============================================================================

// RAGConfig configures the RAG Store's persisted vector backend and the
// collection add_documents/search_knowledge operate against by default.
type RAGConfig struct {
	DefaultCollection string                `yaml:"default_collection,omitempty"`
	Vector            vector.ProviderConfig `yaml:"vector,omitempty"`
}

// Validate implements Config.Validate for RAGConfig.
func (c *RAGConfig) Validate() error {
	return c.Vector.Validate()
}

// SetDefaults implements Config.SetDefaults for RAGConfig.
func (c *RAGConfig) SetDefaults() {
	if c.DefaultCollection == "" {
		c.DefaultCollection = "default"
	}
	c.Vector.SetDefaults()
}

// ============================================================================
// TOOL POLICY CONFIGURATION
// ============================================================================

// ToolsConfig lists which tool classes are enabled and the policy bounds
// the Tool Host enforces for each. A nil class entry means that class of
// tool is not registered at all.
type ToolsConfig struct {
	FilesystemRead  *FilesystemReadPolicy  `yaml:"filesystem_read,omitempty"`
	FilesystemWrite *FilesystemWritePolicy `yaml:"filesystem_write,omitempty"`
	Database        *DatabasePolicy        `yaml:"database,omitempty"`
	CodeExecution   *CodeExecutionPolicy   `yaml:"code_execution,omitempty"`
	Web             *WebPolicy             `yaml:"web,omitempty"`
	ImageGeneration *ImageGenerationPolicy `yaml:"image_generation,omitempty"`
	External        *ExternalPolicy        `yaml:"external,omitempty"`

	// MCPServers lists external Model-Context-Protocol tool servers whose
	// advertised tools are discovered and registered alongside the
	// built-in classes above.
	MCPServers []MCPServerConfig `yaml:"mcp_servers,omitempty"`
}

// MCPServerConfig names one stdio-transport MCP server to connect to at
// startup and the subset of its tools to register, if any restriction is
// wanted.
type MCPServerConfig struct {
	Name        string            `yaml:"name"`
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
	Filter      []string          `yaml:"filter,omitempty"`
	CallTimeout time.Duration     `yaml:"call_timeout,omitempty"`
}

// FilesystemReadPolicy bounds the filesystem-read tool class.
type FilesystemReadPolicy struct {
	AllowedRoots []string `yaml:"allowed_roots"`
	MaxReadBytes int64    `yaml:"max_read_bytes,omitempty"`
}

// ToPolicy converts a FilesystemReadPolicy into a toolhost.Policy.
func (p FilesystemReadPolicy) ToPolicy() toolhost.Policy {
	return toolhost.Policy{Class: toolhost.ClassFilesystemRead, AllowedRoots: p.AllowedRoots, MaxReadBytes: p.MaxReadBytes}
}

// FilesystemWritePolicy bounds the filesystem-write tool class.
type FilesystemWritePolicy struct {
	AllowedRoots []string `yaml:"allowed_roots"`
	WriteQuota   int64    `yaml:"write_quota,omitempty"`
}

// ToPolicy converts a FilesystemWritePolicy into a toolhost.Policy.
func (p FilesystemWritePolicy) ToPolicy() toolhost.Policy {
	return toolhost.Policy{Class: toolhost.ClassFilesystemWrite, AllowedRoots: p.AllowedRoots, WriteQuota: p.WriteQuota}
}

// DatabasePolicy bounds the database tool class and names the database
// the query_database tool connects to.
type DatabasePolicy struct {
	Driver string `yaml:"driver"` // "mysql" or "postgres"
	DSN    string `yaml:"dsn"`

	MaxRows   int           `yaml:"max_rows,omitempty"`
	QueryTime time.Duration `yaml:"query_time,omitempty"`
}

// ToPolicy converts a DatabasePolicy into a toolhost.Policy.
func (p DatabasePolicy) ToPolicy() toolhost.Policy {
	return toolhost.Policy{Class: toolhost.ClassDatabase, MaxRows: p.MaxRows, QueryTime: p.QueryTime}
}

// CodeExecutionPolicy bounds the code-execution tool class.
type CodeExecutionPolicy struct {
	CommandAllowlist []string      `yaml:"command_allowlist"`
	WallClock        time.Duration `yaml:"wall_clock,omitempty"`
	OutputCap        int           `yaml:"output_cap,omitempty"`
}

// ToPolicy converts a CodeExecutionPolicy into a toolhost.Policy.
func (p CodeExecutionPolicy) ToPolicy() toolhost.Policy {
	return toolhost.Policy{Class: toolhost.ClassCodeExecution, CommandAllowlist: p.CommandAllowlist, WallClock: p.WallClock, OutputCap: p.OutputCap}
}

// WebPolicy bounds the web tool class.
type WebPolicy struct {
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
	ResponseCap    int64         `yaml:"response_cap,omitempty"`
}

// ToPolicy converts a WebPolicy into a toolhost.Policy.
func (p WebPolicy) ToPolicy() toolhost.Policy {
	return toolhost.Policy{Class: toolhost.ClassWeb, RequestTimeout: p.RequestTimeout, ResponseCap: p.ResponseCap}
}

// ImageGenerationPolicy bounds the image-generation tool class and
// selects which Backend renders images: "stub" (a local, deterministic
// placeholder, the zero-config default) or "http" (a remote
// OpenAI-compatible image generation service).
type ImageGenerationPolicy struct {
	Backend   string `yaml:"backend,omitempty"` // "stub" or "http"
	MaxImages int    `yaml:"max_images,omitempty"`
	MaxBytes  int64  `yaml:"max_bytes,omitempty"`

	HTTP *ImageGenerationHTTPBackend `yaml:"http,omitempty"`
}

// ImageGenerationHTTPBackend configures the remote "http" image
// generation backend.
type ImageGenerationHTTPBackend struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key,omitempty"`
	MaxRetries int           `yaml:"max_retries,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
}

// ToPolicy converts an ImageGenerationPolicy into a toolhost.Policy.
func (p ImageGenerationPolicy) ToPolicy() toolhost.Policy {
	return toolhost.Policy{Class: toolhost.ClassImageGeneration, MaxImages: p.MaxImages, MaxBytes: p.MaxBytes}
}

// ExternalPolicy bounds the catch-all external tool class.
type ExternalPolicy struct {
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
}

// ToPolicy converts an ExternalPolicy into a toolhost.Policy.
func (p ExternalPolicy) ToPolicy() toolhost.Policy {
	return toolhost.Policy{Class: toolhost.ClassExternal, RequestTimeout: p.RequestTimeout}
}

// Validate implements Config.Validate for ToolsConfig.
func (c *ToolsConfig) Validate() error {
	for name, p := range c.enabledPolicies() {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Database != nil {
		switch c.Database.Driver {
		case "mysql", "postgres":
		default:
			return fmt.Errorf("database: unsupported driver %q (valid: mysql, postgres)", c.Database.Driver)
		}
		if c.Database.DSN == "" {
			return fmt.Errorf("database: dsn is required")
		}
	}
	if c.ImageGeneration != nil {
		switch c.ImageGeneration.Backend {
		case "stub", "http":
		default:
			return fmt.Errorf("image_generation: unsupported backend %q (valid: stub, http)", c.ImageGeneration.Backend)
		}
		if c.ImageGeneration.Backend == "http" {
			if c.ImageGeneration.HTTP == nil || c.ImageGeneration.HTTP.BaseURL == "" {
				return fmt.Errorf("image_generation: http backend requires http.base_url")
			}
		}
	}
	for i, srv := range c.MCPServers {
		if srv.Name == "" {
			return fmt.Errorf("mcp_servers[%d]: name is required", i)
		}
		if srv.Command == "" {
			return fmt.Errorf("mcp_servers[%d]: command is required", i)
		}
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for ToolsConfig.
func (c *ToolsConfig) SetDefaults() {
	if c.FilesystemRead != nil {
		if len(c.FilesystemRead.AllowedRoots) == 0 {
			c.FilesystemRead.AllowedRoots = []string{"."}
		}
		if c.FilesystemRead.MaxReadBytes == 0 {
			c.FilesystemRead.MaxReadBytes = 1 << 20
		}
	}
	if c.FilesystemWrite != nil && c.FilesystemWrite.WriteQuota == 0 {
		c.FilesystemWrite.WriteQuota = 1 << 20
	}
	if c.Database != nil {
		if c.Database.MaxRows == 0 {
			c.Database.MaxRows = 1000
		}
		if c.Database.QueryTime == 0 {
			c.Database.QueryTime = 10 * time.Second
		}
	}
	if c.CodeExecution != nil {
		if c.CodeExecution.WallClock == 0 {
			c.CodeExecution.WallClock = 30 * time.Second
		}
		if c.CodeExecution.OutputCap == 0 {
			c.CodeExecution.OutputCap = 1 << 16
		}
	}
	if c.Web != nil {
		if c.Web.RequestTimeout == 0 {
			c.Web.RequestTimeout = 15 * time.Second
		}
		if c.Web.ResponseCap == 0 {
			c.Web.ResponseCap = 1 << 20
		}
	}
	if c.ImageGeneration != nil {
		if c.ImageGeneration.Backend == "" {
			c.ImageGeneration.Backend = "stub"
		}
		if c.ImageGeneration.MaxImages == 0 {
			c.ImageGeneration.MaxImages = 1
		}
		if c.ImageGeneration.Backend == "http" && c.ImageGeneration.HTTP != nil {
			if c.ImageGeneration.HTTP.MaxRetries == 0 {
				c.ImageGeneration.HTTP.MaxRetries = 3
			}
			if c.ImageGeneration.HTTP.Timeout == 0 {
				c.ImageGeneration.HTTP.Timeout = 60 * time.Second
			}
		}
	}
	if c.External != nil && c.External.RequestTimeout == 0 {
		c.External.RequestTimeout = 15 * time.Second
	}
	for i := range c.MCPServers {
		if c.MCPServers[i].CallTimeout == 0 {
			c.MCPServers[i].CallTimeout = 30 * time.Second
		}
	}
}

func (c *ToolsConfig) enabledPolicies() map[string]toolhost.Policy {
	policies := make(map[string]toolhost.Policy)
	if c.FilesystemRead != nil {
		policies["filesystem_read"] = c.FilesystemRead.ToPolicy()
	}
	if c.FilesystemWrite != nil {
		policies["filesystem_write"] = c.FilesystemWrite.ToPolicy()
	}
	if c.Database != nil {
		policies["database"] = c.Database.ToPolicy()
	}
	if c.CodeExecution != nil {
		policies["code_execution"] = c.CodeExecution.ToPolicy()
	}
	if c.Web != nil {
		policies["web"] = c.Web.ToPolicy()
	}
	if c.ImageGeneration != nil {
		policies["image_generation"] = c.ImageGeneration.ToPolicy()
	}
	if c.External != nil {
		policies["external"] = c.External.ToPolicy()
	}
	return policies
}

// ============================================================================
// AGENT DEFAULTS
// ============================================================================

// AgentDefaultsConfig bounds any spawned Agent's turn count and token
// budget when its AgentSpec leaves them unset.
type AgentDefaultsConfig struct {
	MaxTurns  int `yaml:"max_turns,omitempty"`
	MaxTokens int `yaml:"max_tokens,omitempty"`
}

// Validate implements Config.Validate for AgentDefaultsConfig.
func (c *AgentDefaultsConfig) Validate() error {
	if c.MaxTurns <= 0 {
		return fmt.Errorf("max_turns must be positive")
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for AgentDefaultsConfig.
func (c *AgentDefaultsConfig) SetDefaults() {
	if c.MaxTurns == 0 {
		c.MaxTurns = 12
	}
}

// ============================================================================
// COORDINATOR CONFIGURATION
// ============================================================================

// CoordinatorConfig bounds the Swarm Coordinator's planner, merge turn,
// and agent population.
type CoordinatorConfig struct {
	MaxAgents          int     `yaml:"max_agents,omitempty"`
	PlanRepairAttempts int     `yaml:"plan_repair_attempts,omitempty"`
	Model              string  `yaml:"model,omitempty"`
	Temperature        float64 `yaml:"temperature,omitempty"`
	TopP               float64 `yaml:"top_p,omitempty"`

	DefaultDeadline time.Duration `yaml:"default_deadline,omitempty"`
}

// Validate implements Config.Validate for CoordinatorConfig.
func (c *CoordinatorConfig) Validate() error {
	if c.MaxAgents <= 0 {
		return fmt.Errorf("max_agents must be positive")
	}
	if c.PlanRepairAttempts < 0 {
		return fmt.Errorf("plan_repair_attempts cannot be negative")
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for CoordinatorConfig.
func (c *CoordinatorConfig) SetDefaults() {
	if c.MaxAgents == 0 {
		c.MaxAgents = 4
	}
	if c.PlanRepairAttempts == 0 {
		c.PlanRepairAttempts = 2
	}
	if c.TopP == 0 {
		c.TopP = 1.0
	}
	if c.DefaultDeadline == 0 {
		c.DefaultDeadline = 2 * time.Minute
	}
}

// ============================================================================
// SERVER CONFIGURATION
// ============================================================================

// ServerConfig binds the HTTP surface exposing submit_chat, submit_swarm,
// add_documents, search_knowledge, and invoke_tool.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// Validate implements Config.Validate for ServerConfig.
func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for ServerConfig.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
}

// ============================================================================
// GLOBAL CONFIGURATIONS
// ============================================================================

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // Log level
	Format string `yaml:"format"` // Log format
	Output string `yaml:"output"` // Output destination
}

// Validate implements Config.Validate for LoggingConfig.
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Level] {
		return fmt.Errorf("invalid log level: %s", c.Level)
	}
	validFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validFormats[c.Format] {
		return fmt.Errorf("invalid log format: %s", c.Format)
	}
	validOutputs := map[string]bool{
		"stdout": true, "stderr": true, "file": true,
	}
	if !validOutputs[c.Output] {
		return fmt.Errorf("invalid output destination: %s", c.Output)
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for LoggingConfig.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
	if c.Output == "" {
		c.Output = "stdout"
	}
}

// PerformanceConfig represents global performance configuration.
type PerformanceConfig struct {
	MaxConcurrency int           `yaml:"max_concurrency"` // Max concurrency
	Timeout        time.Duration `yaml:"timeout"`         // Global timeout
}

// Validate implements Config.Validate for PerformanceConfig.
func (c *PerformanceConfig) Validate() error {
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for PerformanceConfig.
func (c *PerformanceConfig) SetDefaults() {
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = 4
	}
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Minute
	}
}
