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

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageGenerationPolicyDefaultsToStub(t *testing.T) {
	tools := &ToolsConfig{ImageGeneration: &ImageGenerationPolicy{}}
	tools.SetDefaults()
	assert.Equal(t, "stub", tools.ImageGeneration.Backend)
	assert.Equal(t, 1, tools.ImageGeneration.MaxImages)
	require.NoError(t, tools.Validate())
}

func TestImageGenerationPolicyRejectsUnknownBackend(t *testing.T) {
	tools := &ToolsConfig{ImageGeneration: &ImageGenerationPolicy{Backend: "carrier-pigeon"}}
	assert.Error(t, tools.Validate())
}

func TestImageGenerationPolicyHTTPBackendRequiresBaseURL(t *testing.T) {
	tools := &ToolsConfig{ImageGeneration: &ImageGenerationPolicy{Backend: "http"}}
	assert.Error(t, tools.Validate())

	tools.ImageGeneration.HTTP = &ImageGenerationHTTPBackend{BaseURL: "https://images.example.com"}
	require.NoError(t, tools.Validate())

	tools.SetDefaults()
	assert.Equal(t, 3, tools.ImageGeneration.HTTP.MaxRetries)
	assert.NotZero(t, tools.ImageGeneration.HTTP.Timeout)
}

func TestMCPServerConfigRequiresNameAndCommand(t *testing.T) {
	tools := &ToolsConfig{MCPServers: []MCPServerConfig{{Name: "", Command: "mcp-server"}}}
	assert.Error(t, tools.Validate())

	tools.MCPServers[0].Name = "filesystem"
	require.NoError(t, tools.Validate())
}

func TestMCPServerConfigDefaultsCallTimeout(t *testing.T) {
	tools := &ToolsConfig{MCPServers: []MCPServerConfig{{Name: "filesystem", Command: "mcp-server"}}}
	tools.SetDefaults()
	assert.Equal(t, 30_000_000_000, int(tools.MCPServers[0].CallTimeout))
}

func TestConfigValidatesObservability(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
}
