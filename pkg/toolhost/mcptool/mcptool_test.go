package mcptool

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertEnv(t *testing.T) {
	out := convertEnv(map[string]string{"FOO": "bar"})
	require.Len(t, out, 1)
	assert.Equal(t, "FOO=bar", out[0])

	assert.Nil(t, convertEnv(nil))
}

func TestParseToolResultSingleText(t *testing.T) {
	resp := &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "hello"}},
	}
	out, err := parseToolResult(resp)
	require.NoError(t, err)
	assert.Equal(t, "hello", out["result"])
}

func TestParseToolResultMultipleText(t *testing.T) {
	resp := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "a"},
			mcp.TextContent{Type: "text", Text: "b"},
		},
	}
	out, err := parseToolResult(resp)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out["results"])
}

func TestParseToolResultError(t *testing.T) {
	resp := &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "boom"}},
	}
	_, err := parseToolResult(resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestConvertSchema(t *testing.T) {
	schema := mcp.ToolInputSchema{
		Type:     "object",
		Required: []string{"path"},
		Properties: map[string]any{
			"path": map[string]any{"type": "string"},
		},
	}
	out := convertSchema(schema)
	require.NotNil(t, out)
	assert.Equal(t, "object", out["type"])
}
