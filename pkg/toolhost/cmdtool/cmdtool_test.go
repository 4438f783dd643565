package cmdtool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhive/swarmd/pkg/toolhost"
)

func testCtx() toolhost.Context {
	return toolhost.Context{Context: context.Background()}
}

func TestRunCommandSuccess(t *testing.T) {
	cfg := Config{CommandAllowlist: []string{"echo"}}
	def, err := NewRunCommand(cfg)
	require.NoError(t, err)

	out, err := def.Handler(testCtx(), map[string]any{"command": "echo", "args": []any{"hello"}})
	require.NoError(t, err)
	assert.True(t, out["success"].(bool))
	assert.Contains(t, out["output"], "hello")
}

func TestRunCommandRejectsUnlisted(t *testing.T) {
	cfg := Config{CommandAllowlist: []string{"echo"}}
	def, err := NewRunCommand(cfg)
	require.NoError(t, err)

	_, err = def.Handler(testCtx(), map[string]any{"command": "rm", "args": []any{"-rf", "/"}})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, toolhost.ErrPolicyDenied))
}

func TestRunCommandTimeout(t *testing.T) {
	cfg := Config{CommandAllowlist: []string{"sleep"}, WallClock: 20 * time.Millisecond}
	def, err := NewRunCommand(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.WallClock)
	defer cancel()

	_, err = def.Handler(toolhost.Context{Context: ctx}, map[string]any{"command": "sleep", "args": []any{"5"}})
	assert.Error(t, err)
}
