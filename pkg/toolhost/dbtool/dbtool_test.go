package dbtool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhive/swarmd/pkg/toolhost"
)

func testCtx() toolhost.Context {
	return toolhost.Context{Context: context.Background()}
}

func TestRejectsNonSelect(t *testing.T) {
	def, err := NewQueryDatabase(Config{Driver: "mysql", DSN: "user:pass@tcp(127.0.0.1:3306)/db"})
	require.NoError(t, err)

	_, err = def.Handler(testCtx(), map[string]any{"query": "DELETE FROM users"})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, toolhost.ErrPolicyDenied))
}

func TestRejectsEmptyQuery(t *testing.T) {
	def, err := NewQueryDatabase(Config{Driver: "mysql", DSN: "user:pass@tcp(127.0.0.1:3306)/db"})
	require.NoError(t, err)

	_, err = def.Handler(testCtx(), map[string]any{"query": "   "})
	assert.Error(t, err)
}

func TestNormalizeValueConvertsBytes(t *testing.T) {
	assert.Equal(t, "hello", normalizeValue([]byte("hello")))
	assert.Equal(t, 42, normalizeValue(42))
}
