package filetool

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhive/swarmd/pkg/toolhost"
)

func testCtx() toolhost.Context {
	return toolhost.Context{Context: context.Background()}
}

func TestReadWriteRoundTrip(t *testing.T) {
	root := t.TempDir()
	cfg := Config{AllowedRoots: []string{root}}

	writeDef, err := NewWriteFile(cfg)
	require.NoError(t, err)

	out, err := writeDef.Handler(testCtx(), map[string]any{"path": "a.txt", "content": "hello\nworld"})
	require.NoError(t, err)
	assert.Equal(t, "created", out["action"])

	readDef, err := NewReadFile(cfg)
	require.NoError(t, err)

	out, err = readDef.Handler(testCtx(), map[string]any{"path": "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, 2, out["total_lines"])

	data, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld", string(data))
}

func TestWriteRejectsAbsolutePath(t *testing.T) {
	cfg := Config{AllowedRoots: []string{t.TempDir()}}
	def, err := NewWriteFile(cfg)
	require.NoError(t, err)

	_, err = def.Handler(testCtx(), map[string]any{"path": "/etc/passwd", "content": "x"})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, toolhost.ErrPolicyDenied))
}

func TestWriteRejectsTraversal(t *testing.T) {
	cfg := Config{AllowedRoots: []string{t.TempDir()}}
	def, err := NewWriteFile(cfg)
	require.NoError(t, err)

	_, err = def.Handler(testCtx(), map[string]any{"path": "../escape.txt", "content": "x"})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, toolhost.ErrPolicyDenied))
}

func TestReadRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("top secret"), 0644))
	require.NoError(t, os.Symlink(secret, filepath.Join(root, "link.txt")))

	cfg := Config{AllowedRoots: []string{root}}
	def, err := NewReadFile(cfg)
	require.NoError(t, err)

	_, err = def.Handler(testCtx(), map[string]any{"path": "link.txt"})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, toolhost.ErrPolicyDenied))
}

func TestListDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0755))

	cfg := Config{AllowedRoots: []string{root}}
	def, err := NewListDirectory(cfg)
	require.NoError(t, err)

	out, err := def.Handler(testCtx(), map[string]any{"path": "."})
	require.NoError(t, err)
	assert.Equal(t, 2, out["count"])
}
