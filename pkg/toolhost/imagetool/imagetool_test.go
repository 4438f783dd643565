package imagetool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhive/swarmd/pkg/toolhost"
)

func testCtx() toolhost.Context {
	return toolhost.Context{Context: context.Background()}
}

func TestGenerateImageStub(t *testing.T) {
	def, err := NewGenerateImage(Config{}, StubBackend{})
	require.NoError(t, err)

	out, err := def.Handler(testCtx(), map[string]any{"prompt": "a red circle", "count": float64(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, out["count"])

	images := out["images"].([]map[string]any)
	require.Len(t, images, 2)
	assert.Equal(t, "image/png", images[0]["content_type"])
}

func TestGenerateImageRejectsEmptyPrompt(t *testing.T) {
	def, err := NewGenerateImage(Config{}, StubBackend{})
	require.NoError(t, err)

	_, err = def.Handler(testCtx(), map[string]any{"prompt": ""})
	assert.Error(t, err)
}

func TestGenerateImageRejectsTooMany(t *testing.T) {
	def, err := NewGenerateImage(Config{MaxImages: 2}, StubBackend{})
	require.NoError(t, err)

	_, err = def.Handler(testCtx(), map[string]any{"prompt": "x", "count": float64(10)})
	assert.Error(t, err)
}

func TestShrinkToFit(t *testing.T) {
	images, err := StubBackend{}.Generate(context.Background(), "x", 1, 256, 256)
	require.NoError(t, err)

	shrunk, err := shrinkToFit(images[0].PNG, 1)
	if err != nil {
		assert.Error(t, err)
		return
	}
	assert.LessOrEqual(t, len(shrunk), len(images[0].PNG))
}
