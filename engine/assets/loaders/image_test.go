package loaders

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/spaghettifunk/rivet/engine/core"
	"github.com/spaghettifunk/rivet/engine/renderer/metadata"
)

func TestLoadDecodesBMP(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	img.SetRGBA(1, 0, color.RGBA{B: 255, A: 255})

	path := filepath.Join(t.TempDir(), "test.bmp")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, bmp.Encode(f, img))
	require.NoError(t, f.Close())

	loader := &ImageLoader{}
	blob, err := loader.Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), blob.Width)
	assert.Equal(t, uint32(1), blob.Height)
	assert.Equal(t, metadata.FormatRGBA8, blob.Format)
	assert.Equal(t, []byte{255, 0, 0, 255, 0, 0, 255, 255}, blob.Layers[0])
}

func TestLoadReportsUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noise.bin")
	require.NoError(t, os.WriteFile(path, []byte{0xde, 0xad, 0xbe, 0xef}, 0o644))

	loader := &ImageLoader{}
	_, err := loader.Load(path)
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
}

func TestLoadMissingFile(t *testing.T) {
	loader := &ImageLoader{}
	_, err := loader.Load(filepath.Join(t.TempDir(), "absent.png"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrUnsupportedFormat)
}
