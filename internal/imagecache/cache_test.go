package imagecache

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimizer_ResizeOverMaxWidth(t *testing.T) {
	data := mustEncodeJPEG(t, makeSolidNRGBA(1200, 800, color.NRGBA{R: 20, G: 50, B: 200, A: 255}), 90)

	out, err := NewOptimizer(600, 0, 0).Optimize("image/jpeg", data, false)
	require.NoError(t, err)
	assert.Equal(t, 600, out.Width)
	assert.Equal(t, 400, out.Height)
	assert.Equal(t, "jpeg", out.Format)
}

func TestOptimizer_CoverIsNotResized(t *testing.T) {
	data := mustEncodeJPEG(t, makeSolidNRGBA(1200, 800, color.NRGBA{R: 20, G: 50, B: 200, A: 255}), 90)

	out, err := NewOptimizer(600, 0, 0).Optimize("image/jpeg", data, true)
	require.NoError(t, err)
	assert.Equal(t, 1200, out.Width)
}

func TestOptimizer_PNGFormats(t *testing.T) {
	tests := []struct {
		name  string
		alpha uint8
		want  string
	}{
		{name: "opaque becomes jpeg", alpha: 255, want: "jpeg"},
		{name: "transparent stays png", alpha: 120, want: "png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := mustEncodePNG(t, makeSolidNRGBA(300, 200, color.NRGBA{R: 10, G: 80, B: 180, A: tt.alpha}))
			out, err := NewOptimizer(0, 0, 0).Optimize("image/png", data, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Format)
		})
	}
}

func TestOptimizer_KeepAnimatedGIF(t *testing.T) {
	anim := &gif.GIF{
		Image: []*image.Paletted{
			image.NewPaletted(image.Rect(0, 0, 10, 10), color.Palette{color.Black, color.White}),
			image.NewPaletted(image.Rect(0, 0, 10, 10), color.Palette{color.Black, color.White}),
		},
		Delay: []int{5, 5},
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, anim))

	out, err := NewOptimizer(0, 0, 0).Optimize("image/gif", buf.Bytes(), false)
	require.NoError(t, err)
	assert.Equal(t, "gif", out.Format)
	assert.Equal(t, buf.Bytes(), out.Data)
}

func TestOptimizer_UndecodableIsPassthrough(t *testing.T) {
	out, err := NewOptimizer(0, 0, 0).Optimize("image/jpeg", []byte("not an image"), false)
	require.NoError(t, err)
	assert.NotEmpty(t, out.Warning)
	assert.Equal(t, []byte("not an image"), out.Data)
	assert.Nil(t, out.Image)
}

func TestCache_Put(t *testing.T) {
	c, err := New(Options{Dir: t.TempDir(), MaxWidth: 400})
	require.NoError(t, err)

	data := mustEncodePNG(t, makePatternNRGBA(800, 400))
	entry, err := c.Put("book.epub#images/a.png", "image/png", data, false)
	require.NoError(t, err)

	assert.Equal(t, c.Dir(), filepath.Dir(entry.Path))
	assert.Equal(t, ".jpg", filepath.Ext(entry.Path))
	assert.Equal(t, 400, entry.Width)
	assert.Equal(t, 200, entry.Height)
	assert.InDelta(t, 2.0, entry.AspectRatio, 0.001)
	assert.NotEmpty(t, entry.BlurHash)

	stored, err := os.ReadFile(entry.Path)
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(stored))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 400, cfg.Width)

	again, err := c.Put("book.epub#images/a.png", "image/png", data, false)
	require.NoError(t, err)
	assert.Equal(t, entry.Path, again.Path)
	assert.Equal(t, entry.Width, again.Width)
	assert.NotEmpty(t, again.BlurHash)
}

func TestCache_CoverAndContentAreSeparate(t *testing.T) {
	c, err := New(Options{Dir: t.TempDir()})
	require.NoError(t, err)
	data := mustEncodeJPEG(t, makeSolidNRGBA(20, 30, color.NRGBA{R: 1, G: 2, B: 3, A: 255}), 90)

	a, err := c.Put("k", "image/jpeg", data, false)
	require.NoError(t, err)
	b, err := c.Put("k", "image/jpeg", data, true)
	require.NoError(t, err)
	assert.NotEqual(t, a.Path, b.Path)

	require.NoError(t, c.Remove("k", true))
	_, err = os.Stat(b.Path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(a.Path)
	assert.NoError(t, err)
}

func TestCache_PutEmpty(t *testing.T) {
	c, err := New(Options{Dir: t.TempDir()})
	require.NoError(t, err)
	_, err = c.Put("k", "image/png", nil, false)
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestCache_SVGStoredAsIs(t *testing.T) {
	c, err := New(Options{Dir: t.TempDir()})
	require.NoError(t, err)
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"/>`)

	entry, err := c.Put("k.svg", "image/svg+xml", svg, false)
	require.NoError(t, err)
	assert.Equal(t, ".svg", filepath.Ext(entry.Path))
	assert.Zero(t, entry.AspectRatio)
	assert.Empty(t, entry.BlurHash)
}

func makeSolidNRGBA(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func makePatternNRGBA(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 3), G: uint8(y * 5), B: uint8((x + y) * 7), A: 255})
		}
	}
	return img
}

func mustEncodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}))
	return buf.Bytes()
}

func mustEncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
