package raster

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/drawfast/internal/canvas"
)

func decode(t *testing.T, img *Image) image.Image {
	t.Helper()
	out, err := png.Decode(bytes.NewReader(img.Data))
	require.NoError(t, err)
	return out
}

func filledRect(x, y, w, h float64) canvas.Element {
	return canvas.Element{ID: "shape:r", Kind: canvas.KindRect, X: x, Y: y, W: w, H: h, Style: canvas.Style{Fill: true}}
}

func TestRasterizeScalesToTarget(t *testing.T) {
	r := New(0)
	bounds := canvas.Box{X: 100, Y: 100, W: 200, H: 100}

	img, err := r.Rasterize(context.Background(), []canvas.Element{filledRect(150, 120, 50, 50)}, bounds, false)
	require.NoError(t, err)
	require.NotNil(t, img)

	assert.Equal(t, 512, img.Width)
	assert.Equal(t, 256, img.Height)
	assert.Equal(t, "image/png", img.MimeType)
	assert.True(t, strings.HasPrefix(img.DataURI(), "data:image/png;base64,"))

	decoded := decode(t, img)
	assert.Equal(t, image.Rect(0, 0, 512, 256), decoded.Bounds())
}

func TestRasterizeBackgroundFollowsTheme(t *testing.T) {
	r := New(64)
	bounds := canvas.Box{W: 100, H: 100}
	els := []canvas.Element{filledRect(40, 40, 20, 20)}

	tests := []struct {
		name string
		dark bool
		want uint32
	}{
		{"light", false, 0xffff},
		{"dark", true, 0x1010},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := r.Rasterize(context.Background(), els, bounds, tt.dark)
			require.NoError(t, err)
			red, _, _, _ := decode(t, img).At(2, 2).RGBA()
			assert.Equal(t, tt.want, red)
		})
	}
}

func TestRasterizeDrawsShapes(t *testing.T) {
	r := New(100)
	bounds := canvas.Box{W: 100, H: 100}
	img, err := r.Rasterize(context.Background(), []canvas.Element{filledRect(25, 25, 50, 50)}, bounds, false)
	require.NoError(t, err)

	red, _, _, _ := decode(t, img).At(50, 50).RGBA()
	assert.Less(t, red, uint32(0x8000), "center of the filled rect should be ink colored")
}

func TestRasterizeNothingToDraw(t *testing.T) {
	r := New(512)
	live := canvas.NewLiveRegion(0, 0, "")

	tests := []struct {
		name     string
		elements []canvas.Element
		bounds   canvas.Box
	}{
		{"no elements", nil, canvas.Box{W: 10, H: 10}},
		{"only live regions", []canvas.Element{live}, canvas.Box{W: 10, H: 10}},
		{"zero size bounds", []canvas.Element{filledRect(0, 0, 5, 5)}, canvas.Box{W: 0, H: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := r.Rasterize(context.Background(), tt.elements, tt.bounds, false)
			require.NoError(t, err)
			assert.Nil(t, img)
		})
	}
}

func TestRasterizeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(16).Rasterize(ctx, []canvas.Element{filledRect(0, 0, 5, 5)}, canvas.Box{W: 10, H: 10}, false)
	require.ErrorIs(t, err, context.Canceled)
}

func TestExportDrawsEveryKind(t *testing.T) {
	els := []canvas.Element{
		filledRect(0, 0, 10, 10),
		{Kind: canvas.KindEllipse, X: 10, Y: 10, W: 20, H: 10},
		{Kind: canvas.KindFrame, X: 0, Y: 0, W: 50, H: 50},
		{Kind: canvas.KindDraw, X: 5, Y: 5, Points: []canvas.Point{{X: 0, Y: 0}, {X: 10, Y: 3}, {X: 20, Y: 9}}},
		{Kind: canvas.KindLine, X: 5, Y: 5, Points: []canvas.Point{{X: 1, Y: 1}}},
		{Kind: canvas.KindLine, X: 5, Y: 5},
	}
	rec := Export(els, canvas.Box{W: 50, H: 50}, true, 50)
	require.NotNil(t, rec)
	assert.Equal(t, 50, rec.Width())
	assert.NotEmpty(t, rec.Commands())
}

func TestFit(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 200, 100))

	got := Fit(src, 100, 100)
	assert.Equal(t, image.Rect(0, 0, 100, 50), got.Bounds())

	small := image.NewRGBA(image.Rect(0, 0, 10, 10))
	assert.Same(t, small, Fit(small, 100, 100))

	tall := Fit(image.NewRGBA(image.Rect(0, 0, 100, 400)), 50, 50)
	assert.Equal(t, image.Rect(0, 0, 12, 50), tall.Bounds())
}
