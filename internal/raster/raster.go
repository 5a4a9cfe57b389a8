// Package raster turns a bounded area of the canvas into a normalized still
// image that can be sent to an image-generation backend.
package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gg/recording/backends/raster"
	"github.com/rs/zerolog/log"

	"github.com/fpang/drawfast/internal/canvas"
)

// DefaultTargetSize is the pixel size of the longer output side.
const DefaultTargetSize = 512

// ErrRasterization is returned when a recording cannot be turned into pixels.
var ErrRasterization = errors.New("rasterization failed")

// Image is an encoded bitmap.
type Image struct {
	Data     []byte
	Width    int
	Height   int
	MimeType string
}

// DataURI returns the image as a base64 data URI.
func (img *Image) DataURI() string {
	return "data:" + img.MimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Rasterizer renders canvas elements to PNG images.
type Rasterizer struct {
	// TargetSize is the pixel size of the longer output side.
	TargetSize int
}

// New returns a Rasterizer producing images whose longer side is target
// pixels. A non-positive target uses DefaultTargetSize.
func New(target int) *Rasterizer {
	if target <= 0 {
		target = DefaultTargetSize
	}
	return &Rasterizer{TargetSize: target}
}

// Rasterize draws elements clipped to bounds on a theme background. It
// returns nil and no error when there is nothing to draw or bounds is empty.
func (r *Rasterizer) Rasterize(ctx context.Context, elements []canvas.Element, bounds canvas.Box, darkMode bool) (*Image, error) {
	start := time.Now()
	rec := Export(elements, bounds, darkMode, r.TargetSize)
	if rec == nil {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	backend := raster.NewBackend()
	if err := rec.Playback(backend); err != nil {
		return nil, fmt.Errorf("%w: playback: %v", ErrRasterization, err)
	}

	var buf bytes.Buffer
	if _, err := backend.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("%w: encode png: %v", ErrRasterization, err)
	}

	log.Debug().
		Int("elements", len(elements)).
		Int("width", rec.Width()).
		Int("height", rec.Height()).
		Int("bytes", buf.Len()).
		Dur("duration", time.Since(start)).
		Msg("Rasterized region")

	return &Image{
		Data:     buf.Bytes(),
		Width:    rec.Width(),
		Height:   rec.Height(),
		MimeType: "image/png",
	}, nil
}
