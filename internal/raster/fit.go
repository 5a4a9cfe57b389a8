package raster

import (
	"image"

	"golang.org/x/image/draw"
)

// Fit scales img so that it fits within maxW x maxH, preserving the aspect
// ratio. Images that already fit are returned unchanged.
func Fit(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if (w <= maxW && h <= maxH) || w == 0 || h == 0 {
		return img
	}

	newW, newH := w, h
	if w*maxH > h*maxW {
		newW = maxW
		newH = max(1, h*maxW/w)
	} else {
		newH = maxH
		newW = max(1, w*maxH/h)
	}
	return Resize(img, newW, newH)
}

// Resize scales img to exactly w x h using Catmull-Rom resampling.
func Resize(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}
