package raster

import (
	"math"
	"strings"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/recording"

	"github.com/fpang/drawfast/internal/canvas"
)

const defaultStrokeWidth = 2.0

var (
	lightBackground = gg.Hex("#ffffff")
	darkBackground  = gg.Hex("#101011")
	lightInk        = gg.Hex("#1d1d1d")
	darkInk         = gg.Hex("#f2f2f2")
)

// namedColors maps the canvas palette names to hex values.
var namedColors = map[string]string{
	"grey":         "#adb5bd",
	"light-violet": "#e599f7",
	"violet":       "#ae3ec9",
	"blue":         "#4263eb",
	"light-blue":   "#4dabf7",
	"yellow":       "#ffc034",
	"orange":       "#f76707",
	"green":        "#099268",
	"light-green":  "#40c057",
	"light-red":    "#ff8787",
	"red":          "#e03131",
	"white":        "#ffffff",
}

// Export records the elements as vector drawing commands clipped to bounds
// and scaled so that the larger side of bounds maps to target pixels.
// Live-image elements are not drawn. Export returns nil when there is
// nothing to draw or bounds has no area.
func Export(elements []canvas.Element, bounds canvas.Box, darkMode bool, target int) *recording.Recording {
	if bounds.IsEmpty() || target <= 0 {
		return nil
	}
	drawable := make([]canvas.Element, 0, len(elements))
	for _, el := range elements {
		if el.Kind != canvas.KindLiveImage {
			drawable = append(drawable, el)
		}
	}
	if len(drawable) == 0 {
		return nil
	}

	scale := float64(target) / math.Max(bounds.W, bounds.H)
	w := max(1, int(math.Round(bounds.W*scale)))
	h := max(1, int(math.Round(bounds.H*scale)))

	rec := recording.NewRecorder(w, h)
	p := painter{rec: rec, origin: bounds, scale: scale, dark: darkMode}

	bg := lightBackground
	if darkMode {
		bg = darkBackground
	}
	rec.SetFillRGBA(bg.R, bg.G, bg.B, bg.A)
	rec.DrawRectangle(0, 0, float64(w), float64(h))
	rec.Fill()

	rec.SetLineCap(recording.LineCapRound)
	rec.SetLineJoin(recording.LineJoinRound)
	for _, el := range drawable {
		p.draw(el)
	}
	return rec.FinishRecording()
}

// painter maps page coordinates into the output bitmap. The recorder's own
// transform is left at identity and coordinates are converted by hand.
type painter struct {
	rec    *recording.Recorder
	origin canvas.Box
	scale  float64
	dark   bool
}

func (p painter) x(v float64) float64 { return (v - p.origin.X) * p.scale }
func (p painter) y(v float64) float64 { return (v - p.origin.Y) * p.scale }

func (p painter) draw(el canvas.Element) {
	c := p.color(el.Style.Color)
	p.rec.SetStrokeRGBA(c.R, c.G, c.B, c.A)
	p.rec.SetFillRGBA(c.R, c.G, c.B, c.A)

	sw := el.Style.StrokeWidth
	if sw <= 0 {
		sw = defaultStrokeWidth
	}
	p.rec.SetLineWidth(math.Max(1, sw*p.scale))

	switch el.Kind {
	case canvas.KindRect, canvas.KindFrame:
		p.rec.DrawRectangle(p.x(el.X), p.y(el.Y), el.W*p.scale, el.H*p.scale)
		p.finish(el.Style.Fill && el.Kind == canvas.KindRect)
	case canvas.KindEllipse:
		rx, ry := el.W/2, el.H/2
		p.rec.DrawEllipse(p.x(el.X+rx), p.y(el.Y+ry), rx*p.scale, ry*p.scale)
		p.finish(el.Style.Fill)
	case canvas.KindLine, canvas.KindDraw:
		p.path(el)
	}
}

func (p painter) path(el canvas.Element) {
	switch len(el.Points) {
	case 0:
		return
	case 1:
		pt := el.Points[0]
		r := math.Max(0.5, (el.Style.StrokeWidth*p.scale)/2)
		p.rec.DrawCircle(p.x(el.X+pt.X), p.y(el.Y+pt.Y), r)
		p.rec.Fill()
		return
	}
	first := el.Points[0]
	p.rec.MoveTo(p.x(el.X+first.X), p.y(el.Y+first.Y))
	for _, pt := range el.Points[1:] {
		p.rec.LineTo(p.x(el.X+pt.X), p.y(el.Y+pt.Y))
	}
	p.rec.Stroke()
}

func (p painter) finish(fill bool) {
	if fill {
		p.rec.FillStroke()
		return
	}
	p.rec.Stroke()
}

// color resolves a style color. Black and the empty color follow the theme
// so that ink stays visible in dark mode.
func (p painter) color(name string) gg.RGBA {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "", "black":
		if p.dark {
			return darkInk
		}
		return lightInk
	}
	if hex, ok := namedColors[name]; ok {
		return gg.Hex(hex)
	}
	return gg.Hex(name)
}
