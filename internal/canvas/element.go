package canvas

import (
	"strings"

	"github.com/google/uuid"
)

// ID identifies an element within a document. Element IDs carry the
// "shape:" prefix.
type ID string

const idPrefix = "shape:"

// NewID returns a fresh random element ID.
func NewID() ID {
	return ID(idPrefix + uuid.NewString())
}

// Key returns the ID without its "shape:" prefix.
func (id ID) Key() string {
	return strings.TrimPrefix(string(id), idPrefix)
}

// Kind is the type tag of an element.
type Kind string

const (
	KindRect      Kind = "rect"
	KindEllipse   Kind = "ellipse"
	KindLine      Kind = "line"
	KindDraw      Kind = "draw"
	KindFrame     Kind = "frame"
	KindLiveImage Kind = "live-image"
)

// Style holds the drawing attributes of an element.
type Style struct {
	// Color is a hex color ("#1d1d1d"). Empty means the theme's text color.
	Color       string  `json:"color,omitempty"`
	Fill        bool    `json:"fill,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
}

// Element is one shape on the canvas. Coordinates are page space; Points
// are relative to (X, Y) and only used by line and draw elements.
type Element struct {
	ID       ID      `json:"id"`
	Kind     Kind    `json:"type"`
	ParentID ID      `json:"parentId,omitempty"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	W        float64 `json:"w,omitempty"`
	H        float64 `json:"h,omitempty"`
	Points   []Point `json:"points,omitempty"`
	Style    Style   `json:"style"`
	Locked   bool    `json:"locked,omitempty"`

	// Live is set only on live-image elements.
	Live *LiveProps `json:"live,omitempty"`
}

// Bounds returns the page-space bounding box of the element.
func (e Element) Bounds() Box {
	switch e.Kind {
	case KindLine, KindDraw:
		return boxFromPoints(Point{X: e.X, Y: e.Y}, e.Points)
	default:
		return Box{X: e.X, Y: e.Y, W: e.W, H: e.H}
	}
}

// Clone returns a deep copy of the element.
func (e Element) Clone() Element {
	c := e
	if e.Points != nil {
		c.Points = append([]Point(nil), e.Points...)
	}
	if e.Live != nil {
		live := *e.Live
		c.Live = &live
	}
	return c
}

// IsContainer reports whether the element can hold children.
func (e Element) IsContainer() bool {
	return e.Kind == KindFrame || e.Kind == KindLiveImage
}
