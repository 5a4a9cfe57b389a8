package canvas

import (
	"github.com/cespare/xxhash/v2"
)

// DisplayMode controls where a region's generated image is drawn.
type DisplayMode string

const (
	// DisplayOverlay composites the result on top of the drawing.
	DisplayOverlay DisplayMode = "overlay"
	// DisplaySideBySide places the result to the right of the drawing.
	DisplaySideBySide DisplayMode = "side-by-side"
)

// Default live region properties.
const (
	DefaultRegionSize = 512
	DefaultStrength   = 0.65
	maxDerivedSeed    = 10000
)

// GenerationParams are the per-region inference knobs.
type GenerationParams struct {
	Seed       int64   `json:"seed"`
	Strength   float64 `json:"strength"`
	ThrottleMs int     `json:"throttleMs,omitempty"`
}

// LiveProps is the generation state stored on a live-image element.
type LiveProps struct {
	// Name doubles as the prompt.
	Name    string           `json:"name"`
	Params  GenerationParams `json:"params"`
	Display DisplayMode      `json:"display,omitempty"`
}

// Container is anything that can own child elements: frames and live
// regions. Reparenting logic depends only on this interface.
type Container interface {
	ID() ID
	PageBounds() Box
	AcceptsChildren() bool
	AspectRatioLocked() bool
}

// GenerationState is the generation-specific half of a live region.
type GenerationState interface {
	Prompt() string
	Params() GenerationParams
	DisplayMode() DisplayMode
}

// Region is a live region: a container that also carries generation state.
type Region interface {
	Container
	GenerationState
}

// Frame is a plain container view over a frame element.
type Frame struct {
	el Element
}

var _ Container = Frame{}

func (f Frame) ID() ID                  { return f.el.ID }
func (f Frame) PageBounds() Box         { return f.el.Bounds() }
func (f Frame) AcceptsChildren() bool   { return !f.el.Locked }
func (f Frame) AspectRatioLocked() bool { return false }

// LiveRegion is a read-only view over a live-image element. Views are
// snapshots: re-read the region from the document to observe changes.
type LiveRegion struct {
	el Element
}

var _ Region = LiveRegion{}

// RegionFromElement returns a LiveRegion view of el if it is a live-image.
func RegionFromElement(el Element) (LiveRegion, bool) {
	if el.Kind != KindLiveImage || el.Live == nil {
		return LiveRegion{}, false
	}
	return LiveRegion{el: el.Clone()}, true
}

func (r LiveRegion) ID() ID                  { return r.el.ID }
func (r LiveRegion) PageBounds() Box         { return r.el.Bounds() }
func (r LiveRegion) AcceptsChildren() bool   { return !r.el.Locked }
func (r LiveRegion) AspectRatioLocked() bool { return true }
func (r LiveRegion) Prompt() string          { return r.el.Live.Name }
func (r LiveRegion) Params() GenerationParams {
	return r.el.Live.Params
}

// DisplayMode returns the region's display mode, defaulting to side by side.
func (r LiveRegion) DisplayMode() DisplayMode {
	if r.el.Live.Display == "" {
		return DisplaySideBySide
	}
	return r.el.Live.Display
}

// Element returns a copy of the underlying element.
func (r LiveRegion) Element() Element { return r.el.Clone() }

// AssetID returns the ID of the asset holding this region's result.
func (r LiveRegion) AssetID() AssetID { return AssetIDForRegion(r.el.ID) }

// NewLiveRegion builds a live-image element at (x, y) with the default
// 512x512 size. The seed is derived from the new element's ID.
func NewLiveRegion(x, y float64, prompt string) Element {
	id := NewID()
	return Element{
		ID:   id,
		Kind: KindLiveImage,
		X:    x,
		Y:    y,
		W:    DefaultRegionSize,
		H:    DefaultRegionSize,
		Live: &LiveProps{
			Name: prompt,
			Params: GenerationParams{
				Seed:     DeriveSeed(id),
				Strength: DefaultStrength,
			},
			Display: DisplaySideBySide,
		},
	}
}

// DeriveSeed maps an element ID to a stable seed in [0, 10000).
func DeriveSeed(id ID) int64 {
	return int64(xxhash.Sum64String(string(id)) % maxDerivedSeed)
}
