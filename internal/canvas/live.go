package canvas

import (
	"fmt"
	"math/rand/v2"
)

// SetPrompt renames a live region. The name is also its prompt.
func (d *Document) SetPrompt(source Source, id ID, prompt string) error {
	return d.updateLive(source, id, func(p *LiveProps) { p.Name = prompt })
}

// SetParams replaces a live region's generation parameters.
func (d *Document) SetParams(source Source, id ID, params GenerationParams) error {
	if params.Strength < 0 || params.Strength > 1 {
		return fmt.Errorf("%w: strength %v out of [0,1]", ErrInvalid, params.Strength)
	}
	return d.updateLive(source, id, func(p *LiveProps) { p.Params = params })
}

// RerollSeed picks a new random seed for the region.
func (d *Document) RerollSeed(source Source, id ID) (int64, error) {
	seed := rand.Int64N(maxDerivedSeed)
	err := d.updateLive(source, id, func(p *LiveProps) { p.Params.Seed = seed })
	return seed, err
}

// ToggleDisplayMode flips the region between overlay and side by side.
func (d *Document) ToggleDisplayMode(source Source, id ID) (DisplayMode, error) {
	var next DisplayMode
	err := d.updateLive(source, id, func(p *LiveProps) {
		if p.Display == DisplayOverlay {
			next = DisplaySideBySide
		} else {
			next = DisplayOverlay
		}
		p.Display = next
	})
	return next, err
}

func (d *Document) updateLive(source Source, id ID, fn func(p *LiveProps)) error {
	return d.Apply(source, func(tx *Tx) error {
		el, ok := tx.Get(id)
		if !ok {
			return fmt.Errorf("%w: region %s", ErrNotFound, id)
		}
		if el.Kind != KindLiveImage || el.Live == nil {
			return fmt.Errorf("%w: %s is not a live region", ErrInvalid, id)
		}
		return tx.Update(id, func(el *Element) { fn(el.Live) })
	})
}
