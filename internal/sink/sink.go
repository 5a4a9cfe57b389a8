// Package sink writes generation results into the canvas asset store.
package sink

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fpang/drawfast/internal/canvas"
)

// AssetMimeType is recorded on every region asset.
const AssetMimeType = "image/jpeg"

// ErrRegionGone is returned when the region was deleted before its result
// arrived.
var ErrRegionGone = errors.New("sink: region no longer exists")

// Canvas is the transactional surface the sink writes through.
type Canvas interface {
	Apply(source canvas.Source, fn func(tx *canvas.Tx) error) error
}

// Sink writes results for live regions.
type Sink struct {
	doc Canvas
}

// New returns a Sink writing into doc.
func New(doc Canvas) *Sink {
	return &Sink{doc: doc}
}

// WriteResult stores url as the region's current image. An empty url
// records "no image". The asset is created on first use and afterwards only
// its source and dimensions change. Writing the same result twice is a no-op.
func (s *Sink) WriteResult(regionID canvas.ID, url string) error {
	assetID := canvas.AssetIDForRegion(regionID)
	var action string
	err := s.doc.Apply(canvas.SourceSystem, func(tx *canvas.Tx) error {
		el, ok := tx.Get(regionID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrRegionGone, regionID)
		}
		region, ok := canvas.RegionFromElement(el)
		if !ok {
			return fmt.Errorf("sink: %s is not a live region", regionID)
		}
		bounds := region.PageBounds()

		existing, ok := tx.Asset(assetID)
		if !ok {
			action = "created"
			return tx.CreateAsset(canvas.Asset{
				ID:       assetID,
				Type:     "image",
				Name:     region.Prompt(),
				W:        bounds.W,
				H:        bounds.H,
				Src:      url,
				MimeType: AssetMimeType,
			})
		}

		next := existing
		next.Type = "image"
		next.W = bounds.W
		next.H = bounds.H
		next.Src = url
		if next == existing {
			action = "unchanged"
			return nil
		}
		action = "updated"
		return tx.UpdateAsset(next)
	})
	if err != nil {
		return err
	}

	log.Debug().
		Str("region", string(regionID)).
		Str("asset", string(assetID)).
		Str("action", action).
		Bool("empty", url == "").
		Msg("Wrote region result")
	return nil
}
