package canvas

import "fmt"

// AssetID identifies an image asset. Region assets carry the "asset:" prefix.
type AssetID string

// AssetIDForRegion derives the asset ID owned by a live region.
func AssetIDForRegion(id ID) AssetID {
	return AssetID("asset:" + id.Key())
}

// Asset is an image record displayed by a live region. An empty Src means
// the region has no image yet.
type Asset struct {
	ID         AssetID `json:"id"`
	Type       string  `json:"type"`
	Name       string  `json:"name"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	Src        string  `json:"src"`
	MimeType   string  `json:"mimeType"`
	IsAnimated bool    `json:"isAnimated"`
}

// CreateAsset stores a new asset.
func (tx *Tx) CreateAsset(a Asset) error {
	if _, ok := tx.doc.assets[a.ID]; ok {
		return fmt.Errorf("%w: asset %s", ErrExists, a.ID)
	}
	tx.rememberAsset(a.ID)
	tx.doc.assets[a.ID] = a
	tx.assetsOut = append(tx.assetsOut, a.ID)
	return nil
}

// UpdateAsset replaces an existing asset.
func (tx *Tx) UpdateAsset(a Asset) error {
	if _, ok := tx.doc.assets[a.ID]; !ok {
		return fmt.Errorf("%w: asset %s", ErrNotFound, a.ID)
	}
	tx.rememberAsset(a.ID)
	tx.doc.assets[a.ID] = a
	tx.assetsOut = append(tx.assetsOut, a.ID)
	return nil
}

// Asset returns the staged asset with the given ID.
func (tx *Tx) Asset(id AssetID) (Asset, bool) {
	a, ok := tx.doc.assets[id]
	return a, ok
}

func (tx *Tx) rememberAsset(id AssetID) {
	if _, seen := tx.assetsBefore[id]; seen {
		return
	}
	if a, ok := tx.doc.assets[id]; ok {
		tx.assetsBefore[id] = &a
		return
	}
	tx.assetsBefore[id] = nil
}

// Asset returns the asset with the given ID.
func (d *Document) Asset(id AssetID) (Asset, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.assets[id]
	return a, ok
}

// Assets returns every stored asset.
func (d *Document) Assets() []Asset {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Asset, 0, len(d.assets))
	for _, a := range d.assets {
		out = append(out, a)
	}
	return out
}

// CreateAssets stores new assets in one system-sourced transaction.
func (d *Document) CreateAssets(assets ...Asset) error {
	return d.Apply(SourceSystem, func(tx *Tx) error {
		for _, a := range assets {
			if err := tx.CreateAsset(a); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateAssets replaces existing assets in one system-sourced transaction.
func (d *Document) UpdateAssets(assets ...Asset) error {
	return d.Apply(SourceSystem, func(tx *Tx) error {
		for _, a := range assets {
			if err := tx.UpdateAsset(a); err != nil {
				return err
			}
		}
		return nil
	})
}
