package canvas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rect(x, y, w, h float64) Element {
	return Element{Kind: KindRect, X: x, Y: y, W: w, H: h}
}

func TestBoxCollides(t *testing.T) {
	a := Box{X: 0, Y: 0, W: 10, H: 10}
	tests := []struct {
		name string
		b    Box
		want bool
	}{
		{"overlap", Box{X: 5, Y: 5, W: 10, H: 10}, true},
		{"shared edge", Box{X: 10, Y: 0, W: 5, H: 5}, true},
		{"inside", Box{X: 2, Y: 2, W: 1, H: 1}, true},
		{"left of", Box{X: -20, Y: 0, W: 5, H: 5}, false},
		{"below", Box{X: 0, Y: 11, W: 5, H: 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Collides(tt.b))
		})
	}
}

func TestElementBoundsFromPoints(t *testing.T) {
	el := Element{Kind: KindDraw, X: 100, Y: 50, Points: []Point{{X: -5, Y: 0}, {X: 10, Y: 20}}}
	assert.Equal(t, Box{X: 95, Y: 50, W: 15, H: 20}, el.Bounds())
}

func TestDocumentCreateEmitsEvent(t *testing.T) {
	d := NewDocument()
	var events []ChangeEvent
	d.Subscribe(func(ev ChangeEvent) { events = append(events, ev) })

	ids, err := d.Create(SourceUser, rect(0, 0, 10, 10), rect(20, 0, 10, 10))
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.Len(t, events, 1)
	assert.Equal(t, SourceUser, events[0].Source)
	assert.Len(t, events[0].Added, 2)

	els := d.Elements()
	assert.Equal(t, ids[0], els[0].ID)
	assert.Equal(t, ids[1], els[1].ID)
}

func TestDocumentApplyRollsBackOnError(t *testing.T) {
	d := NewDocument()
	ids, err := d.Create(SourceUser, rect(0, 0, 10, 10))
	require.NoError(t, err)

	calls := 0
	d.Subscribe(func(ChangeEvent) { calls++ })

	err = d.Apply(SourceUser, func(tx *Tx) error {
		if err := tx.Update(ids[0], func(el *Element) { el.X = 99 }); err != nil {
			return err
		}
		_, err := tx.Create(Element{})
		return err
	})
	require.ErrorIs(t, err, ErrInvalid)
	assert.Zero(t, calls)

	el, ok := d.Element(ids[0])
	require.True(t, ok)
	assert.Equal(t, 0.0, el.X)
}

func TestDocumentNoOpUpdateIsSilent(t *testing.T) {
	d := NewDocument()
	ids, err := d.Create(SourceUser, rect(0, 0, 10, 10))
	require.NoError(t, err)

	calls := 0
	d.Subscribe(func(ChangeEvent) { calls++ })
	require.NoError(t, d.UpdateElement(SourceUser, ids[0], func(el *Element) {}))
	assert.Zero(t, calls)
}

func TestDocumentDeleteCascades(t *testing.T) {
	d := NewDocument()
	region := NewLiveRegion(0, 0, "cat")
	child := rect(10, 10, 5, 5)
	child.ParentID = region.ID
	_, err := d.Create(SourceUser, region, child)
	require.NoError(t, err)
	require.NoError(t, d.CreateAssets(Asset{ID: AssetIDForRegion(region.ID), Type: "image"}))

	var ev ChangeEvent
	d.Subscribe(func(e ChangeEvent) { ev = e })
	require.NoError(t, d.Delete(SourceUser, region.ID))

	assert.Len(t, ev.Removed, 2)
	assert.Empty(t, d.Elements())
	_, ok := d.Asset(AssetIDForRegion(region.ID))
	assert.False(t, ok)
}

func TestUnsubscribe(t *testing.T) {
	d := NewDocument()
	calls := 0
	unsub := d.Subscribe(func(ChangeEvent) { calls++ })
	unsub()
	unsub()
	_, err := d.Create(SourceUser, rect(0, 0, 1, 1))
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestAssetsEmitSystemEvents(t *testing.T) {
	d := NewDocument()
	var events []ChangeEvent
	d.Subscribe(func(ev ChangeEvent) { events = append(events, ev) })

	id := AssetID("asset:x")
	require.NoError(t, d.CreateAssets(Asset{ID: id, Type: "image", Src: "a"}))
	require.ErrorIs(t, d.CreateAssets(Asset{ID: id}), ErrExists)
	require.NoError(t, d.UpdateAssets(Asset{ID: id, Type: "image", Src: "b"}))
	require.ErrorIs(t, d.UpdateAssets(Asset{ID: "asset:missing"}), ErrNotFound)

	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, SourceSystem, ev.Source)
		assert.False(t, ev.HasElementChanges())
		assert.Equal(t, []AssetID{id}, ev.Assets)
	}
	a, _ := d.Asset(id)
	assert.Equal(t, "b", a.Src)
}

func TestNewLiveRegionDefaults(t *testing.T) {
	el := NewLiveRegion(5, 6, "")
	r, ok := RegionFromElement(el)
	require.True(t, ok)
	assert.Equal(t, Box{X: 5, Y: 6, W: 512, H: 512}, r.PageBounds())
	assert.Equal(t, DefaultStrength, r.Params().Strength)
	assert.Equal(t, DeriveSeed(el.ID), r.Params().Seed)
	assert.Equal(t, DisplaySideBySide, r.DisplayMode())
	assert.True(t, r.AspectRatioLocked())
	assert.Equal(t, AssetID("asset:"+el.ID.Key()), r.AssetID())
}

func TestDeriveSeedIsStable(t *testing.T) {
	id := ID("shape:abc")
	s := DeriveSeed(id)
	assert.Equal(t, s, DeriveSeed(id))
	assert.GreaterOrEqual(t, s, int64(0))
	assert.Less(t, s, int64(10000))
}

func TestLiveRegionOperations(t *testing.T) {
	d := NewDocument()
	region := NewLiveRegion(0, 0, "")
	_, err := d.Create(SourceUser, region)
	require.NoError(t, err)

	require.NoError(t, d.SetPrompt(SourceUser, region.ID, "a city skyline"))
	mode, err := d.ToggleDisplayMode(SourceUser, region.ID)
	require.NoError(t, err)
	assert.Equal(t, DisplayOverlay, mode)

	seed, err := d.RerollSeed(SourceUser, region.ID)
	require.NoError(t, err)

	r, ok := d.Region(region.ID)
	require.True(t, ok)
	assert.Equal(t, "a city skyline", r.Prompt())
	assert.Equal(t, DisplayOverlay, r.DisplayMode())
	assert.Equal(t, seed, r.Params().Seed)

	require.ErrorIs(t, d.SetParams(SourceUser, region.ID, GenerationParams{Strength: 2}), ErrInvalid)

	ids, err := d.Create(SourceUser, rect(0, 0, 1, 1))
	require.NoError(t, err)
	require.ErrorIs(t, d.SetPrompt(SourceUser, ids[0], "x"), ErrInvalid)
}
