// Package canvas is an in-memory canvas document: elements with page-space
// bounds, live regions, an image asset store and change notifications.
//
// It implements the small capability surface the live-update pipeline
// consumes from a canvas engine. All mutations go through Apply (or one of
// its helpers) and are atomic; listeners are called after the document lock
// is released, on the goroutine that made the change.
package canvas

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var (
	// ErrNotFound is returned when an element or asset does not exist.
	ErrNotFound = errors.New("canvas: not found")
	// ErrExists is returned when creating an element or asset whose ID is taken.
	ErrExists = errors.New("canvas: already exists")
	// ErrInvalid is returned for malformed elements.
	ErrInvalid = errors.New("canvas: invalid element")
)

// Source tags who caused a change.
type Source string

const (
	// SourceUser marks changes made directly by the local user.
	SourceUser Source = "user"
	// SourceRemote marks changes replayed from another peer.
	SourceRemote Source = "remote"
	// SourceSystem marks programmatic changes, such as asset writes.
	SourceSystem Source = "system"
)

// Update is the before and after state of a changed element.
type Update struct {
	From Element `json:"from"`
	To   Element `json:"to"`
}

// ChangeEvent describes one committed transaction.
type ChangeEvent struct {
	Source  Source
	Added   map[ID]Element
	Removed map[ID]Element
	Updated map[ID]Update
	// Assets lists image assets created or updated by the transaction.
	Assets []AssetID
}

// HasElementChanges reports whether any element was added, removed or updated.
func (e ChangeEvent) HasElementChanges() bool {
	return len(e.Added) > 0 || len(e.Removed) > 0 || len(e.Updated) > 0
}

// Listener receives committed change events. Listeners must not block.
type Listener func(ChangeEvent)

// Document is the canvas store. It is safe for concurrent use.
type Document struct {
	mu        sync.RWMutex
	elements  map[ID]Element
	order     []ID
	assets    map[AssetID]Asset
	darkMode  bool
	listeners map[int]Listener
	nextSub   int
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{
		elements:  make(map[ID]Element),
		assets:    make(map[AssetID]Asset),
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers fn for every committed change. The returned function
// removes the subscription.
func (d *Document) Subscribe(fn Listener) (unsubscribe func()) {
	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	d.listeners[id] = fn
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.listeners, id)
			d.mu.Unlock()
		})
	}
}

// Element returns a copy of the element with the given ID.
func (d *Document) Element(id ID) (Element, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	el, ok := d.elements[id]
	if !ok {
		return Element{}, false
	}
	return el.Clone(), true
}

// Elements returns copies of every element in page order.
func (d *Document) Elements() []Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Element, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.elements[id].Clone())
	}
	return out
}

// PageBounds returns the page-space bounds of the element.
func (d *Document) PageBounds(id ID) (Box, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	el, ok := d.elements[id]
	if !ok {
		return Box{}, false
	}
	return el.Bounds(), true
}

// Region returns the live region with the given ID.
func (d *Document) Region(id ID) (LiveRegion, bool) {
	el, ok := d.Element(id)
	if !ok {
		return LiveRegion{}, false
	}
	return RegionFromElement(el)
}

// Regions returns every live region in page order.
func (d *Document) Regions() []LiveRegion {
	var out []LiveRegion
	for _, el := range d.Elements() {
		if r, ok := RegionFromElement(el); ok {
			out = append(out, r)
		}
	}
	return out
}

// Container returns the container view of a frame or live region.
func (d *Document) Container(id ID) (Container, bool) {
	el, ok := d.Element(id)
	if !ok {
		return nil, false
	}
	switch el.Kind {
	case KindFrame:
		return Frame{el: el}, true
	case KindLiveImage:
		if r, ok := RegionFromElement(el); ok {
			return r, true
		}
	}
	return nil, false
}

// Children returns the IDs of the direct children of parent in page order.
func (d *Document) Children(parent ID) []ID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []ID
	for _, id := range d.order {
		if d.elements[id].ParentID == parent {
			out = append(out, id)
		}
	}
	return out
}

// IsDarkMode reports the user's dark mode preference.
func (d *Document) IsDarkMode() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.darkMode
}

// SetDarkMode sets the user's dark mode preference.
func (d *Document) SetDarkMode(on bool) {
	d.mu.Lock()
	d.darkMode = on
	d.mu.Unlock()
}

// Tx stages element mutations inside Apply.
type Tx struct {
	doc       *Document
	before    map[ID]*Element
	origOrder []ID
	assetsOut []AssetID

	// assetsBefore holds the prior state of touched assets; nil means absent.
	assetsBefore map[AssetID]*Asset
}

// Get returns the current (staged) state of an element.
func (tx *Tx) Get(id ID) (Element, bool) {
	el, ok := tx.doc.elements[id]
	if !ok {
		return Element{}, false
	}
	return el.Clone(), true
}

// Create adds el to the page. A missing ID is generated.
func (tx *Tx) Create(el Element) (ID, error) {
	if el.ID == "" {
		el.ID = NewID()
	}
	if el.Kind == "" {
		return "", fmt.Errorf("%w: %s has no type", ErrInvalid, el.ID)
	}
	if el.Kind == KindLiveImage && el.Live == nil {
		return "", fmt.Errorf("%w: %s is missing live props", ErrInvalid, el.ID)
	}
	if _, ok := tx.doc.elements[el.ID]; ok {
		return "", fmt.Errorf("%w: element %s", ErrExists, el.ID)
	}
	tx.remember(el.ID)
	tx.doc.elements[el.ID] = el.Clone()
	tx.doc.order = append(tx.doc.order, el.ID)
	return el.ID, nil
}

// Update applies fn to a copy of the element and stores the result.
func (tx *Tx) Update(id ID, fn func(el *Element)) error {
	el, ok := tx.doc.elements[id]
	if !ok {
		return fmt.Errorf("%w: element %s", ErrNotFound, id)
	}
	next := el.Clone()
	fn(&next)
	next.ID = id
	tx.remember(id)
	tx.doc.elements[id] = next
	return nil
}

// Delete removes the element and all of its descendants. Deleting a live
// region also deletes its asset.
func (tx *Tx) Delete(id ID) error {
	el, ok := tx.doc.elements[id]
	if !ok {
		return fmt.Errorf("%w: element %s", ErrNotFound, id)
	}
	for _, child := range tx.childrenOf(id) {
		if err := tx.Delete(child); err != nil {
			return err
		}
	}
	tx.remember(id)
	delete(tx.doc.elements, id)
	tx.doc.order = removeID(tx.doc.order, id)
	if el.Kind == KindLiveImage {
		aid := AssetIDForRegion(id)
		if _, ok := tx.doc.assets[aid]; ok {
			tx.rememberAsset(aid)
			delete(tx.doc.assets, aid)
		}
	}
	return nil
}

func (tx *Tx) childrenOf(parent ID) []ID {
	var out []ID
	for _, id := range tx.doc.order {
		if tx.doc.elements[id].ParentID == parent {
			out = append(out, id)
		}
	}
	return out
}

func (tx *Tx) remember(id ID) {
	if _, seen := tx.before[id]; seen {
		return
	}
	if el, ok := tx.doc.elements[id]; ok {
		c := el.Clone()
		tx.before[id] = &c
		return
	}
	tx.before[id] = nil
}

func (tx *Tx) rollback() {
	for id, prev := range tx.before {
		if prev == nil {
			delete(tx.doc.elements, id)
			continue
		}
		tx.doc.elements[id] = *prev
	}
	tx.doc.order = tx.origOrder
	for id, prev := range tx.assetsBefore {
		if prev == nil {
			delete(tx.doc.assets, id)
			continue
		}
		tx.doc.assets[id] = *prev
	}
}

func (tx *Tx) event(source Source) ChangeEvent {
	ev := ChangeEvent{
		Source:  source,
		Added:   make(map[ID]Element),
		Removed: make(map[ID]Element),
		Updated: make(map[ID]Update),
		Assets:  tx.assetsOut,
	}
	for id, prev := range tx.before {
		cur, exists := tx.doc.elements[id]
		switch {
		case prev == nil && exists:
			ev.Added[id] = cur.Clone()
		case prev != nil && !exists:
			ev.Removed[id] = *prev
		case prev != nil && exists && !reflect.DeepEqual(*prev, cur):
			ev.Updated[id] = Update{From: *prev, To: cur.Clone()}
		}
	}
	return ev
}

// Apply runs fn as one atomic transaction. If fn returns an error every
// staged change is rolled back and no event is emitted. Otherwise listeners
// receive a single ChangeEvent tagged with source, unless nothing changed.
func (d *Document) Apply(source Source, fn func(tx *Tx) error) error {
	d.mu.Lock()
	tx := &Tx{
		doc:          d,
		before:       make(map[ID]*Element),
		origOrder:    append([]ID(nil), d.order...),
		assetsBefore: make(map[AssetID]*Asset),
	}
	if err := fn(tx); err != nil {
		tx.rollback()
		d.mu.Unlock()
		return err
	}
	ev := tx.event(source)
	listeners := d.snapshotListeners()
	d.mu.Unlock()

	if !ev.HasElementChanges() && len(ev.Assets) == 0 {
		return nil
	}
	for _, l := range listeners {
		l(ev)
	}
	return nil
}

func (d *Document) snapshotListeners() []Listener {
	out := make([]Listener, 0, len(d.listeners))
	for i := 0; i < d.nextSub; i++ {
		if l, ok := d.listeners[i]; ok {
			out = append(out, l)
		}
	}
	return out
}

// Create adds elements in one transaction and returns their IDs.
func (d *Document) Create(source Source, els ...Element) ([]ID, error) {
	ids := make([]ID, 0, len(els))
	err := d.Apply(source, func(tx *Tx) error {
		for _, el := range els {
			id, err := tx.Create(el)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// UpdateElement applies fn to a single element.
func (d *Document) UpdateElement(source Source, id ID, fn func(el *Element)) error {
	return d.Apply(source, func(tx *Tx) error {
		return tx.Update(id, fn)
	})
}

// Delete removes elements (and their descendants) in one transaction.
func (d *Document) Delete(source Source, ids ...ID) error {
	return d.Apply(source, func(tx *Tx) error {
		for _, id := range ids {
			if _, ok := tx.Get(id); !ok {
				// Already removed as a descendant of an earlier ID.
				continue
			}
			if err := tx.Delete(id); err != nil {
				return err
			}
		}
		return nil
	})
}

func removeID(ids []ID, id ID) []ID {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
