package canvas

import (
	"fmt"
)

// DragShapesOver reparents the dragged shapes into the container when it
// accepts children. Shapes already inside it, the container itself and its
// ancestors are left alone.
func (d *Document) DragShapesOver(source Source, containerID ID, ids ...ID) error {
	return d.Apply(source, func(tx *Tx) error {
		c, err := tx.container(containerID)
		if err != nil {
			return err
		}
		if !c.AcceptsChildren() {
			return nil
		}
		for _, id := range ids {
			el, ok := tx.Get(id)
			if !ok {
				return fmt.Errorf("%w: element %s", ErrNotFound, id)
			}
			if el.ParentID == containerID || id == containerID || tx.isAncestor(id, containerID) {
				continue
			}
			if err := tx.Update(id, func(el *Element) { el.ParentID = containerID }); err != nil {
				return err
			}
		}
		return nil
	})
}

// DragShapesOut moves children of the container back onto the page.
func (d *Document) DragShapesOut(source Source, containerID ID, ids ...ID) error {
	return d.Apply(source, func(tx *Tx) error {
		for _, id := range ids {
			el, ok := tx.Get(id)
			if !ok {
				return fmt.Errorf("%w: element %s", ErrNotFound, id)
			}
			if el.ParentID != containerID {
				continue
			}
			if err := tx.Update(id, func(el *Element) { el.ParentID = "" }); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResizeContainer sets the container size. Containers with a locked aspect
// ratio keep it and take w as the reference dimension. Once resized, every
// child no longer included in the new bounds is moved onto the page.
func (d *Document) ResizeContainer(source Source, id ID, w, h float64) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: size %vx%v", ErrInvalid, w, h)
	}
	return d.Apply(source, func(tx *Tx) error {
		c, err := tx.container(id)
		if err != nil {
			return err
		}
		if c.AspectRatioLocked() {
			b := c.PageBounds()
			if b.W > 0 {
				h = w * b.H / b.W
			}
		}
		if err := tx.Update(id, func(el *Element) {
			el.W = w
			el.H = h
		}); err != nil {
			return err
		}
		resized, _ := tx.Get(id)
		for _, child := range tx.childrenOf(id) {
			el, _ := tx.Get(child)
			if resized.Bounds().Includes(el.Bounds()) {
				continue
			}
			if err := tx.Update(child, func(el *Element) { el.ParentID = "" }); err != nil {
				return err
			}
		}
		return nil
	})
}

func (tx *Tx) container(id ID) (Container, error) {
	el, ok := tx.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: container %s", ErrNotFound, id)
	}
	switch el.Kind {
	case KindFrame:
		return Frame{el: el}, nil
	case KindLiveImage:
		if r, ok := RegionFromElement(el); ok {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s is not a container", ErrInvalid, id)
}

// isAncestor reports whether id is an ancestor of other.
func (tx *Tx) isAncestor(id, other ID) bool {
	seen := make(map[ID]bool)
	for cur := other; cur != ""; {
		if seen[cur] {
			return false
		}
		seen[cur] = true
		el, ok := tx.doc.elements[cur]
		if !ok {
			return false
		}
		if el.ParentID == id {
			return true
		}
		cur = el.ParentID
	}
	return false
}
