// Package membership decides which canvas elements belong to a live region.
package membership

import (
	"fmt"
	"strings"

	"github.com/fpang/drawfast/internal/canvas"
)

// Policy selects how region members are found.
type Policy int

const (
	// Touching selects every page element whose bounds collide with the
	// region's bounds.
	Touching Policy = iota
	// Descendants selects the region's children, recursively.
	Descendants
)

// String returns the configuration name of the policy.
func (p Policy) String() string {
	switch p {
	case Touching:
		return "touching"
	case Descendants:
		return "descendants"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses a policy name. The empty string means Touching.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "touching":
		return Touching, nil
	case "descendants":
		return Descendants, nil
	default:
		return 0, fmt.Errorf("unknown membership policy %q (want touching or descendants)", s)
	}
}

// Query is the read side of the canvas that membership needs.
type Query interface {
	Elements() []canvas.Element
	PageBounds(id canvas.ID) (canvas.Box, bool)
}

// ElementsTouching returns the elements, in page order, whose bounds collide
// with the region's bounds. The region itself is excluded. Nothing is cached:
// every call reads the current canvas state.
func ElementsTouching(q Query, regionID canvas.ID) []canvas.Element {
	target, ok := q.PageBounds(regionID)
	if !ok {
		return nil
	}
	var out []canvas.Element
	for _, el := range q.Elements() {
		if el.ID == regionID {
			continue
		}
		if el.Bounds().Collides(target) {
			out = append(out, el)
		}
	}
	return out
}

// DescendantsOf returns every element nested under the region, in page order.
func DescendantsOf(q Query, regionID canvas.ID) []canvas.Element {
	if _, ok := q.PageBounds(regionID); !ok {
		return nil
	}
	all := q.Elements()
	parent := make(map[canvas.ID]canvas.ID, len(all))
	for _, el := range all {
		parent[el.ID] = el.ParentID
	}
	var out []canvas.Element
	for _, el := range all {
		if el.ID != regionID && descends(parent, el.ID, regionID) {
			out = append(out, el)
		}
	}
	return out
}

func descends(parent map[canvas.ID]canvas.ID, id, ancestor canvas.ID) bool {
	for steps := 0; steps <= len(parent); steps++ {
		p, ok := parent[id]
		if !ok || p == "" {
			return false
		}
		if p == ancestor {
			return true
		}
		id = p
	}
	return false
}

// Select applies the policy.
func Select(q Query, regionID canvas.ID, p Policy) []canvas.Element {
	if p == Descendants {
		return DescendantsOf(q, regionID)
	}
	return ElementsTouching(q, regionID)
}
