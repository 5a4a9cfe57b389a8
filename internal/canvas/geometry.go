package canvas

import "math"

// Point is a position in page space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is an axis-aligned rectangle in page space.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// MaxX returns the right edge of the box.
func (b Box) MaxX() float64 { return b.X + b.W }

// MaxY returns the bottom edge of the box.
func (b Box) MaxY() float64 { return b.Y + b.H }

// IsEmpty reports whether the box has no area.
func (b Box) IsEmpty() bool {
	return b.W <= 0 || b.H <= 0 || math.IsNaN(b.W) || math.IsNaN(b.H)
}

// Collides reports whether the two boxes overlap. Boxes that share an
// edge collide.
func (b Box) Collides(o Box) bool {
	return !(b.MaxX() < o.X || b.X > o.MaxX() || b.MaxY() < o.Y || b.Y > o.MaxY())
}

// Contains reports whether o lies entirely inside b.
func (b Box) Contains(o Box) bool {
	return o.X >= b.X && o.Y >= b.Y && o.MaxX() <= b.MaxX() && o.MaxY() <= b.MaxY()
}

// Includes reports whether o collides with or is contained by b.
func (b Box) Includes(o Box) bool {
	return b.Collides(o) || b.Contains(o)
}

// Union returns the smallest box containing both b and o.
func (b Box) Union(o Box) Box {
	minX := math.Min(b.X, o.X)
	minY := math.Min(b.Y, o.Y)
	maxX := math.Max(b.MaxX(), o.MaxX())
	maxY := math.Max(b.MaxY(), o.MaxY())
	return Box{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// Translate returns b moved by (dx, dy).
func (b Box) Translate(dx, dy float64) Box {
	return Box{X: b.X + dx, Y: b.Y + dy, W: b.W, H: b.H}
}

// boxFromPoints returns the bounding box of pts offset by origin.
func boxFromPoints(origin Point, pts []Point) Box {
	if len(pts) == 0 {
		return Box{X: origin.X, Y: origin.Y}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return Box{X: origin.X + minX, Y: origin.Y + minY, W: maxX - minX, H: maxY - minY}
}
