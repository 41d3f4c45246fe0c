// Package geometry provides the point-in-shape predicates used to decide
// whether a drift coordinate falls inside a user-drawn normal region.
// All predicates are pure functions over float64 coordinates.
package geometry

import "math"

// Point is a single 2D drift coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// horizontalEps replaces a zero denominator when a polygon edge is exactly
// horizontal, so the ray-casting division below stays finite.
const horizontalEps = 1e-12

// InRect reports whether p lies inside the axis-aligned rectangle spanned by
// the two corners. The corners may be given in any order.
func InRect(p, c1, c2 Point) bool {
	minX := math.Min(c1.X, c2.X)
	maxX := math.Max(c1.X, c2.X)
	minY := math.Min(c1.Y, c2.Y)
	maxY := math.Max(c1.Y, c2.Y)
	return p.X >= minX && p.X <= maxX && p.Y >= minY && p.Y <= maxY
}

// InCircle reports whether p lies inside the circle, boundary inclusive.
// A non-positive radius never contains any point.
func InCircle(p, center Point, radius float64) bool {
	if radius <= 0 {
		return false
	}
	dx := p.X - center.X
	dy := p.Y - center.Y
	return dx*dx+dy*dy <= radius*radius
}

// InOval reports whether p lies inside the axis-aligned ellipse, boundary
// inclusive. A non-positive radius on either axis never contains any point.
func InOval(p, center Point, radiusX, radiusY float64) bool {
	if radiusX <= 0 || radiusY <= 0 {
		return false
	}
	dx := (p.X - center.X) / radiusX
	dy := (p.Y - center.Y) / radiusY
	return dx*dx+dy*dy <= 1
}

// InPolygon reports whether p lies inside the polygon described by the
// ordered vertex list, using even-odd ray casting. Polygons with fewer than
// three vertices contain nothing.
func InPolygon(p Point, vertices []Point) bool {
	if len(vertices) < 3 {
		return false
	}
	inside := false
	j := len(vertices) - 1
	for i := 0; i < len(vertices); i++ {
		vi := vertices[i]
		vj := vertices[j]
		if (vi.Y > p.Y) != (vj.Y > p.Y) {
			denom := vj.Y - vi.Y
			if denom == 0 {
				denom = horizontalEps
			}
			crossX := (vj.X-vi.X)*(p.Y-vi.Y)/denom + vi.X
			if p.X < crossX {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}
