// Package boundary manages the user-drawn normal regions for each dataset:
// building boundaries from raw selection input, ordering them for match
// priority, and round-tripping them through the persisted preference
// document.
package boundary

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/banshee-data/driftsight/internal/geometry"
)

// Kind identifies the shape of a boundary.
type Kind string

const (
	KindRectangle Kind = "rectangle"
	KindCircle    Kind = "circle"
	KindOval      Kind = "oval"
	KindPolygon   Kind = "polygon"
)

// PointList is an ordered vertex list that persists as [[x,y], ...] pairs,
// matching the boundary shape stored in the preference document. The center
// point, by contrast, persists as a {x, y} object.
type PointList []geometry.Point

// MarshalJSON encodes the list as coordinate pairs.
func (l PointList) MarshalJSON() ([]byte, error) {
	pairs := make([][2]float64, len(l))
	for i, p := range l {
		pairs[i] = [2]float64{p.X, p.Y}
	}
	return json.Marshal(pairs)
}

// UnmarshalJSON decodes coordinate pairs back into points.
func (l *PointList) UnmarshalJSON(data []byte) error {
	var pairs [][2]float64
	if err := json.Unmarshal(data, &pairs); err != nil {
		return err
	}
	out := make(PointList, len(pairs))
	for i, pr := range pairs {
		out[i] = geometry.Point{X: pr[0], Y: pr[1]}
	}
	*l = out
	return nil
}

// Boundary is one user-drawn normal region. Which shape fields are
// meaningful depends on Type: rectangles and polygons use Coordinates,
// circles use Center+Radius, ovals use Center+RadiusX/RadiusY.
type Boundary struct {
	ID          string          `json:"id"`
	Type        Kind            `json:"type"`
	DatasetID   int64           `json:"dataset_id"`
	Coordinates PointList       `json:"coordinates,omitempty"`
	Center      *geometry.Point `json:"center,omitempty"`
	Radius      float64         `json:"radius,omitempty"`
	RadiusX     float64         `json:"radiusX,omitempty"`
	RadiusY     float64         `json:"radiusY,omitempty"`
}

// Contains reports whether p falls inside the boundary.
func (b *Boundary) Contains(p geometry.Point) bool {
	switch b.Type {
	case KindRectangle:
		if len(b.Coordinates) < 2 {
			return false
		}
		return geometry.InRect(p, b.Coordinates[0], b.Coordinates[1])
	case KindCircle:
		if b.Center == nil {
			return false
		}
		return geometry.InCircle(p, *b.Center, b.Radius)
	case KindOval:
		if b.Center == nil {
			return false
		}
		return geometry.InOval(p, *b.Center, b.RadiusX, b.RadiusY)
	case KindPolygon:
		return geometry.InPolygon(p, b.Coordinates)
	}
	return false
}

// Valid reports whether the boundary satisfies its shape invariants:
// polygons need at least three vertices, circles and ovals positive radii,
// rectangles two corners.
func (b *Boundary) Valid() bool {
	if b.ID == "" {
		return false
	}
	switch b.Type {
	case KindRectangle:
		return len(b.Coordinates) >= 2
	case KindCircle:
		return b.Center != nil && b.Radius > 0
	case KindOval:
		return b.Center != nil && b.RadiusX > 0 && b.RadiusY > 0
	case KindPolygon:
		return len(b.Coordinates) >= 3
	}
	return false
}

// Selection is the raw input of a single drawing gesture. Box-style shapes
// (rectangle, circle, oval) use Start/End as the drag corners; polygons use
// the clicked vertex list.
type Selection struct {
	Start    geometry.Point
	End      geometry.Point
	Vertices []geometry.Point
}

// Build constructs a Boundary for dataset datasetID from a selection. It
// returns ok=false when the selection cannot form a valid shape, e.g. a
// polygon with fewer than three vertices.
func Build(sel Selection, kind Kind, datasetID int64) (Boundary, bool) {
	b := Boundary{
		ID:        uuid.NewString(),
		Type:      kind,
		DatasetID: datasetID,
	}

	switch kind {
	case KindRectangle:
		b.Coordinates = PointList{sel.Start, sel.End}
	case KindCircle, KindOval:
		center := geometry.Point{
			X: (sel.Start.X + sel.End.X) / 2,
			Y: (sel.Start.Y + sel.End.Y) / 2,
		}
		halfW := abs(sel.End.X-sel.Start.X) / 2
		halfH := abs(sel.End.Y-sel.Start.Y) / 2
		b.Center = &center
		if kind == KindCircle {
			// Circle radius is half the smaller bounding-box dimension.
			b.Radius = min(halfW, halfH)
		} else {
			b.RadiusX = halfW
			b.RadiusY = halfH
		}
	case KindPolygon:
		b.Coordinates = append(PointList(nil), sel.Vertices...)
	default:
		return Boundary{}, false
	}

	if !b.Valid() {
		return Boundary{}, false
	}
	return b, true
}

// DecodeList decodes a persisted boundary list entry by entry. Entries that
// fail to decode or violate shape invariants are dropped rather than failing
// the whole load.
func DecodeList(raw []json.RawMessage) []Boundary {
	var out []Boundary
	for _, r := range raw {
		var b Boundary
		if err := json.Unmarshal(r, &b); err != nil {
			continue
		}
		if !b.Valid() {
			continue
		}
		out = append(out, b)
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
