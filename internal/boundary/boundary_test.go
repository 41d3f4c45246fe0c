package boundary

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/banshee-data/driftsight/internal/geometry"
)

func TestBuildRectangle(t *testing.T) {
	sel := Selection{Start: geometry.Point{X: 10, Y: 10}, End: geometry.Point{X: 0, Y: 0}}
	b, ok := Build(sel, KindRectangle, 1)
	if !ok {
		t.Fatal("expected rectangle to build")
	}
	if b.ID == "" {
		t.Error("expected a generated id")
	}
	if !b.Contains(geometry.Point{X: 5, Y: 5}) {
		t.Error("expected (5,5) inside rectangle")
	}
	if b.Contains(geometry.Point{X: 11, Y: 5}) {
		t.Error("expected (11,5) outside rectangle")
	}
}

func TestBuildCircleUsesSmallerDimension(t *testing.T) {
	// 20 wide, 10 tall: radius must be 5, centred at (10,5).
	sel := Selection{Start: geometry.Point{X: 0, Y: 0}, End: geometry.Point{X: 20, Y: 10}}
	b, ok := Build(sel, KindCircle, 1)
	if !ok {
		t.Fatal("expected circle to build")
	}
	if b.Center == nil || b.Center.X != 10 || b.Center.Y != 5 {
		t.Errorf("center = %+v, want (10,5)", b.Center)
	}
	if b.Radius != 5 {
		t.Errorf("radius = %v, want 5", b.Radius)
	}
	if !b.Contains(geometry.Point{X: 10, Y: 0}) {
		t.Error("expected boundary point inside (inclusive)")
	}
	if b.Contains(geometry.Point{X: 16, Y: 5}) {
		t.Error("expected point beyond radius outside")
	}
}

func TestBuildOvalIndependentRadii(t *testing.T) {
	sel := Selection{Start: geometry.Point{X: 0, Y: 0}, End: geometry.Point{X: 20, Y: 10}}
	b, ok := Build(sel, KindOval, 1)
	if !ok {
		t.Fatal("expected oval to build")
	}
	if b.RadiusX != 10 || b.RadiusY != 5 {
		t.Errorf("radii = (%v, %v), want (10, 5)", b.RadiusX, b.RadiusY)
	}
	if !b.Contains(geometry.Point{X: 19, Y: 5}) {
		t.Error("expected point near x extreme inside oval")
	}
	if b.Contains(geometry.Point{X: 19, Y: 9}) {
		t.Error("expected corner point outside oval")
	}
}

func TestBuildDegenerateSelections(t *testing.T) {
	// Zero-area drag: circle and oval radii are zero, so the build fails.
	sel := Selection{Start: geometry.Point{X: 5, Y: 5}, End: geometry.Point{X: 5, Y: 5}}
	if _, ok := Build(sel, KindCircle, 1); ok {
		t.Error("expected zero-radius circle to be rejected")
	}
	if _, ok := Build(sel, KindOval, 1); ok {
		t.Error("expected zero-radius oval to be rejected")
	}
	// Rectangles may be degenerate; the corners still normalize.
	if _, ok := Build(sel, KindRectangle, 1); !ok {
		t.Error("expected degenerate rectangle to build")
	}
}

func TestBuildPolygon(t *testing.T) {
	tri := Selection{Vertices: []geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 5, Y: 10}}}
	b, ok := Build(tri, KindPolygon, 1)
	if !ok {
		t.Fatal("expected triangle to build")
	}
	if !b.Contains(geometry.Point{X: 5, Y: 5}) {
		t.Error("expected (5,5) inside triangle")
	}
	if b.Contains(geometry.Point{X: 0, Y: 10}) {
		t.Error("expected (0,10) outside triangle")
	}

	two := Selection{Vertices: []geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 0}}}
	if _, ok := Build(two, KindPolygon, 1); ok {
		t.Error("expected two-vertex polygon to be rejected")
	}
	if _, ok := Build(Selection{}, KindPolygon, 1); ok {
		t.Error("expected empty polygon to be rejected")
	}
}

func TestBuildUnknownKind(t *testing.T) {
	if _, ok := Build(Selection{}, Kind("blob"), 1); ok {
		t.Error("expected unknown kind to be rejected")
	}
}

func TestStoreSingleMode(t *testing.T) {
	s := NewStore()
	b1, _ := Build(Selection{Start: geometry.Point{}, End: geometry.Point{X: 10, Y: 10}}, KindRectangle, 1)
	b2, _ := Build(Selection{Start: geometry.Point{}, End: geometry.Point{X: 20, Y: 20}}, KindRectangle, 1)

	s.Add(b1)
	s.Add(b2)
	got := s.List(1)
	if len(got) != 1 {
		t.Fatalf("single mode: len = %d, want 1", len(got))
	}
	if got[0].ID != b2.ID {
		t.Error("single mode: expected the newer boundary to replace the set")
	}
}

func TestStoreMultiMode(t *testing.T) {
	s := NewStore()
	s.SetMulti(true)
	b1, _ := Build(Selection{Start: geometry.Point{}, End: geometry.Point{X: 10, Y: 10}}, KindRectangle, 1)
	b2, _ := Build(Selection{Start: geometry.Point{}, End: geometry.Point{X: 20, Y: 20}}, KindRectangle, 1)

	s.Add(b1)
	s.Add(b2)
	got := s.List(1)
	if len(got) != 2 {
		t.Fatalf("multi mode: len = %d, want 2", len(got))
	}
	if got[0].ID != b1.ID || got[1].ID != b2.ID {
		t.Error("multi mode: expected append order preserved")
	}
}

func TestStoreRemoveAndClear(t *testing.T) {
	s := NewStore()
	s.SetMulti(true)
	b1, _ := Build(Selection{Start: geometry.Point{}, End: geometry.Point{X: 10, Y: 10}}, KindRectangle, 1)
	b2, _ := Build(Selection{Start: geometry.Point{}, End: geometry.Point{X: 20, Y: 20}}, KindRectangle, 1)
	s.Add(b1)
	s.Add(b2)

	if !s.RemoveByID(1, b1.ID) {
		t.Error("expected RemoveByID to find b1")
	}
	if s.RemoveByID(1, "nonexistent") {
		t.Error("expected RemoveByID to miss unknown id")
	}
	if got := s.List(1); len(got) != 1 || got[0].ID != b2.ID {
		t.Errorf("after remove: got %d boundaries", len(got))
	}

	s.Clear(1)
	if got := s.List(1); len(got) != 0 {
		t.Errorf("after clear: got %d boundaries", len(got))
	}
}

func TestStoreDatasetIsolation(t *testing.T) {
	s := NewStore()
	b1, _ := Build(Selection{Start: geometry.Point{}, End: geometry.Point{X: 10, Y: 10}}, KindRectangle, 1)
	b2, _ := Build(Selection{Start: geometry.Point{}, End: geometry.Point{X: 10, Y: 10}}, KindRectangle, 2)
	s.Add(b1)
	s.Add(b2)

	if got := s.List(1); len(got) != 1 || got[0].DatasetID != 1 {
		t.Error("dataset 1 list polluted")
	}
	if got := s.List(2); len(got) != 1 || got[0].DatasetID != 2 {
		t.Error("dataset 2 list polluted")
	}
}

func TestStoreReplaceRoundTrip(t *testing.T) {
	s := NewStore()
	s.SetMulti(true)
	b1, _ := Build(Selection{Start: geometry.Point{}, End: geometry.Point{X: 10, Y: 10}}, KindRectangle, 1)
	b2, _ := Build(Selection{Start: geometry.Point{}, End: geometry.Point{X: 20, Y: 20}}, KindRectangle, 1)
	s.Add(b1)
	s.Add(b2)

	restored := NewStore()
	restored.Replace(s.All())
	got := restored.List(1)
	if len(got) != 2 || got[0].ID != b1.ID || got[1].ID != b2.ID {
		t.Error("Replace(All()) did not preserve per-dataset order")
	}
}

func TestDecodeListDropsInvalid(t *testing.T) {
	entries := []json.RawMessage{
		json.RawMessage(`{"id":"a","type":"circle","dataset_id":1,"center":{"x":0,"y":0},"radius":5}`),
		json.RawMessage(`{"id":"b","type":"polygon","dataset_id":1,"coordinates":[[0,0]]}`),   // too few vertices
		json.RawMessage(`{"id":"c","type":"circle","dataset_id":1,"center":{"x":0,"y":0}}`),   // missing radius
		json.RawMessage(`{"type":"circle","dataset_id":1,"center":{"x":0,"y":0},"radius":5}`), // missing id
		json.RawMessage(`not json`),
		json.RawMessage(`{"id":"d","type":"rectangle","dataset_id":2,"coordinates":[[0,0],[10,10]]}`),
	}
	got := DecodeList(entries)
	if len(got) != 2 {
		t.Fatalf("DecodeList kept %d entries, want 2", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "d" {
		t.Errorf("DecodeList kept %q and %q, want a and d", got[0].ID, got[1].ID)
	}
}

func TestBoundaryJSONPairEncoding(t *testing.T) {
	b := Boundary{
		ID:          "r1",
		Type:        KindRectangle,
		DatasetID:   1,
		Coordinates: PointList{{X: 1, Y: 2}, {X: 3, Y: 4}},
	}
	data, err := json.Marshal(&b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `"coordinates":[[1,2],[3,4]]`
	if !strings.Contains(string(data), want) {
		t.Errorf("marshal = %s, want it to contain %s", data, want)
	}

	var back Boundary
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back.Coordinates) != 2 || back.Coordinates[1].Y != 4 {
		t.Errorf("round trip lost coordinates: %+v", back.Coordinates)
	}
}
