package geom

import (
	"math"
	"testing"
)

func TestFeatureCollectionBounds(t *testing.T) {
	fc := FeatureCollection{
		{Geometry: Point{Coord{X: 1, Y: 2}}},
		{Attributes: map[string]string{"n": "no geometry"}},
		{Geometry: LineString{{X: -3, Y: 5}, {X: 4, Y: -1}}},
	}
	b, ok := fc.Bounds()
	if !ok {
		t.Fatalf("expected bounds")
	}
	want := BBox{MinX: -3, MinY: -1, MaxX: 4, MaxY: 5}
	if b != want {
		t.Fatalf("got %+v want %+v", b, want)
	}
}

func TestFeatureCollectionBounds_NoGeometry(t *testing.T) {
	fc := FeatureCollection{{Attributes: map[string]string{"a": "b"}}}
	if _, ok := fc.Bounds(); ok {
		t.Fatalf("attribute-only collection must have no bounds")
	}
}

func TestPolygonBounds(t *testing.T) {
	p := Polygon{Ring{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}}
	want := BBox{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	if got := p.Bounds(); got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestBBoxString(t *testing.T) {
	b := BBox{MinX: 11, MinY: 55, MaxX: 12, MaxY: 56}
	want := "11.000000,55.000000,12.000000,56.000000"
	if got := b.String(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestBBoxPad_Degenerate(t *testing.T) {
	b := Point{Coord{X: 30, Y: 59}}.Bounds().Pad(0.05)
	if b.MaxX <= b.MinX || b.MaxY <= b.MinY {
		t.Fatalf("padded point bounds must have extent: %+v", b)
	}
}

func TestAround(t *testing.T) {
	b := Around(Coord{X: 30, Y: 59}, 0.0007)
	if !b.Contains(Coord{X: 30, Y: 59}) {
		t.Fatalf("center must be inside")
	}
	if b.Contains(Coord{X: 30.001, Y: 59}) {
		t.Fatalf("point outside the radius must not be inside")
	}
}

func TestScaleAt(t *testing.T) {
	// 2*pi*R/256 at zoom 0, halving per level.
	if got, want := ScaleAt(0), 156543.03392804097; math.Abs(got-want) > 1e-6 {
		t.Fatalf("zoom 0: got %v want %v", got, want)
	}
	if got, want := ScaleAt(10), 156543.03392804097/1024; math.Abs(got-want) > 1e-9 {
		t.Fatalf("zoom 10: got %v want %v", got, want)
	}
}

func TestTileCoordinateKey(t *testing.T) {
	tc := TileCoordinate{X: 5, Y: 7, Z: 3}
	if got := tc.Key(); got != "3/5/7" {
		t.Fatalf("got %q", got)
	}
}
