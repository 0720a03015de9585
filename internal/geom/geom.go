// Package geom holds the normalized geometry and feature model that every
// protocol response converges to before it reaches a rendering surface.
package geom

import (
	"fmt"
	"math"
)

// Coord is a single position in the source CRS. No transformation is applied
// anywhere in this module; coordinates pass through as the server sent them.
type Coord struct {
	X, Y float64
}

type GeometryType int

const (
	TypePoint GeometryType = iota + 1
	TypeLineString
	TypePolygon
)

func (t GeometryType) String() string {
	switch t {
	case TypePoint:
		return "Point"
	case TypeLineString:
		return "LineString"
	case TypePolygon:
		return "Polygon"
	default:
		return "Unknown"
	}
}

// Geometry is the tagged variant over Point, LineString and Polygon.
type Geometry interface {
	Type() GeometryType
	Bounds() BBox
}

type Point struct {
	Coord
}

func (Point) Type() GeometryType { return TypePoint }

func (p Point) Bounds() BBox {
	return BBox{MinX: p.X, MinY: p.Y, MaxX: p.X, MaxY: p.Y}
}

type LineString []Coord

func (LineString) Type() GeometryType { return TypeLineString }

func (l LineString) Bounds() BBox {
	b := emptyBBox()
	for _, c := range l {
		b.Extend(c)
	}
	return b
}

// Ring is one polygon ring. Rings are not required to be explicitly closed;
// closing is a rendering concern.
type Ring []Coord

// Polygon is an ordered ring sequence, first ring exterior. The parsers in
// this module only ever produce the exterior ring; see package gml.
type Polygon []Ring

func (Polygon) Type() GeometryType { return TypePolygon }

func (p Polygon) Bounds() BBox {
	b := emptyBBox()
	for _, ring := range p {
		for _, c := range ring {
			b.Extend(c)
		}
	}
	return b
}

// Feature pairs an attribute bag with an optional geometry. A feature with a
// nil geometry is retained (attributes may still be useful) but cannot be
// rendered spatially.
type Feature struct {
	Attributes map[string]string
	Geometry   Geometry
}

// FeatureCollection preserves source-document order; the first element is
// "the result" for point queries.
type FeatureCollection []Feature

// Bounds returns the union bounds of all feature geometries. ok is false when
// no feature carries a geometry.
func (fc FeatureCollection) Bounds() (BBox, bool) {
	b := emptyBBox()
	found := false
	for _, f := range fc {
		if f.Geometry == nil {
			continue
		}
		b = b.Union(f.Geometry.Bounds())
		found = true
	}
	return b, found
}

// BBox is an axis-aligned bounding box in the source CRS.
type BBox struct {
	MinX, MinY, MaxX, MaxY float64
}

func emptyBBox() BBox {
	return BBox{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
}

// String renders the box in WFS parameter order: minx,miny,maxx,maxy.
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.MinX, b.MinY, b.MaxX, b.MaxY)
}

func (b *BBox) Extend(c Coord) {
	if c.X < b.MinX {
		b.MinX = c.X
	}
	if c.X > b.MaxX {
		b.MaxX = c.X
	}
	if c.Y < b.MinY {
		b.MinY = c.Y
	}
	if c.Y > b.MaxY {
		b.MaxY = c.Y
	}
}

func (b BBox) Union(o BBox) BBox {
	return BBox{
		MinX: math.Min(b.MinX, o.MinX),
		MinY: math.Min(b.MinY, o.MinY),
		MaxX: math.Max(b.MaxX, o.MaxX),
		MaxY: math.Max(b.MaxY, o.MaxY),
	}
}

func (b BBox) Contains(c Coord) bool {
	return c.X >= b.MinX && c.X <= b.MaxX && c.Y >= b.MinY && c.Y <= b.MaxY
}

// Pad grows the box by ratio of its width/height on each side. Degenerate
// boxes (single point) get a small absolute margin so a fitted view is never
// zero-sized.
func (b BBox) Pad(ratio float64) BBox {
	const minMargin = 0.0005
	dx := (b.MaxX - b.MinX) * ratio
	dy := (b.MaxY - b.MinY) * ratio
	if dx < minMargin {
		dx = minMargin
	}
	if dy < minMargin {
		dy = minMargin
	}
	return BBox{MinX: b.MinX - dx, MinY: b.MinY - dy, MaxX: b.MaxX + dx, MaxY: b.MaxY + dy}
}

// Around builds a box of the given half-width in degrees centered on a point.
func Around(c Coord, halfWidth float64) BBox {
	return BBox{
		MinX: c.X - halfWidth, MinY: c.Y - halfWidth,
		MaxX: c.X + halfWidth, MaxY: c.Y + halfWidth,
	}
}

// TileCoordinate identifies one raster tile.
type TileCoordinate struct {
	X, Y, Z int
}

func (t TileCoordinate) Key() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

const earthRadius = 6378137.0

// ScaleAt returns the ground distance per pixel at a Web-Mercator zoom level,
// 2*pi*R / (256*2^zoom). Point queries send it so the server can apply
// zoom-appropriate selection tolerance.
func ScaleAt(zoom int) float64 {
	return 2 * math.Pi * earthRadius / (256 * math.Exp2(float64(zoom)))
}
