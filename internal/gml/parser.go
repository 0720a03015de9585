// Package gml parses WFS GetFeature documents into the normalized feature
// model. WFS servers differ in which GML profile and namespace prefixing
// they emit, so the parser matches on local tag names only and walks a
// layered chain of member/geometry conventions instead of assuming one
// dialect.
//
// Known limitation: interior polygon rings (holes) are not extracted; only
// the exterior ring survives.
package gml

import (
	"errors"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/nstolbov/zuluview/internal/geom"
)

// ParseError reports input that is not well-formed XML. Anything short of
// that degrades per-feature instead of failing the parse.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "gml: malformed document: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// Tags that wrap or carry geometry. Children with these local names are
// never treated as plain attributes.
var geometryTags = map[string]bool{
	"Point":            true,
	"LineString":       true,
	"Polygon":          true,
	"MultiPoint":       true,
	"MultiLineString":  true,
	"MultiPolygon":     true,
	"MultiSurface":     true,
	"MultiCurve":       true,
	"LinearRing":       true,
	"exterior":         true,
	"interior":         true,
	"boundedBy":        true,
	"Box":              true,
	"Envelope":         true,
	"pos":              true,
	"posList":          true,
	"coordinates":      true,
	"geometryProperty": true,
}

// Collection-level wrappers that are not feature members.
var envelopeTags = map[string]bool{
	"boundedBy":        true,
	"Envelope":         true,
	"name":             true,
	"description":      true,
	"metaDataProperty": true,
}

// Parse converts a GetFeature response body into a FeatureCollection,
// preserving document order. Features without extractable geometry are kept
// with a nil Geometry. The only error returned is *ParseError.
func Parse(data []byte) (geom.FeatureCollection, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = true
	doc.ReadSettings.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, &ParseError{Err: err}
	}
	root := doc.Root()
	if root == nil {
		return nil, &ParseError{Err: errors.New("no document element")}
	}

	members := memberNodes(root)
	fc := make(geom.FeatureCollection, 0, len(members))
	for _, m := range members {
		fc = append(fc, parseMember(m))
	}
	return fc, nil
}

// memberNodes locates the feature-member elements, trying the wrapper
// conventions in a fixed order: featureMember (any prefix), member (any
// prefix), a featureMembers wrapper's direct children, and finally all
// top-level children that are not collection envelope tags.
func memberNodes(root *etree.Element) []*etree.Element {
	for _, tag := range []string{"featureMember", "member"} {
		if found := descendantsByLocal(root, tag); len(found) > 0 {
			return found
		}
	}
	if fm := firstDescendantByLocal(root, "featureMembers"); fm != nil {
		if ch := fm.ChildElements(); len(ch) > 0 {
			return ch
		}
	}
	var out []*etree.Element
	for _, ch := range root.ChildElements() {
		if envelopeTags[ch.Tag] {
			continue
		}
		out = append(out, ch)
	}
	return out
}

func parseMember(member *etree.Element) geom.Feature {
	// Only the wrapper conventions need unwrapping; featureMembers children
	// and bare top-level nodes already are the feature.
	el := member
	if member.Tag == "featureMember" || member.Tag == "member" {
		el = featureElement(member)
	}

	attrs := map[string]string{}
	for _, ch := range el.ChildElements() {
		if geometryTags[ch.Tag] || carriesGeometry(ch) {
			continue
		}
		// Last write wins on duplicate field names.
		attrs[ch.Tag] = strings.TrimSpace(ch.Text())
	}

	return geom.Feature{Attributes: attrs, Geometry: extractGeometry(el)}
}

// featureElement picks the actual feature inside a member node: the first
// child that is not itself a geometry/bounding-box wrapper, defaulting to
// the first child, defaulting to the member node itself.
func featureElement(member *etree.Element) *etree.Element {
	children := member.ChildElements()
	if len(children) == 0 {
		return member
	}
	for _, ch := range children {
		if !geometryTags[ch.Tag] {
			return ch
		}
	}
	return children[0]
}

func extractGeometry(el *etree.Element) geom.Geometry {
	// Direct children first, Point > LineString > Polygon.
	if p := childByLocal(el, "Point"); p != nil {
		return pointFrom(p)
	}
	if l := childByLocal(el, "LineString"); l != nil {
		return lineFrom(l)
	}
	if pg := childByLocal(el, "Polygon"); pg != nil {
		return polygonFrom(pg)
	}

	// A bare posList/pos outside any geometry tag: minimal GML fragments.
	if pl := bareCoordElement(el, "posList"); pl != nil {
		pts := pairs(floats(pl.Text()))
		switch {
		case len(pts) == 1:
			return geom.Point{Coord: pts[0]}
		case len(pts) >= 2:
			return geom.LineString(pts)
		}
	}
	if pos := bareCoordElement(el, "pos"); pos != nil {
		if v := floats(pos.Text()); len(v) >= 2 {
			return geom.Point{Coord: geom.Coord{X: v[0], Y: v[1]}}
		}
	}

	// Last resort: any nested geometry element, e.g. under geometryProperty.
	if p := firstDescendantByLocal(el, "Point"); p != nil {
		return pointFrom(p)
	}
	if l := firstDescendantByLocal(el, "LineString"); l != nil {
		return lineFrom(l)
	}
	if pg := firstDescendantByLocal(el, "Polygon"); pg != nil {
		return polygonFrom(pg)
	}
	return nil
}

func pointFrom(el *etree.Element) geom.Geometry {
	if pos := firstDescendantByLocal(el, "pos"); pos != nil {
		if v := floats(pos.Text()); len(v) >= 2 {
			return geom.Point{Coord: geom.Coord{X: v[0], Y: v[1]}}
		}
	}
	if co := firstDescendantByLocal(el, "coordinates"); co != nil {
		if pts := coordPairs(co.Text()); len(pts) >= 1 {
			return geom.Point{Coord: pts[0]}
		}
	}
	return nil
}

func lineFrom(el *etree.Element) geom.Geometry {
	pts := ringCoords(el)
	if len(pts) < 2 {
		return nil
	}
	return geom.LineString(pts)
}

// polygonFrom extracts the exterior ring only. Interior rings are dropped.
func polygonFrom(el *etree.Element) geom.Geometry {
	ringEl := el
	if ext := firstDescendantByLocal(el, "exterior"); ext != nil {
		ringEl = ext
	}
	if lr := firstDescendantByLocal(ringEl, "LinearRing"); lr != nil {
		ringEl = lr
	}
	pts := ringCoords(ringEl)
	if len(pts) < 2 {
		return nil
	}
	return geom.Polygon{geom.Ring(pts)}
}

// ringCoords reads a posList (flat whitespace-separated numbers, grouped
// pairwise) or a coordinates child ("x,y x,y" pairs) under el.
func ringCoords(el *etree.Element) []geom.Coord {
	if pl := firstDescendantByLocal(el, "posList"); pl != nil {
		return pairs(floats(pl.Text()))
	}
	if co := firstDescendantByLocal(el, "coordinates"); co != nil {
		return coordPairs(co.Text())
	}
	return nil
}

// carriesGeometry reports whether any descendant is a geometry or
// coordinate-bearing element, which disqualifies the node as an attribute.
func carriesGeometry(el *etree.Element) bool {
	for _, ch := range el.ChildElements() {
		if geometryTags[ch.Tag] || carriesGeometry(ch) {
			return true
		}
	}
	return false
}

// bareCoordElement finds a descendant with the given local tag that is not
// inside a Point/LineString/Polygon subtree.
func bareCoordElement(el *etree.Element, tag string) *etree.Element {
	for _, ch := range el.ChildElements() {
		switch ch.Tag {
		case "Point", "LineString", "Polygon":
			continue
		}
		if ch.Tag == tag {
			return ch
		}
		if found := bareCoordElement(ch, tag); found != nil {
			return found
		}
	}
	return nil
}

// descendantsByLocal collects descendants with the given local tag name in
// document order, ignoring namespace prefixes.
func descendantsByLocal(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, ch := range el.ChildElements() {
		if ch.Tag == tag {
			out = append(out, ch)
		}
		out = append(out, descendantsByLocal(ch, tag)...)
	}
	return out
}

func firstDescendantByLocal(el *etree.Element, tag string) *etree.Element {
	for _, ch := range el.ChildElements() {
		if ch.Tag == tag {
			return ch
		}
		if found := firstDescendantByLocal(ch, tag); found != nil {
			return found
		}
	}
	return nil
}

func childByLocal(el *etree.Element, tag string) *etree.Element {
	for _, ch := range el.ChildElements() {
		if ch.Tag == tag {
			return ch
		}
	}
	return nil
}

// floats parses whitespace-separated numeric tokens. Tokens that do not
// parse as finite numbers are dropped, not errors.
func floats(text string) []float64 {
	fields := strings.Fields(text)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// pairs groups a flat number list pairwise; an odd trailing number drops the
// incomplete pair.
func pairs(vals []float64) []geom.Coord {
	out := make([]geom.Coord, 0, len(vals)/2)
	for i := 0; i+1 < len(vals); i += 2 {
		out = append(out, geom.Coord{X: vals[i], Y: vals[i+1]})
	}
	return out
}

// coordPairs parses the GML2 coordinates form: comma-separated within a
// pair, whitespace-separated between pairs.
func coordPairs(text string) []geom.Coord {
	var out []geom.Coord
	for _, pair := range strings.Fields(text) {
		parts := strings.Split(pair, ",")
		if len(parts) < 2 {
			continue
		}
		x, errX := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		y, errY := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if errX != nil || errY != nil ||
			math.IsInf(x, 0) || math.IsNaN(x) || math.IsInf(y, 0) || math.IsNaN(y) {
			continue
		}
		out = append(out, geom.Coord{X: x, Y: y})
	}
	return out
}
