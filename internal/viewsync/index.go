package viewsync

import (
	"github.com/dhconnelly/rtreego"

	"github.com/nstolbov/zuluview/internal/geom"
)

// featureIndex is an R-tree over the displayed features, rebuilt on every
// wholesale replace. It serves local hit-testing only and never feeds the
// click-resolution fallback chain.
type featureIndex struct {
	rtree *rtreego.Rtree
}

type indexedFeature struct {
	feature geom.Feature
	bounds  geom.BBox
}

// R-tree rectangles need non-zero extents; point features get a small
// epsilon (~11 m at the equator).
const rectEpsilon = 0.0001

func (f *indexedFeature) Bounds() rtreego.Rect {
	w := f.bounds.MaxX - f.bounds.MinX
	h := f.bounds.MaxY - f.bounds.MinY
	if w < rectEpsilon {
		w = rectEpsilon
	}
	if h < rectEpsilon {
		h = rectEpsilon
	}
	rect, _ := rtreego.NewRect(rtreego.Point{f.bounds.MinX, f.bounds.MinY}, []float64{w, h})
	return rect
}

func newFeatureIndex(fc geom.FeatureCollection) *featureIndex {
	rtree := rtreego.NewTree(2, 25, 50)
	for _, f := range fc {
		if f.Geometry == nil {
			continue
		}
		rtree.Insert(&indexedFeature{feature: f, bounds: f.Geometry.Bounds()})
	}
	return &featureIndex{rtree: rtree}
}

func (idx *featureIndex) at(c geom.Coord) []geom.Feature {
	rect, _ := rtreego.NewRect(rtreego.Point{c.X, c.Y}, []float64{rectEpsilon, rectEpsilon})
	spatials := idx.rtree.SearchIntersect(rect)
	out := make([]geom.Feature, 0, len(spatials))
	for _, sp := range spatials {
		entry := sp.(*indexedFeature)
		if entry.bounds.Contains(c) {
			out = append(out, entry.feature)
		}
	}
	return out
}
