package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/nstolbov/zuluview/internal/geom"
	"github.com/nstolbov/zuluview/internal/gml"
)

// FeatureSource abstracts the WFS client for the gateway.
type FeatureSource interface {
	GetFeatures(ctx context.Context, typeName string, bbox *geom.BBox) (geom.FeatureCollection, error)
}

// HandleFeatures validates layer and optional bbox parameters, fetches the
// features and echoes the normalized collection as JSON.
func HandleFeatures(logger *slog.Logger, src FeatureSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		layer := strings.TrimSpace(r.URL.Query().Get("layer"))
		if layer == "" {
			http.Error(w, "missing required parameter: layer", http.StatusBadRequest)
			return
		}

		var bbox *geom.BBox
		if raw := strings.TrimSpace(r.URL.Query().Get("bbox")); raw != "" {
			bb, err := ParseBBox(raw)
			if err != nil {
				http.Error(w, "invalid bbox: "+err.Error(), http.StatusBadRequest)
				return
			}
			bbox = &bb
		}

		fc, err := src.GetFeatures(r.Context(), layer, bbox)
		if err != nil {
			status := http.StatusBadGateway
			var perr *gml.ParseError
			if errors.As(err, &perr) {
				status = http.StatusUnprocessableEntity
			}
			logger.Warn("feature query failed", "layer", layer, "err", err)
			http.Error(w, err.Error(), status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(collectionJSON(fc))
	}
}

// ParseBBox parses "minx,miny,maxx,maxy" in EPSG:4326.
func ParseBBox(raw string) (geom.BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return geom.BBox{}, errors.New("expected 4 comma-separated values: minx,miny,maxx,maxy")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geom.BBox{}, fmt.Errorf("value %d: %w", i+1, err)
		}
		vals[i] = f
	}
	b := geom.BBox{MinX: vals[0], MinY: vals[1], MaxX: vals[2], MaxY: vals[3]}
	if b.MaxX <= b.MinX || b.MaxY <= b.MinY {
		return geom.BBox{}, errors.New("coordinates must satisfy maxx>minx and maxy>miny")
	}
	return b, nil
}

type featureJSON struct {
	Attributes map[string]string `json:"attributes"`
	Geometry   *geometryJSON     `json:"geometry,omitempty"`
}

type geometryJSON struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

type collectionResponse struct {
	Type     string        `json:"type"`
	Count    int           `json:"count"`
	Features []featureJSON `json:"features"`
}

func collectionJSON(fc geom.FeatureCollection) collectionResponse {
	out := collectionResponse{
		Type:     "FeatureCollection",
		Count:    len(fc),
		Features: make([]featureJSON, 0, len(fc)),
	}
	for _, f := range fc {
		fj := featureJSON{Attributes: f.Attributes}
		if f.Geometry != nil {
			fj.Geometry = &geometryJSON{
				Type:        f.Geometry.Type().String(),
				Coordinates: coordsJSON(f.Geometry),
			}
		}
		out.Features = append(out.Features, fj)
	}
	return out
}

func coordsJSON(g geom.Geometry) any {
	switch v := g.(type) {
	case geom.Point:
		return []float64{v.X, v.Y}
	case geom.LineString:
		return coordList(v)
	case geom.Polygon:
		rings := make([][][]float64, 0, len(v))
		for _, ring := range v {
			rings = append(rings, coordList(ring))
		}
		return rings
	default:
		return nil
	}
}

func coordList(cs []geom.Coord) [][]float64 {
	out := make([][]float64, 0, len(cs))
	for _, c := range cs {
		out = append(out, []float64{c.X, c.Y})
	}
	return out
}
