// Package ogc builds and executes WFS GetFeature requests.
package ogc

import (
	"net/url"
	"strings"

	"github.com/nstolbov/zuluview/internal/geom"
)

const srid = "EPSG:4326"

// GetFeatureParams builds the WFS 1.1.0 GetFeature query parameters. The
// bbox, when present, scopes the request to the current viewport.
func GetFeatureParams(typeName string, bbox *geom.BBox) url.Values {
	params := url.Values{}
	params.Set("service", "WFS")
	params.Set("version", "1.1.0")
	params.Set("request", "GetFeature")
	params.Set("typeName", typeName)
	if bbox != nil {
		params.Set("bbox", bbox.String()+","+srid)
	}
	return params
}

// GetFeatureURL appends GetFeature parameters to the WFS endpoint.
func GetFeatureURL(wfsURL, typeName string, bbox *geom.BBox) string {
	sep := "?"
	if strings.Contains(wfsURL, "?") {
		sep = "&"
	}
	return wfsURL + sep + GetFeatureParams(typeName, bbox).Encode()
}
