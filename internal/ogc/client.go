package ogc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/nstolbov/zuluview/internal/geom"
	"github.com/nstolbov/zuluview/internal/gml"
	"github.com/nstolbov/zuluview/internal/httpclient"
	"github.com/nstolbov/zuluview/internal/observability"
)

// Client fetches and parses WFS GetFeature responses.
type Client struct {
	wfsURL string
	http   *http.Client
	log    *slog.Logger
}

func New(wfsURL string, hc *http.Client, log *slog.Logger) *Client {
	if hc == nil {
		hc = httpclient.NewOutbound()
	}
	return &Client{wfsURL: wfsURL, http: hc, log: log}
}

// GetFeatures issues a GetFeature request, optionally bbox-scoped, and parses
// the GML body into the normalized model. Cancellation travels through ctx.
func (c *Client) GetFeatures(ctx context.Context, typeName string, bbox *geom.BBox) (geom.FeatureCollection, error) {
	u := GetFeatureURL(c.wfsURL, typeName, bbox)
	rid := xxhash.Sum64String(u)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("wfs getfeature: build request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wfs getfeature: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	observability.ObserveUpstreamLatency("wfs", time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("wfs getfeature: %w",
			&httpclient.StatusError{Status: resp.StatusCode, Snippet: httpclient.Snippet(resp.Body)})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("wfs getfeature: read body: %w", err)
	}

	fc, err := gml.Parse(body)
	if err != nil {
		return nil, err
	}

	c.log.Debug("wfs getfeature",
		"type_name", typeName,
		"features", len(fc),
		"request", fmt.Sprintf("%016x", rid),
		"duration", time.Since(start))
	return fc, nil
}
