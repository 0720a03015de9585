package zulu

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/nstolbov/zuluview/internal/geom"
	"github.com/nstolbov/zuluview/internal/httpclient"
	"github.com/nstolbov/zuluview/internal/observability"
)

// TileFetchError reports a non-success HTTP status on a tile request,
// carrying a bounded prefix of the error body for diagnostics.
type TileFetchError struct {
	Coord   geom.TileCoordinate
	Status  int
	Snippet string
}

func (e *TileFetchError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("zulu tile %s: upstream status %d", e.Coord.Key(), e.Status)
	}
	return fmt.Sprintf("zulu tile %s: upstream status %d: %s", e.Coord.Key(), e.Status, e.Snippet)
}

// TileDecodeError reports fetched bytes that are not a valid image.
type TileDecodeError struct {
	Coord geom.TileCoordinate
	Err   error
}

func (e *TileDecodeError) Error() string {
	return fmt.Sprintf("zulu tile %s: decode: %v", e.Coord.Key(), e.Err)
}

func (e *TileDecodeError) Unwrap() error { return e.Err }

// Tile is a displayable tile resource with a bounded lifetime. Release must
// be called exactly once, on successful display or on disposal, so handle
// accounting stays balanced across tile churn during panning.
type Tile struct {
	Coord  geom.TileCoordinate
	Layer  string
	Image  image.Image
	Format string
	Bytes  []byte

	release sync.Once
}

func (t *Tile) Release() {
	t.release.Do(func() {
		t.Image = nil
		t.Bytes = nil
		observability.TileHandleReleased()
	})
}

// FetchTile requests one raster tile. Tile identity is request-addressed by
// (x, y, z, layer); no client-side cache exists, every call goes to the
// network.
func (c *Client) FetchTile(ctx context.Context, layer string, tc geom.TileCoordinate) (*Tile, error) {
	doc, cmd := newCommand("GetLayerTile")
	cmd.CreateElement("X").SetText(strconv.Itoa(tc.X))
	cmd.CreateElement("Y").SetText(strconv.Itoa(tc.Y))
	cmd.CreateElement("Z").SetText(strconv.Itoa(tc.Z))
	cmd.CreateElement("Layer").SetText(layer)
	body, err := doc.WriteToBytes()
	if err != nil {
		return nil, wrapTransport("tile", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, wrapTransport("tile", err)
	}
	c.authorize(req)

	rid := xxhash.Sum64String(layer + "|" + tc.Key())
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.IncTileFetch("transport_error")
		return nil, wrapTransport("tile", err)
	}
	defer func() { _ = resp.Body.Close() }()
	observability.ObserveUpstreamLatency("zulu_tile", time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.IncTileFetch("http_error")
		return nil, &TileFetchError{Coord: tc, Status: resp.StatusCode, Snippet: httpclient.Snippet(resp.Body)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.IncTileFetch("transport_error")
		return nil, wrapTransport("tile", err)
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		observability.IncTileFetch("decode_error")
		return nil, &TileDecodeError{Coord: tc, Err: err}
	}

	observability.IncTileFetch("ok")
	observability.TileHandleOpened()
	c.log.Debug("tile fetched",
		"layer", layer,
		"tile", tc.Key(),
		"format", format,
		"bytes", len(raw),
		"request", fmt.Sprintf("%016x", rid),
		"duration", time.Since(start))

	return &Tile{Coord: tc, Layer: layer, Image: img, Format: format, Bytes: raw}, nil
}
