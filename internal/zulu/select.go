package zulu

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/nstolbov/zuluview/internal/httpclient"
	"github.com/nstolbov/zuluview/internal/observability"
)

// Field is one attribute record of a selected element: a display name and a
// value. Both normalize into the shared attribute mapping before rendering.
type Field struct {
	UserName string
	Value    string
}

// SelectAt asks the server which object lies under a map coordinate at the
// given scale (ground meters per pixel, see geom.ScaleAt).
//
// The wire format carries latitude in <X> and longitude in <Y>; this reads
// as swapped but is the established convention of the service and must not
// be corrected.
//
// ok is false when the server found no object at the point, which is a
// normal outcome and not an error. An element found with zero fields returns
// an empty non-nil slice with ok true.
func (c *Client) SelectAt(ctx context.Context, layer string, lat, lon, scale float64) (fields []Field, ok bool, err error) {
	doc, cmd := newCommand("SelectElemByXY")
	cmd.CreateElement("Layer").SetText(layer)
	cmd.CreateElement("X").SetText(strconv.FormatFloat(lat, 'f', -1, 64))
	cmd.CreateElement("Y").SetText(strconv.FormatFloat(lon, 'f', -1, 64))
	cmd.CreateElement("Scale").SetText(strconv.FormatFloat(scale, 'f', -1, 64))
	cmd.CreateElement("CRS").SetText("EPSG:4326")
	body, werr := doc.WriteToBytes()
	if werr != nil {
		return nil, false, wrapTransport("select", werr)
	}

	req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if rerr != nil {
		return nil, false, wrapTransport("select", rerr)
	}
	c.authorize(req)

	start := time.Now()
	resp, derr := c.http.Do(req)
	if derr != nil {
		return nil, false, wrapTransport("select", derr)
	}
	defer func() { _ = resp.Body.Close() }()
	observability.ObserveUpstreamLatency("zulu_select", time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, wrapTransport("select",
			&httpclient.StatusError{Status: resp.StatusCode, Snippet: httpclient.Snippet(resp.Body)})
	}

	raw, berr := io.ReadAll(resp.Body)
	if berr != nil {
		return nil, false, wrapTransport("select", berr)
	}

	return parseSelectResponse(raw)
}

func parseSelectResponse(raw []byte) ([]Field, bool, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = true
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, false, &XMLParseError{Detail: err.Error()}
	}
	root := doc.Root()
	if root == nil {
		return nil, false, &XMLParseError{Detail: "empty response"}
	}
	if root.Tag == "Error" {
		return nil, false, &XMLParseError{Detail: strings.TrimSpace(root.Text())}
	}

	element := firstByLocal(root, "Element")
	if element == nil {
		// No object under the point.
		return nil, false, nil
	}

	fields := make([]Field, 0)
	for _, f := range allByLocal(element, "Field") {
		var name, value string
		if n := firstByLocal(f, "UserName"); n != nil {
			name = strings.TrimSpace(n.Text())
		}
		if v := firstByLocal(f, "Value"); v != nil {
			value = strings.TrimSpace(v.Text())
		}
		fields = append(fields, Field{UserName: name, Value: value})
	}
	return fields, true, nil
}

func firstByLocal(el *etree.Element, tag string) *etree.Element {
	for _, ch := range el.ChildElements() {
		if ch.Tag == tag {
			return ch
		}
		if found := firstByLocal(ch, tag); found != nil {
			return found
		}
	}
	return nil
}

func allByLocal(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, ch := range el.ChildElements() {
		if ch.Tag == tag {
			out = append(out, ch)
		}
		out = append(out, allByLocal(ch, tag)...)
	}
	return out
}
