// Package zulu speaks the zulu-server XML command protocol: GetLayerTile for
// raster tiles and SelectElemByXY for attribute lookup under a point.
package zulu

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/beevik/etree"

	"github.com/nstolbov/zuluview/internal/httpclient"
)

// Client issues zulu-server commands against a single endpoint, with
// optional basic-auth credentials.
type Client struct {
	endpoint string
	username string
	password string
	http     *http.Client
	log      *slog.Logger
}

func New(endpoint, username, password string, hc *http.Client, log *slog.Logger) *Client {
	if hc == nil {
		hc = httpclient.NewOutbound()
	}
	return &Client{
		endpoint: endpoint,
		username: username,
		password: password,
		http:     hc,
		log:      log,
	}
}

// newCommand builds the fixed command envelope and returns the operation
// element to fill in.
func newCommand(op string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	root := doc.CreateElement("zulu-server")
	root.CreateAttr("service", "zws")
	root.CreateAttr("version", "1.0.0")
	cmd := root.CreateElement("Command").CreateElement(op)
	return doc, cmd
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Content-Type", "application/xml")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}

// XMLParseError reports a response that is not well-formed XML or whose root
// carries a server-side parse failure diagnostic.
type XMLParseError struct {
	Detail string
}

func (e *XMLParseError) Error() string {
	if e.Detail == "" {
		return "zulu: malformed response"
	}
	return "zulu: " + e.Detail
}

func wrapTransport(op string, err error) error {
	return fmt.Errorf("zulu %s: %w", op, err)
}
