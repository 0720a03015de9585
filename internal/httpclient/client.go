// Package httpclient configures the outbound HTTP client shared by the
// protocol clients and carries the transport-level error type.
package httpclient

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// NewOutbound creates the client used for all upstream calls. Per-request
// deadlines come from the caller's context; the client timeout is a backstop.
func NewOutbound() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}
}

// StatusError reports a non-success HTTP status from an upstream service.
type StatusError struct {
	Status  int
	Snippet string
}

func (e *StatusError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("upstream status %d", e.Status)
	}
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Snippet)
}

// Snippet reads a bounded prefix of an error response body for diagnostics.
func Snippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 8<<10))
	return strings.TrimSpace(string(b))
}
