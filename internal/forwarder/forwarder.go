// Package forwarder sends a request verbatim to a direct HTTP compiler
// backend and returns its response unmodified, aside from hop-by-hop
// header hygiene.
package forwarder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/godbolt/ce-router/pkg/logging"
)

const defaultTimeout = 60 * time.Second

// hopByHopHeaders must never be copied between client and backend;
// they describe the connection itself, not the message.
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Upgrade":              {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailers":            {},
	"Transfer-Encoding":   {},
}

// Response is the verbatim result of forwarding a request.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Forwarder relays requests to a direct HTTP backend.
type Forwarder struct {
	httpClient *http.Client
	logger     *logging.Logger
}

// New builds a Forwarder with a fixed request timeout.
func New(logger *logging.Logger) *Forwarder {
	if logger == nil {
		logger = logging.Default()
	}
	return &Forwarder{
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

// Forward sends body to targetURL+path (targetURL's trailing slash is
// stripped; path is used verbatim) using method, copying headers minus
// hop-by-hop entries, and returns the backend's response verbatim.
func (f *Forwarder) Forward(ctx context.Context, targetURL, path, method string, headers map[string][]string, body []byte) (*Response, error) {
	target := strings.TrimSuffix(targetURL, "/") + path

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("forwarder: build request: %w", err)
	}
	copyHeaders(req.Header, headers)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forwarder: request to %s: %w", target, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("forwarder: read response from %s: %w", target, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    flattenResponseHeaders(resp.Header),
		Body:       respBody,
	}, nil
}

// copyHeaders flattens a multi-valued header map into req, comma-joining
// repeated values and skipping hop-by-hop entries.
func copyHeaders(dst http.Header, src map[string][]string) {
	for name, values := range src {
		if isHopByHop(name) {
			continue
		}
		dst.Set(name, strings.Join(values, ", "))
	}
}

// flattenResponseHeaders joins multi-valued response headers and strips
// hop-by-hop entries (including Via, which is only meaningful between
// proxies, not to the original client).
func flattenResponseHeaders(src http.Header) map[string]string {
	out := make(map[string]string, len(src))
	for name, values := range src {
		if isHopByHop(name) || strings.EqualFold(name, "Via") {
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func isHopByHop(name string) bool {
	_, ok := hopByHopHeaders[http.CanonicalHeaderKey(name)]
	return ok
}
