package transit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
)

// providerHTTPClient is the shared HTTP client for provider calls
// (aggregator API, custom endpoints, realtime feeds), configured with
// explicit timeouts and transport limits to avoid the pitfalls of
// http.DefaultClient (no timeout, shared global state). The transport is
// cloned from http.DefaultTransport to preserve important defaults
// (ProxyFromEnvironment, DialContext, HTTP/2, keepalives).
var providerHTTPClient = newProviderHTTPClient()

func newProviderHTTPClient() *http.Client {
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConns = 50
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 10 * time.Second
	transport.ExpectContinueTimeout = 1 * time.Second
	// Responses are decompressed explicitly below so the size cap applies
	// to the decoded bytes.
	transport.DisableCompression = true

	return &http.Client{
		// Absolute safety net per request; provider attempts also run
		// under a per-call context timeout, and the stricter wins.
		Timeout:   10 * time.Second,
		Transport: transport,
	}
}

// staticHTTPClient downloads static feeds, which can be large and slow.
var staticHTTPClient = &http.Client{
	Timeout: 5 * time.Minute,
	Transport: &http.Transport{
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
	},
}

// fetchBytes performs a GET with the given headers and returns the body,
// transparently gunzipping Content-Encoding: gzip responses and enforcing
// maxSize on the decoded bytes.
func fetchBytes(ctx context.Context, client *http.Client, url string, headers map[string]string, maxSize int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Encoding", "gzip")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", ErrProviderUnavailable, url, resp.Status)
	}

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip reader: %w", err)
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	}

	body, err := io.ReadAll(io.LimitReader(reader, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > maxSize {
		return nil, fmt.Errorf("response from %s exceeds size limit of %d bytes", url, maxSize)
	}
	return body, nil
}
