// Package push upserts JSON documents to the reporting backend.
//
// Pushes are fire-and-forget: no retry, no queue. The next scheduled tick of
// whichever producer issued the push is the retry.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// DefaultTimeout applies to both connect and read.
const DefaultTimeout = 10 * time.Second

var ErrUnexpectedStatus = errors.New("push: unexpected response status")

// Putter upserts one JSON document.
type Putter interface {
	Put(ctx context.Context, url string, doc any) error
}

// Client performs the HTTP PUT. It is safe for concurrent use.
type Client struct {
	http *http.Client
}

// NewClient builds a client with the given connect/read timeout (DefaultTimeout when <= 0).
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Client{http: &http.Client{Transport: transport, Timeout: 2 * timeout}}
}

// NewClientWith wraps an existing http.Client (tests, custom transports).
func NewClientWith(hc *http.Client) *Client {
	return &Client{http: hc}
}

func (c *Client) Put(ctx context.Context, url string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("push: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("push: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}
