// Copyright 2024-2026 Aiku AI

// Package transport provides reference implementations of the bridge's
// network capability interfaces. Both clients speak to a gateway process
// over JSON: REST calls for channel and message operations, a WebSocket
// stream for live source events. Deployments with native SDK clients can
// substitute their own implementations; the engine only sees the
// bridge.SourceClient and bridge.DestinationClient interfaces.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/aiku/chanbridge/pkg/bridge"
)

// Config locates a gateway endpoint.
type Config struct {
	// BaseURL is the REST endpoint root, e.g. "http://gateway:8080".
	BaseURL string `yaml:"base_url"`
	// EventsURL is the WebSocket event stream endpoint. Source only.
	EventsURL string `yaml:"events_url"`
	// Token is sent as a bearer token on every request.
	Token string `yaml:"token"`
}

const (
	requestTimeout   = 30 * time.Second
	healthPingPeriod = 30 * time.Second
)

type restClient struct {
	base  string
	token string
	http  *http.Client
}

func newRESTClient(cfg Config) *restClient {
	return &restClient{
		base:  cfg.BaseURL,
		token: cfg.Token,
		http:  &http.Client{Timeout: requestTimeout},
	}
}

// doJSON performs one request with an optional JSON body and decodes the
// response into out when it is non-nil. HTTP statuses are mapped onto the
// bridge error taxonomy.
func (c *restClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return bridge.ErrDestinationNotFound
	case code == http.StatusForbidden || code == http.StatusUnauthorized:
		return bridge.ErrDestinationForbidden
	default:
		return fmt.Errorf("unexpected status %d", code)
	}
}

// wireMedia is the gateway's media attachment shape.
type wireMedia struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	FileName string `json:"file_name"`
	URL      string `json:"url"`
}

func toMediaRefs(in []wireMedia) []bridge.MediaRef {
	if len(in) == 0 {
		return nil
	}
	out := make([]bridge.MediaRef, 0, len(in))
	for _, m := range in {
		out = append(out, bridge.MediaRef{ID: m.ID, Kind: m.Kind, FileName: m.FileName, URL: m.URL})
	}
	return out
}
