package httpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from the control API.
type APIError struct {
	Status  int
	Kind    string `json:"kind"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("httpc: %d %s: %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("httpc: %d: %s", e.Status, e.Message)
}

// API talks to a camsession server.
type API struct {
	base   string
	client *http.Client
}

// NewAPI creates a client for the server at base (e.g. "http://localhost:8090").
// A nil client uses NewClient(DefaultTimeout).
func NewAPI(base string, client *http.Client) *API {
	if client == nil {
		client = NewClient(DefaultTimeout)
	}
	return &API{
		base:   strings.TrimRight(base, "/"),
		client: client,
	}
}

// Status fetches GET /api/status into v.
func (a *API) Status(ctx context.Context, v any) error {
	return a.do(ctx, http.MethodGet, "/api/status", nil, v)
}

// Resume asks the session to resume. A negative selector keeps the
// server's current one.
func (a *API) Resume(ctx context.Context, selector int, v any) error {
	var body any
	if selector >= 0 {
		body = map[string]int{"selector": selector}
	}
	return a.do(ctx, http.MethodPost, "/api/lifecycle/resume", body, v)
}

// Pause asks the session to pause.
func (a *API) Pause(ctx context.Context, v any) error {
	return a.do(ctx, http.MethodPost, "/api/lifecycle/pause", nil, v)
}

// CameraPermission answers the pending camera permission request.
func (a *API) CameraPermission(ctx context.Context, granted bool) error {
	return a.do(ctx, http.MethodPost, "/api/permission/camera", map[string]bool{"granted": granted}, nil)
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("httpc: encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, r)
	if err != nil {
		return fmt.Errorf("httpc: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("httpc: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("httpc: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("httpc: decode response: %w", err)
		}
	}
	return nil
}
