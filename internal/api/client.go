// Package api is the HTTP client for the session-control and statistics
// backend, including break recommendations.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNoSessionID is returned when an operation needs a session id and none
// was given.
var ErrNoSessionID = errors.New("missing session id")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Message)
}

// Client talks to the backend over JSON/HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for baseURL. Every request is bounded by
// timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// StartSession asks the backend to allocate a new session id.
func (c *Client) StartSession(ctx context.Context) (*StartSessionResponse, error) {
	var out StartSessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/start_session", struct{}{}, &out); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if out.SessionID == "" {
		return nil, fmt.Errorf("start session: %w", ErrNoSessionID)
	}
	return &out, nil
}

// EndSession marks id completed with the phase's focus percentage.
func (c *Client) EndSession(ctx context.Context, id string, focusPercentage float64) (*EndSessionResponse, error) {
	if id == "" {
		return nil, ErrNoSessionID
	}
	req := EndSessionRequest{SessionID: id, FocusPercentage: &focusPercentage}
	var out EndSessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/end_session", req, &out); err != nil {
		return nil, fmt.Errorf("end session %s: %w", id, err)
	}
	return &out, nil
}

// LogEyeActivity records a single gaze sample against id.
func (c *Client) LogEyeActivity(ctx context.Context, id string, focused bool) error {
	if id == "" {
		return ErrNoSessionID
	}
	var out EyeActivityResponse
	if err := c.do(ctx, http.MethodPost, "/api/eye_activity", EyeActivityRequest{SessionID: id, GazeFocused: focused}, &out); err != nil {
		return fmt.Errorf("log eye activity: %w", err)
	}
	return nil
}

// Recommend fetches the server's break recommendation for id.
func (c *Client) Recommend(ctx context.Context, id string) (*Recommendation, error) {
	if id == "" {
		return nil, ErrNoSessionID
	}
	var out Recommendation
	if err := c.do(ctx, http.MethodGet, "/api/recommend_interval/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, fmt.Errorf("recommend break for %s: %w", id, err)
	}
	return &out, nil
}

// Stats fetches aggregate statistics.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var out Stats
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &out); err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return &out, nil
}

// Health checks that the backend is up.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &out); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return &out, nil
}

// do sends in as JSON (when non-nil) and decodes a 2xx response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Code: resp.StatusCode}
		var er ErrorResponse
		if data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)); json.Unmarshal(data, &er) == nil {
			se.Message = er.Error
		}
		return se
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
