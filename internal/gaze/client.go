// Package gaze is the client side of the telemetry ingress: a websocket
// subscription delivering focus samples and alerts, plus the start/stop
// tracking control endpoints.
package gaze

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// ErrNoSessionID is returned by StartTracking and SendAlert when id is empty.
var ErrNoSessionID = errors.New("cannot start tracking without a session id")

// Client talks to the gaze relay at baseURL (http or https).
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
	now     func() time.Time

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient returns a Client for baseURL. Control requests are bounded by
// timeout. A nil logger discards output.
func NewClient(baseURL string, timeout time.Duration, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
		now:     time.Now,
	}
}

// wsURL maps the http(s) base URL to its ws(s) push endpoint.
func (c *Client) wsURL() string {
	switch {
	case strings.HasPrefix(c.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.baseURL, "https://") + "/ws"
	case strings.HasPrefix(c.baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.baseURL, "http://") + "/ws"
	}
	return c.baseURL + "/ws"
}

// Subscribe opens the push channel. Events are delivered until ctx is
// cancelled, Close is called, or the connection drops; the channel is then
// closed. There is no automatic reconnect. Only one subscription is kept:
// a second call replaces the first.
func (c *Client) Subscribe(ctx context.Context) (<-chan Event, error) {
	cfg, err := websocket.NewConfig(c.wsURL(), c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("gaze subscribe: %w", err)
	}
	conn, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("gaze subscribe: %w", err)
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.mu.Unlock()

	events := make(chan Event, 16)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(events)
		defer close(done)
		defer c.release(conn)

		for {
			var data []byte
			if err := websocket.Message.Receive(conn, &data); err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					c.logger.Printf("subscription closed: %v", err)
				}
				return
			}
			var f Frame
			if err := json.Unmarshal(data, &f); err != nil {
				c.logger.Printf("skipping malformed frame: %v", err)
				continue
			}
			ev, ok := decodeFrame(f, c.now())
			if !ok {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

// release forgets conn if it is still the current subscription.
func (c *Client) release(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn.Close()
	if c.conn == conn {
		c.conn = nil
	}
}

// StartTracking asks the relay to start forwarding samples for id and joins
// the session's alert room on the open subscription, if any.
func (c *Client) StartTracking(ctx context.Context, id string) error {
	if id == "" {
		return ErrNoSessionID
	}
	if err := c.post(ctx, "/api/start_tracking", map[string]string{"session_id": id}); err != nil {
		return fmt.Errorf("start tracking %s: %w", id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	if err := websocket.JSON.Send(c.conn, Frame{Type: FrameJoinSession, SessionID: id}); err != nil {
		c.logger.Printf("join alert room for %s: %v", id, err)
	}
	return nil
}

// StopTracking tells the relay to stop forwarding samples.
func (c *Client) StopTracking(ctx context.Context) error {
	if err := c.post(ctx, "/api/stop_tracking", struct{}{}); err != nil {
		return fmt.Errorf("stop tracking: %w", err)
	}
	return nil
}

// SendAlert asks the relay to push unfocused_alert to the alert room of
// session id. The relay supplies the message.
func (c *Client) SendAlert(ctx context.Context, id string) error {
	if id == "" {
		return ErrNoSessionID
	}
	if err := c.post(ctx, "/api/unfocused_alert", map[string]string{"session_id": id}); err != nil {
		return fmt.Errorf("unfocused alert %s: %w", id, err)
	}
	return nil
}

// Close drops the current subscription.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused; the body itself is unused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("relay returned %s", resp.Status)
	}
	return nil
}
