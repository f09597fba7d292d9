package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const controlFile = "control.json"

// Control is a one-slot mailbox in the data directory. Short-lived
// focuspet invocations Send requests; the process running the session
// Watches for them.
type Control struct {
	dir string
}

// NewControl returns a Control rooted at dir.
func NewControl(dir string) *Control {
	return &Control{dir: dir}
}

func (c *Control) path() string {
	return filepath.Join(c.dir, controlFile)
}

// Send writes req to the mailbox, replacing any request not yet consumed.
func (c *Control) Send(req Request) error {
	if req.IssuedAt.IsZero() {
		req.IssuedAt = time.Now()
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode control request: %w", err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := writeAtomic(c.path(), data); err != nil {
		return fmt.Errorf("write control request: %w", err)
	}
	return nil
}

// Take reads and removes a pending request. It returns (nil, nil) when the
// mailbox is empty.
func (c *Control) Take() (*Request, error) {
	data, err := os.ReadFile(c.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read control request: %w", err)
	}
	if err := os.Remove(c.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("consume control request: %w", err)
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse control request: %w", err)
	}
	return &req, nil
}

// Watch delivers requests to fn until ctx is cancelled. A request already
// waiting when Watch starts is delivered first.
func (c *Control) Watch(ctx context.Context, fn func(Request)) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(c.dir); err != nil {
		return fmt.Errorf("watch %s: %w", c.dir, err)
	}

	deliver := func() {
		req, err := c.Take()
		if err != nil || req == nil {
			return // malformed or raced with another reader; drop it
		}
		fn(*req)
	}
	deliver()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != controlFile {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				deliver()
			}

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Watcher errors are non-fatal; continue watching.
		}
	}
}
