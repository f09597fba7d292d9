package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoSession is returned by Load when no status file exists on disk.
var ErrNoSession = errors.New("no active session")

// Store persists the running session's Status.
type Store interface {
	Save(st *Status) error
	Load() (*Status, error) // returns ErrNoSession if none exists
	Delete() error
}

// diskStore writes session.json in the focuspet data directory.
type diskStore struct {
	path string
}

// NewStore returns a Store backed by the XDG data directory.
// Path: $XDG_DATA_HOME/focuspet/session.json or ~/.local/share/focuspet/session.json
func NewStore() (Store, error) {
	dir, err := DataDir()
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	return NewStoreAt(dir)
}

// NewStoreAt returns a Store rooted at dir, creating it if needed.
func NewStoreAt(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &diskStore{path: filepath.Join(dir, "session.json")}, nil
}

// DataDir returns the focuspet-specific XDG data directory.
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "focuspet"), nil
}

// Save marshals st to JSON and writes it atomically.
func (d *diskStore) Save(st *Status) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to persist session status: %w", err)
	}
	if err := writeAtomic(d.path, data); err != nil {
		return fmt.Errorf("failed to persist session status: %w", err)
	}
	return nil
}

// Load reads and unmarshals the status file.
// Returns ErrNoSession if the file does not exist.
func (d *diskStore) Load() (*Status, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read session status: %w", err)
	}

	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse session status: %w", err)
	}
	return &st, nil
}

// Delete removes the status file from disk.
func (d *diskStore) Delete() error {
	if err := os.Remove(d.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete session status: %w", err)
	}
	return nil
}

// writeAtomic writes data to a temp file in the same directory and renames
// it over path.
func writeAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
