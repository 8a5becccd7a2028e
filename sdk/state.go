package sdk

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
)

const stateFileName = "entitlement.toml"

// windowKeyFormat is the calendar-month usage window. Counts reset implicitly
// when the stored key no longer matches the current month.
const windowKeyFormat = "2006-01"

type deviceState struct {
	DeviceID  string `toml:"device_id"`
	WindowKey string `toml:"window_key"`
	Count     int    `toml:"count"`
}

// StateStore is the durable local record of the device identity and its
// usage counter for the current window. All mutations are serialized and
// flushed to disk before they are visible to callers.
type StateStore struct {
	mu    sync.Mutex
	path  string
	state deviceState
	nowFn func() time.Time
}

// OpenStateStore loads the state file from dir, creating the directory and a
// fresh device identity when absent.
func OpenStateStore(dir string) (*StateStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sdk: create state dir: %w", err)
	}
	s := &StateStore{
		path:  filepath.Join(dir, stateFileName),
		nowFn: func() time.Time { return time.Now().UTC() },
	}

	raw, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.state = deviceState{DeviceID: uuid.NewString()}
		if err := s.flushLocked(); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("sdk: read state file: %w", err)
	}

	if err := toml.Unmarshal(raw, &s.state); err != nil {
		return nil, fmt.Errorf("sdk: parse state file: %w", err)
	}
	if s.state.DeviceID == "" {
		s.state.DeviceID = uuid.NewString()
		if err := s.flushLocked(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// newEphemeralStateStore backs a client whose state dir could not be used.
// The identity and counter live only in memory for the process lifetime, so
// metering degrades to remote best effort.
func newEphemeralStateStore() *StateStore {
	return &StateStore{
		state: deviceState{DeviceID: uuid.NewString()},
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// Ephemeral reports whether the store has no backing file.
func (s *StateStore) Ephemeral() bool { return s.path == "" }

// DeviceID returns the stable identifier minted on first open.
func (s *StateStore) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DeviceID
}

// Count returns the local counter for the current window. A stored count from
// a previous window reads as zero; the stale value is only discarded when the
// next write lands.
func (s *StateStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.WindowKey != s.nowFn().Format(windowKeyFormat) {
		return 0
	}
	return s.state.Count
}

// WindowKey returns the current window key.
func (s *StateStore) WindowKey() string {
	return s.nowFn().Format(windowKeyFormat)
}

// Increment bumps the counter for the current window and persists it before
// returning. A window turnover resets the count to zero first, so the first
// action of a new month yields 1.
func (s *StateStore) Increment() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	window := s.nowFn().Format(windowKeyFormat)
	if s.state.WindowKey != window {
		s.state.WindowKey = window
		s.state.Count = 0
	}
	s.state.Count++
	if err := s.flushLocked(); err != nil {
		return 0, err
	}
	return s.state.Count, nil
}

// AdoptIfGreater raises the local counter to count when the service's merged
// value for the same window is ahead. Lower values never overwrite; the
// counter only moves forward.
func (s *StateStore) AdoptIfGreater(windowKey string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.state.Count
	if s.state.WindowKey != windowKey {
		current = 0
	}
	if count <= current {
		return nil
	}
	s.state.WindowKey = windowKey
	s.state.Count = count
	return s.flushLocked()
}

// flushLocked writes the state atomically: marshal to a sibling temp file,
// then rename over the live one. Callers hold s.mu.
func (s *StateStore) flushLocked() error {
	if s.path == "" {
		return nil
	}
	encoded, err := toml.Marshal(s.state)
	if err != nil {
		return fmt.Errorf("sdk: encode state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), stateFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("sdk: create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sdk: write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("sdk: close state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("sdk: replace state file: %w", err)
	}
	return nil
}
