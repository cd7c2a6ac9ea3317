// Package state persists the durable per-application lifecycle markers.
//
// Every powerminder invocation is short-lived and shares no memory with the
// previous one, so the marker files in the state directory are the only
// coordination channel between a power-event trigger and a process-exit
// trigger. Presence or absence of a marker file is the sole semantic signal;
// the JSON payload inside is diagnostic only.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// MarkerKind selects one of the two marker files an application can have.
type MarkerKind string

const (
	// MarkerRunning means "auto-resume this application when AC power returns".
	// It survives suspend/resume cycles and is only cleared when an exit is
	// observed without a pending MarkerIgnoreNextExit (a manual close).
	MarkerRunning MarkerKind = "running"

	// MarkerIgnoreNextExit is a token meaning "the next observed exit was
	// caused by a controlled suspend, not a manual close". It must be durably
	// on disk before the stop request is issued. An exit observer that can
	// name the process consumes it; otherwise it stays until the application
	// is next resumed.
	MarkerIgnoreNextExit MarkerKind = "ignore-exit"
)

// Payload is the diagnostic content stored inside a marker file.
type Payload struct {
	Timestamp time.Time `json:"timestamp"`
	PID       int       `json:"pid,omitempty"`
	Note      string    `json:"note,omitempty"`
}

// Store reads and writes marker files in a single state directory.
// All methods are safe to call from concurrent invocations of powerminder;
// cross-invocation safety rests on the filesystem's create/replace semantics,
// not on any in-process lock.
type Store struct {
	dir    string
	retry  RetryPolicy
	logger *slog.Logger
}

// Options configures a Store.
type Options struct {
	Dir    string       // State directory. Required.
	Retry  RetryPolicy  // Optional, defaults to DefaultRetryPolicy().
	Logger *slog.Logger // Optional, defaults to slog.Default().
}

// NewStore creates a Store rooted at opts.Dir, creating the directory if
// needed.
func NewStore(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", opts.Dir, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:    opts.Dir,
		retry:  opts.Retry.normalized(),
		logger: logger.With("component", "StateStore"),
	}, nil
}

// Dir returns the state directory the store operates on.
func (s *Store) Dir() string {
	return s.dir
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeName normalizes an application name into a safe file identifier so
// configured names cannot inject path elements into the state directory.
func SanitizeName(app string) string {
	safe := unsafeNameChars.ReplaceAllString(app, "_")
	if safe == "" {
		safe = "_"
	}
	return safe
}

// MarkerPath returns the marker file path for the given application and kind.
func (s *Store) MarkerPath(app string, kind MarkerKind) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.%s", SanitizeName(app), kind))
}

// SetMarker durably creates or replaces a marker, retrying transient I/O
// failures under the store's retry policy. The write is atomic: the payload
// goes to a temp file which is then renamed over the marker path, so a marker
// either exists with complete content or not at all.
func (s *Store) SetMarker(app string, kind MarkerKind, payload Payload) error {
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode marker payload for %s: %w", app, err)
	}

	path := s.MarkerPath(app, kind)
	err = s.retry.Run(func() error {
		return writeFileAtomic(path, data)
	})
	if err != nil {
		return &WriteError{App: app, Kind: kind, Err: err}
	}
	s.logger.Debug("Marker set", "application", app, "kind", string(kind))
	return nil
}

// ClearMarker removes a marker if present. Clearing an absent marker is a
// silent success. A removal that still fails after retries is logged and
// reported as false, never escalated to a fatal error.
func (s *Store) ClearMarker(app string, kind MarkerKind) bool {
	path := s.MarkerPath(app, kind)
	err := s.retry.Run(func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to clear marker", "application", app, "kind", string(kind), "error", err)
		return false
	}
	s.logger.Debug("Marker cleared", "application", app, "kind", string(kind))
	return true
}

// HasMarker reports whether the marker file exists. It has no side effects.
func (s *Store) HasMarker(app string, kind MarkerKind) bool {
	_, err := os.Stat(s.MarkerPath(app, kind))
	return err == nil
}

// ReadPayload returns the diagnostic payload of an existing marker. A marker
// whose content cannot be decoded still counts as present; the zero Payload
// is returned in that case.
func (s *Store) ReadPayload(app string, kind MarkerKind) (Payload, bool) {
	data, err := os.ReadFile(s.MarkerPath(app, kind))
	if err != nil {
		return Payload{}, false
	}
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.logger.Warn("Marker payload is not valid JSON", "application", app, "kind", string(kind), "error", err)
		return Payload{}, true
	}
	return payload, true
}

// WriteError is returned when a marker write exhausts its retries.
type WriteError struct {
	App  string
	Kind MarkerKind
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to persist %s marker for application %q: %v", e.Kind, e.App, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
