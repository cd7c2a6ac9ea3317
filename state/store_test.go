package state

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(Options{
		Dir:   t.TempDir(),
		Retry: RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond},
	})
	require.NoError(t, err)
	return store
}

func TestNewStoreRequiresDir(t *testing.T) {
	_, err := NewStore(Options{})
	assert.Error(t, err)
}

func TestMarkerRoundTrip(t *testing.T) {
	store := newTestStore(t)

	assert.False(t, store.HasMarker("Foo", MarkerRunning))

	require.NoError(t, store.SetMarker("Foo", MarkerRunning, Payload{PID: 1234}))
	assert.True(t, store.HasMarker("Foo", MarkerRunning))
	assert.False(t, store.HasMarker("Foo", MarkerIgnoreNextExit), "marker kinds are independent")

	payload, ok := store.ReadPayload("Foo", MarkerRunning)
	require.True(t, ok)
	assert.Equal(t, 1234, payload.PID)
	assert.False(t, payload.Timestamp.IsZero(), "timestamp is filled in when omitted")

	assert.True(t, store.ClearMarker("Foo", MarkerRunning))
	assert.False(t, store.HasMarker("Foo", MarkerRunning))
}

func TestClearAbsentMarkerSucceeds(t *testing.T) {
	store := newTestStore(t)
	assert.True(t, store.ClearMarker("never-set", MarkerIgnoreNextExit))
}

func TestSetMarkerReplacesExisting(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetMarker("Foo", MarkerRunning, Payload{PID: 1}))
	require.NoError(t, store.SetMarker("Foo", MarkerRunning, Payload{PID: 2}))

	payload, ok := store.ReadPayload("Foo", MarkerRunning)
	require.True(t, ok)
	assert.Equal(t, 2, payload.PID)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "My_App_1", SanitizeName("My App 1"))
	assert.Equal(t, "___etc_passwd", SanitizeName("../etc/passwd"))
	assert.Equal(t, "plain-name_ok", SanitizeName("plain-name_ok"))
	assert.Equal(t, "_", SanitizeName(""))
}

func TestMarkerPathStaysInsideStateDir(t *testing.T) {
	store := newTestStore(t)

	path := store.MarkerPath("../../escape", MarkerRunning)
	rel, err := filepath.Rel(store.Dir(), path)
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(rel, ".."), "sanitized path must stay inside the state dir")

	require.NoError(t, store.SetMarker("../../escape", MarkerRunning, Payload{}))
	assert.True(t, store.HasMarker("../../escape", MarkerRunning))
}

func TestCorruptMarkerStillCountsAsPresent(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, os.WriteFile(store.MarkerPath("Foo", MarkerRunning), []byte("not json"), 0o644))

	assert.True(t, store.HasMarker("Foo", MarkerRunning))
	payload, ok := store.ReadPayload("Foo", MarkerRunning)
	assert.True(t, ok)
	assert.Zero(t, payload.PID)
}

func TestSetMarkerReturnsWriteErrorAfterRetries(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	store, err := NewStore(Options{
		Dir:   dir,
		Retry: RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond},
	})
	require.NoError(t, err)

	// Removing the state directory makes every write attempt fail.
	require.NoError(t, os.RemoveAll(dir))

	err = store.SetMarker("Foo", MarkerRunning, Payload{})
	require.Error(t, err)

	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "Foo", writeErr.App)
	assert.Equal(t, MarkerRunning, writeErr.Kind)
}

func TestRetryPolicyRunsBoundedAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond}

	attempts := 0
	err := policy.Run(func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	attempts = 0
	err = policy.Run(func() error {
		attempts++
		return errors.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts, "attempts are capped by MaxAttempts")
}
