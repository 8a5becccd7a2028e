package sdk

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, dir string, now time.Time) *StateStore {
	t.Helper()
	store, err := OpenStateStore(dir)
	require.NoError(t, err)
	store.nowFn = func() time.Time { return now }
	return store
}

func TestStateStoreMintsAndKeepsDeviceID(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)

	first := openTestStore(t, dir, now)
	id := first.DeviceID()
	require.NotEmpty(t, id)

	second := openTestStore(t, dir, now)
	require.Equal(t, id, second.DeviceID(), "device id must survive reopen")
}

func TestStateStoreIncrementPersists(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)

	store := openTestStore(t, dir, now)
	for i := 1; i <= 3; i++ {
		count, err := store.Increment()
		require.NoError(t, err)
		require.Equal(t, i, count)
	}

	reopened := openTestStore(t, dir, now)
	require.Equal(t, 3, reopened.Count())
}

func TestStateStoreWindowRollover(t *testing.T) {
	dir := t.TempDir()
	august := time.Date(2026, time.August, 31, 23, 0, 0, 0, time.UTC)

	store := openTestStore(t, dir, august)
	_, err := store.Increment()
	require.NoError(t, err)
	_, err = store.Increment()
	require.NoError(t, err)
	require.Equal(t, 2, store.Count())

	// The month turns; the stale count reads as zero and the first increment
	// of September yields 1.
	store.nowFn = func() time.Time { return august.Add(2 * time.Hour) }
	require.Equal(t, 0, store.Count())
	count, err := store.Increment()
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestStateStoreConcurrentIncrements(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)
	store := openTestStore(t, dir, now)

	const n = 32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := store.Increment()
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, n, store.Count(), "every concurrent increment must land exactly once")
}

func TestClientFallsBackToEphemeralIdentity(t *testing.T) {
	// A regular file in place of the state dir makes MkdirAll fail.
	blocker := filepath.Join(t.TempDir(), "state")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	client, err := NewClient(Config{StateDir: blocker})
	require.NoError(t, err)
	require.True(t, client.Ephemeral())
	require.NotEmpty(t, client.DeviceID())

	count, err := client.state.Increment()
	require.NoError(t, err)
	require.Equal(t, 1, count, "ephemeral counting still works in memory")
}

func TestStateStoreAdoptIfGreater(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)
	store := openTestStore(t, dir, now)

	_, err := store.Increment()
	require.NoError(t, err)
	_, err = store.Increment()
	require.NoError(t, err)

	require.NoError(t, store.AdoptIfGreater("2026-08", 1))
	require.Equal(t, 2, store.Count(), "a lower merged value must not clobber local")

	require.NoError(t, store.AdoptIfGreater("2026-08", 5))
	require.Equal(t, 5, store.Count())
}
