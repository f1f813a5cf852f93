package state

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notesync/notesync/internal/events"
	"github.com/notesync/notesync/internal/models"
)

func newTestHistory(t *testing.T) *HistoryStore {
	t.Helper()
	logger := events.NewTestLogger(events.ErrorLevel, io.Discard)
	store, err := NewHistoryStore(filepath.Join(t.TempDir(), "history.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := newTestHistory(t)

	err := store.Record("phone-1", "My Phone", models.TransportLAN, models.SyncResult{
		Success:       true,
		SentCount:     3,
		ReceivedCount: 1,
		DurationMS:    1200,
	})
	require.NoError(t, err)

	err = store.Record("phone-1", "My Phone", models.TransportBLE, models.SyncResult{
		Success: false,
		Errors:  []string{"transfer interrupted", "retry failed"},
	})
	require.NoError(t, err)

	entries, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	newest := entries[0]
	assert.Equal(t, models.TransportBLE, newest.Transport)
	assert.False(t, newest.Success)
	assert.Equal(t, []string{"transfer interrupted", "retry failed"}, newest.Errors)

	oldest := entries[1]
	assert.Equal(t, models.TransportLAN, oldest.Transport)
	assert.True(t, oldest.Success)
	assert.Equal(t, 3, oldest.SentCount)
	assert.Equal(t, int64(1200), oldest.DurationMS)
	assert.Nil(t, oldest.Errors)
}

func TestRecentLimit(t *testing.T) {
	store := newTestHistory(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record("phone-1", "Phone", models.TransportLAN, models.SyncResult{Success: true}))
	}

	entries, err := store.Recent(3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestRecentEmpty(t *testing.T) {
	store := newTestHistory(t)

	entries, err := store.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReopenSurvivesRestart(t *testing.T) {
	logger := events.NewTestLogger(events.ErrorLevel, io.Discard)
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := NewHistoryStore(path, logger)
	require.NoError(t, err)
	require.NoError(t, store.Record("phone-1", "Phone", models.TransportLAN, models.SyncResult{Success: true}))
	require.NoError(t, store.Close())

	reopened, err := NewHistoryStore(path, logger)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.Recent(10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
