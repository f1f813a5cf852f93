package sync

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notesync/notesync/internal/events"
	"github.com/notesync/notesync/internal/models"
	"github.com/notesync/notesync/internal/services/pairing"
	"github.com/notesync/notesync/internal/store"
)

// memStore is an in-memory config store for tests.
type memStore struct {
	mu  sync.Mutex
	cfg models.SyncConfig
}

func (m *memStore) Sync() models.SyncConfig {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := m.cfg
	cfg.PairedDevices = append([]models.AuthToken(nil), m.cfg.PairedDevices...)
	return cfg
}

func (m *memStore) Set(key string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key == "sync.pairedDevices" {
		m.cfg.PairedDevices = append([]models.AuthToken(nil), value.([]models.AuthToken)...)
	}
	return nil
}

type memHistory struct {
	mu      sync.Mutex
	records []models.SyncResult
	devices []string
}

func (m *memHistory) Record(deviceID, deviceName string, transport models.TransportType, res models.SyncResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, res)
	m.devices = append(m.devices, deviceID)
	return nil
}

func newTestSyncService(t *testing.T) (*Service, *memStore, *memHistory) {
	t.Helper()

	logger := testLogger()
	notes, err := store.NewLocalStore(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { notes.Close() })

	cfg := &memStore{}
	history := &memHistory{}
	pairingSvc := pairing.NewService("desktop-1", logger)

	svc := NewService("desktop-1", "Desk", "0.1.0", notes, cfg, pairingSvc, history, events.NewBus(), logger)
	return svc, cfg, history
}

func waitEvent(t *testing.T, ch <-chan events.Event, want events.EventType) events.Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %s", want)
		}
	}
}

func TestPairingLifecycle(t *testing.T) {
	svc, cfg, _ := newTestSyncService(t)

	info, err := svc.GeneratePairing("127.0.0.1", 18923, "_notesync._tcp")
	require.NoError(t, err)

	token, err := svc.ValidatePairing("phone-1", info.PIN, "My Phone")
	require.NoError(t, err)
	require.Len(t, cfg.Sync().PairedDevices, 1)

	// The persisted token authenticates.
	match := svc.ValidateToken(token.Token)
	require.NotNil(t, match)
	assert.Equal(t, "phone-1", match.DeviceID)

	// Last-used touch is persisted.
	assert.GreaterOrEqual(t, cfg.Sync().PairedDevices[0].LastUsed, token.LastUsed)

	assert.Nil(t, svc.ValidateToken("not-a-token"))
}

func TestRevokePairing(t *testing.T) {
	svc, cfg, _ := newTestSyncService(t)

	info, err := svc.GeneratePairing("127.0.0.1", 18923, "_notesync._tcp")
	require.NoError(t, err)
	token, err := svc.ValidatePairing("phone-1", info.PIN, "My Phone")
	require.NoError(t, err)

	svc.AddConnectedDevice(models.SyncDevice{ID: "phone-1", Name: "My Phone"})

	ch, cancel := svc.Events().Subscribe()
	defer cancel()

	require.NoError(t, svc.RevokePairing("phone-1"))

	assert.Empty(t, cfg.Sync().PairedDevices)
	assert.Nil(t, svc.ValidateToken(token.Token))
	assert.Empty(t, svc.ConnectedDevices())

	ev := waitEvent(t, ch, events.EventDeviceDisconnected)
	assert.Equal(t, "phone-1", ev.DeviceID)
}

func TestConnectedDeviceRegistry(t *testing.T) {
	svc, _, _ := newTestSyncService(t)

	ch, cancel := svc.Events().Subscribe()
	defer cancel()

	svc.AddConnectedDevice(models.SyncDevice{ID: "phone-1", Name: "Phone", Transport: models.TransportLAN})
	ev := waitEvent(t, ch, events.EventDeviceConnected)
	require.NotNil(t, ev.Device)
	assert.Equal(t, "phone-1", ev.Device.ID)
	assert.Len(t, svc.ConnectedDevices(), 1)

	svc.RemoveConnectedDevice("phone-1")
	waitEvent(t, ch, events.EventDeviceDisconnected)
	assert.Empty(t, svc.ConnectedDevices())

	// Removing an unknown device emits nothing.
	svc.RemoveConnectedDevice("ghost")
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSetStatusEmitsOncePerChange(t *testing.T) {
	svc, _, _ := newTestSyncService(t)

	ch, cancel := svc.Events().Subscribe()
	defer cancel()

	svc.SetStatus(models.StatusSyncing)
	svc.SetStatus(models.StatusSyncing)
	svc.SetStatus(models.StatusIdle)

	first := waitEvent(t, ch, events.EventStatusChanged)
	assert.Equal(t, models.StatusSyncing, first.Status)
	second := waitEvent(t, ch, events.EventStatusChanged)
	assert.Equal(t, models.StatusIdle, second.Status)

	select {
	case ev := <-ch:
		if ev.Type == events.EventStatusChanged {
			t.Fatalf("duplicate status event: %s", ev.Status)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCompleteSyncRecordsHistory(t *testing.T) {
	svc, _, history := newTestSyncService(t)

	svc.SetStatus(models.StatusSyncing)

	token := &models.AuthToken{DeviceID: "phone-1", DeviceName: "Phone"}
	result := &models.SyncResult{Success: true, SentCount: 2, ReceivedCount: 3}

	ts := svc.CompleteSync(token, models.TransportLAN, result)
	assert.Greater(t, ts, int64(0))
	assert.Equal(t, models.StatusIdle, svc.Status())

	history.mu.Lock()
	defer history.mu.Unlock()
	require.Len(t, history.records, 1)
	assert.Equal(t, 2, history.records[0].SentCount)
	assert.Equal(t, []string{"phone-1"}, history.devices)
}

func TestApplyRemoteNoteIdempotent(t *testing.T) {
	svc, _, _ := newTestSyncService(t)

	require.NoError(t, svc.ApplyRemoteNote("sub/note.md", "content"))

	path := filepath.Join(svc.Workspace(), "sub", "note.md")
	first, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, svc.ApplyRemoteNote("sub/note.md", "content"))

	second, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, first.ModTime(), second.ModTime())

	content, err := svc.NoteContent("sub/note.md")
	require.NoError(t, err)
	assert.Equal(t, "content", content)
}

func TestResolveConflictRemote(t *testing.T) {
	svc, _, _ := newTestSyncService(t)

	require.NoError(t, svc.ApplyRemoteNote("note.md", "local version"))

	conflict := models.SyncConflict{Path: "note.md"}
	require.NoError(t, svc.ResolveConflict(conflict, models.ResolveRemote, "remote version"))

	content, err := svc.NoteContent("note.md")
	require.NoError(t, err)
	assert.Equal(t, "remote version", content)

	// The losing local content is archived.
	backups, err := filepath.Glob(filepath.Join(svc.Workspace(), ".notesync", "sync-conflicts", "*_local_note.md"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	archived, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, "local version", string(archived))
}

func TestResolveConflictLocal(t *testing.T) {
	svc, _, _ := newTestSyncService(t)

	require.NoError(t, svc.ApplyRemoteNote("note.md", "local version"))

	conflict := models.SyncConflict{Path: "note.md"}
	require.NoError(t, svc.ResolveConflict(conflict, models.ResolveLocal, "remote version"))

	content, err := svc.NoteContent("note.md")
	require.NoError(t, err)
	assert.Equal(t, "local version", content)

	backups, err := filepath.Glob(filepath.Join(svc.Workspace(), ".notesync", "sync-conflicts", "*_remote_note.md"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestResolveConflictBoth(t *testing.T) {
	svc, _, _ := newTestSyncService(t)

	require.NoError(t, svc.ApplyRemoteNote("note.md", "local version"))

	conflict := models.SyncConflict{Path: "note.md"}
	require.NoError(t, svc.ResolveConflict(conflict, models.ResolveBoth, "remote version"))

	local, err := svc.NoteContent("note.md")
	require.NoError(t, err)
	assert.Equal(t, "local version", local)

	remote, err := svc.NoteContent("note.conflict.md")
	require.NoError(t, err)
	assert.Equal(t, "remote version", remote)
}

func TestDeleteNoteMovesToTrash(t *testing.T) {
	svc, _, _ := newTestSyncService(t)

	require.NoError(t, svc.ApplyRemoteNote("gone.md", "bye"))
	require.NoError(t, svc.DeleteNote("gone.md"))

	_, err := svc.NoteContent("gone.md")
	assert.ErrorIs(t, err, models.ErrNoteNotFound)

	trashed, err := filepath.Glob(filepath.Join(svc.Workspace(), ".notesync", "trash", "*_gone.md"))
	require.NoError(t, err)
	assert.Len(t, trashed, 1)

	assert.ErrorIs(t, svc.DeleteNote("gone.md"), models.ErrNoteNotFound)
}
