// Package sync implements the peer-to-peer sync core: manifest
// building, delta computation, and the orchestrator that coordinates
// pairing, transports, and conflict resolution.
package sync

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/notesync/notesync/internal/config"
	"github.com/notesync/notesync/internal/events"
	"github.com/notesync/notesync/internal/models"
	"github.com/notesync/notesync/internal/services/pairing"
	"github.com/notesync/notesync/internal/store"
	"github.com/notesync/notesync/internal/transport"
)

// HistoryRecorder persists completed sync rounds. Optional; a nil
// recorder disables history.
type HistoryRecorder interface {
	Record(deviceID, deviceName string, transport models.TransportType, res models.SyncResult) error
}

// Service is the sync orchestrator: it owns sync status and the
// connected-device registry, and coordinates transports, pairing, and
// the note/config store collaborators.
type Service struct {
	deviceID   string
	deviceName string
	appVersion string

	notes   store.NoteStore
	cfg     config.Store
	pairing *pairing.Service
	history HistoryRecorder
	bus     *events.Bus
	logger  *events.Logger
	now     func() time.Time

	mu         sync.Mutex
	status     models.SyncStatus
	transports map[models.TransportType]transport.Transport
	connected  map[string]models.SyncDevice
}

// NewService creates the orchestrator. history may be nil.
func NewService(
	deviceID string,
	deviceName string,
	appVersion string,
	notes store.NoteStore,
	cfg config.Store,
	pairingSvc *pairing.Service,
	history HistoryRecorder,
	bus *events.Bus,
	logger *events.Logger,
) *Service {
	s := &Service{
		deviceID:   deviceID,
		deviceName: deviceName,
		appVersion: appVersion,
		notes:      notes,
		cfg:        cfg,
		pairing:    pairingSvc,
		history:    history,
		bus:        bus,
		logger:     logger.WithField("service", "sync"),
		now:        time.Now,
		status:     models.StatusIdle,
		transports: make(map[models.TransportType]transport.Transport),
		connected:  make(map[string]models.SyncDevice),
	}

	// Live note changes fan out to connected peers through the bus.
	notes.OnChange(func(change models.NoteChange) {
		c := change
		s.bus.Publish(events.Event{Type: events.EventFileChanged, Change: &c})
	})

	return s
}

// Events returns the notification bus.
func (s *Service) Events() *events.Bus {
	return s.bus
}

// DeviceID returns this desktop's device identifier.
func (s *Service) DeviceID() string {
	return s.deviceID
}

// Workspace returns the workspace root path.
func (s *Service) Workspace() string {
	return s.notes.Root()
}

// DeviceInfo returns the unauthenticated handshake blob.
func (s *Service) DeviceInfo() models.DeviceInfo {
	return models.DeviceInfo{
		DeviceID:        s.deviceID,
		DeviceName:      s.deviceName,
		AppVersion:      s.appVersion,
		SyncEnabled:     s.cfg.Sync().Enabled,
		RequiresPairing: true,
		WorkspaceName:   filepath.Base(s.notes.Root()),
	}
}

// ---- Transport management ----

// RegisterTransport makes a transport available to StartSync/StopSync.
func (s *Service) RegisterTransport(t transport.Transport) {
	s.mu.Lock()
	s.transports[t.Type()] = t
	s.mu.Unlock()
}

// Transport returns the registered transport of the given type, if any.
func (s *Service) Transport(typ models.TransportType) (transport.Transport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transports[typ]
	return t, ok
}

// StartSync starts every registered transport. A transport that fails
// to start is logged and skipped; partial availability is fine (BLE
// down must not take LAN with it).
func (s *Service) StartSync(ctx context.Context) {
	s.mu.Lock()
	transports := make([]transport.Transport, 0, len(s.transports))
	for _, t := range s.transports {
		transports = append(transports, t)
	}
	s.mu.Unlock()

	for _, t := range transports {
		if t.IsRunning() {
			continue
		}
		if err := t.Start(ctx); err != nil {
			s.logger.WithError(err).WithField("transport", t.Type()).Error("Transport failed to start")
			continue
		}
		s.logger.WithField("transport", t.Type()).Info("Transport started")
	}

	s.SetStatus(models.StatusIdle)
}

// StopSync stops every running transport, clears the connected-device
// registry, and resets status to idle.
func (s *Service) StopSync() {
	s.mu.Lock()
	transports := make([]transport.Transport, 0, len(s.transports))
	for _, t := range s.transports {
		transports = append(transports, t)
	}
	devices := make([]string, 0, len(s.connected))
	for id := range s.connected {
		devices = append(devices, id)
	}
	s.connected = make(map[string]models.SyncDevice)
	s.mu.Unlock()

	for _, t := range transports {
		if !t.IsRunning() {
			continue
		}
		if err := t.Stop(); err != nil {
			s.logger.WithError(err).WithField("transport", t.Type()).Error("Transport failed to stop")
			continue
		}
		s.logger.WithField("transport", t.Type()).Info("Transport stopped")
	}

	for _, id := range devices {
		s.bus.Publish(events.Event{Type: events.EventDeviceDisconnected, DeviceID: id})
	}

	s.SetStatus(models.StatusIdle)
}

// ---- Pairing ----

// GeneratePairing mints a fresh single-use pairing challenge.
func (s *Service) GeneratePairing(host string, port int, serviceName string) (models.PairingInfo, error) {
	return s.pairing.Generate(host, port, serviceName)
}

// ValidatePairing consumes the outstanding challenge and, on success,
// appends the minted token to the persisted paired-device list.
func (s *Service) ValidatePairing(deviceID, pin, deviceName string) (*models.AuthToken, error) {
	token, err := s.pairing.Validate(deviceID, pin, deviceName)
	if err != nil {
		return nil, err
	}

	// Fresh read before mutation; write-back is synchronous.
	paired := append(s.cfg.Sync().PairedDevices, *token)
	if err := s.cfg.Set("sync.pairedDevices", paired); err != nil {
		return nil, err
	}

	return token, nil
}

// RevokePairing removes a device's tokens from the persisted list and
// drops any live connection it has.
func (s *Service) RevokePairing(deviceID string) error {
	paired := s.cfg.Sync().PairedDevices
	kept := paired[:0:0]
	for _, t := range paired {
		if t.DeviceID != deviceID {
			kept = append(kept, t)
		}
	}
	if err := s.cfg.Set("sync.pairedDevices", kept); err != nil {
		return err
	}

	s.RemoveConnectedDevice(deviceID)

	s.logger.WithField("device_id", deviceID).Info("Device revoked")
	return nil
}

// PairedDevices returns the persisted paired-device list.
func (s *Service) PairedDevices() []models.AuthToken {
	return s.cfg.Sync().PairedDevices
}

// ValidateToken checks a bearer token against the persisted list,
// touching its last-used timestamp on success.
func (s *Service) ValidateToken(candidate string) *models.AuthToken {
	paired := s.cfg.Sync().PairedDevices
	match := pairing.ValidateToken(candidate, paired, s.now())
	if match == nil {
		return nil
	}

	if err := s.cfg.Set("sync.pairedDevices", paired); err != nil {
		s.logger.WithError(err).Warn("Failed to persist token last-used")
	}

	m := *match
	return &m
}

// ---- Connected-device registry ----

// AddConnectedDevice records a transport-authenticated connection.
func (s *Service) AddConnectedDevice(device models.SyncDevice) {
	s.mu.Lock()
	s.connected[device.ID] = device
	s.mu.Unlock()

	d := device
	s.bus.Publish(events.Event{Type: events.EventDeviceConnected, Device: &d})
}

// RemoveConnectedDevice drops a connection record.
func (s *Service) RemoveConnectedDevice(deviceID string) {
	s.mu.Lock()
	_, existed := s.connected[deviceID]
	delete(s.connected, deviceID)
	s.mu.Unlock()

	if existed {
		s.bus.Publish(events.Event{Type: events.EventDeviceDisconnected, DeviceID: deviceID})
	}
}

// ConnectedDevices returns the current registry contents.
func (s *Service) ConnectedDevices() []models.SyncDevice {
	s.mu.Lock()
	defer s.mu.Unlock()

	devices := make([]models.SyncDevice, 0, len(s.connected))
	for _, d := range s.connected {
		devices = append(devices, d)
	}
	return devices
}

// ---- Sync protocol ----

// BuildManifest fingerprints the workspace notes.
func (s *Service) BuildManifest() (models.NoteManifest, error) {
	return BuildManifest(s.notes.Root(), s.logger)
}

// ComputeDelta classifies divergence between two manifests.
func (s *Service) ComputeDelta(local, remote models.NoteManifest) models.SyncDelta {
	return ComputeDelta(local, remote)
}

// NoteContent reads a note through the note store.
func (s *Service) NoteContent(path string) (string, error) {
	return s.notes.Read(path)
}

// ApplyRemoteNote writes remote content, creating directories as
// needed. Idempotent: an identical second write is a no-op.
func (s *Service) ApplyRemoteNote(path, content string) error {
	if err := s.notes.Write(path, content); err != nil {
		return err
	}
	s.logger.WithField("path", path).Info("Applied remote note")
	return nil
}

// DeleteNote deletes a note through the note store.
func (s *Service) DeleteNote(path string) error {
	if err := s.notes.Delete(path); err != nil {
		return err
	}
	s.logger.WithField("path", path).Info("Deleted note via sync")
	return nil
}

// CompleteSync marks a sync round finished, records history, and
// returns the completion timestamp.
func (s *Service) CompleteSync(device *models.AuthToken, trans models.TransportType, result *models.SyncResult) int64 {
	s.SetStatus(models.StatusIdle)

	if result != nil {
		r := *result
		s.bus.Publish(events.Event{Type: events.EventSyncComplete, Result: &r})

		if s.history != nil && device != nil {
			if err := s.history.Record(device.DeviceID, device.DeviceName, trans, r); err != nil {
				s.logger.WithError(err).Warn("Failed to record sync history")
			}
		}
	}

	return s.now().UnixMilli()
}

// ---- Status ----

// Status returns the current sync status.
func (s *Service) Status() models.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus transitions the status, emitting exactly one notification
// per actual change.
func (s *Service) SetStatus(status models.SyncStatus) {
	s.mu.Lock()
	changed := s.status != status
	s.status = status
	s.mu.Unlock()

	if changed {
		s.bus.Publish(events.Event{Type: events.EventStatusChanged, Status: status})
	}
}

// ReportProgress publishes an in-flight progress notification.
func (s *Service) ReportProgress(progress models.SyncProgress) {
	p := progress
	s.bus.Publish(events.Event{Type: events.EventSyncProgress, Progress: &p})
}
