// Package client assembles the sync subsystem: stores, orchestrator,
// and transports, wired from configuration.
package client

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/notesync/notesync/internal/config"
	"github.com/notesync/notesync/internal/events"
	"github.com/notesync/notesync/internal/models"
	"github.com/notesync/notesync/internal/services/pairing"
	syncsvc "github.com/notesync/notesync/internal/services/sync"
	"github.com/notesync/notesync/internal/state"
	"github.com/notesync/notesync/internal/store"
	"github.com/notesync/notesync/internal/transport/ble"
	"github.com/notesync/notesync/internal/transport/lan"
)

// Client is the top-level facade used by the CLI.
type Client struct {
	cfg     *config.Config
	logger  *events.Logger
	bus     *events.Bus
	store   *config.ViperStore
	notes   *store.LocalStore
	history *state.HistoryStore
	sync    *syncsvc.Service
	lan     *lan.Server
}

// New builds the full subsystem from config. Transports register
// according to the persisted sync toggles.
func New(cfg *config.Config, logger *events.Logger) (*Client, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	cfgStore, err := config.NewViperStore(filepath.Join(cfg.ConfigDir(), config.ConfigFileName))
	if err != nil {
		return nil, err
	}

	deviceID, err := cfgStore.DeviceID()
	if err != nil {
		return nil, err
	}

	notes, err := store.NewLocalStore(cfg.Workspace, logger)
	if err != nil {
		return nil, fmt.Errorf("open note store: %w", err)
	}

	history, err := state.NewHistoryStore(filepath.Join(cfg.ConfigDir(), config.HistoryDBName), logger)
	if err != nil {
		notes.Close()
		return nil, err
	}

	bus := events.NewBus()
	pairingSvc := pairing.NewService(deviceID, logger)
	syncService := syncsvc.NewService(
		deviceID, cfg.DeviceName, cfg.AppVersion,
		notes, cfgStore, pairingSvc, history, bus, logger,
	)

	c := &Client{
		cfg:     cfg,
		logger:  logger.WithField("component", "client"),
		bus:     bus,
		store:   cfgStore,
		notes:   notes,
		history: history,
		sync:    syncService,
	}

	settings := cfgStore.Sync()
	if settings.LANEnabled {
		c.lan = lan.NewServer(syncService, cfgStore, logger)
		syncService.RegisterTransport(c.lan)
	}
	if settings.BLEEnabled {
		syncService.RegisterTransport(ble.NewTransport(syncService, ble.NewRadio(), logger))
	}

	return c, nil
}

// Sync exposes the orchestrator.
func (c *Client) Sync() *syncsvc.Service {
	return c.sync
}

// Events exposes the notification bus.
func (c *Client) Events() *events.Bus {
	return c.bus
}

// Start brings all registered transports up.
func (c *Client) Start(ctx context.Context) {
	c.sync.StartSync(ctx)
}

// Close stops transports and releases stores.
func (c *Client) Close() error {
	c.sync.StopSync()
	c.bus.Close()

	var firstErr error
	if err := c.notes.Close(); err != nil {
		firstErr = err
	}
	if err := c.history.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// GeneratePairing mints a pairing challenge addressed at this machine's
// LAN endpoint.
func (c *Client) GeneratePairing() (models.PairingInfo, error) {
	port := c.store.Sync().LANPort
	if c.lan != nil && c.lan.IsRunning() {
		port = c.lan.Port()
	}
	return c.sync.GeneratePairing(lan.LocalIP(), port, config.SyncServiceName)
}

// PairedDevices returns the persisted paired-device list.
func (c *Client) PairedDevices() []models.AuthToken {
	return c.sync.PairedDevices()
}

// RevokePairing removes a device's credentials and drops its sessions.
func (c *Client) RevokePairing(deviceID string) error {
	return c.sync.RevokePairing(deviceID)
}

// ConnectedDevices returns the live connection registry.
func (c *Client) ConnectedDevices() []models.SyncDevice {
	return c.sync.ConnectedDevices()
}

// BuildManifest fingerprints the workspace.
func (c *Client) BuildManifest() (models.NoteManifest, error) {
	return c.sync.BuildManifest()
}

// Status returns the orchestrator status.
func (c *Client) Status() models.SyncStatus {
	return c.sync.Status()
}

// History returns recent sync rounds, newest first.
func (c *Client) History(limit int) ([]state.HistoryEntry, error) {
	return c.history.Recent(limit)
}
