package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/notesync/notesync/internal/models"
)

// Store is the persisted settings collaborator. The sync core treats it
// as a nested key-value store; the persistence format is this package's
// concern. Every read hits the backing file so that concurrent writers
// (human-paced pairing operations) see fresh state.
type Store interface {
	// Sync returns the persisted sync settings block.
	Sync() models.SyncConfig

	// Set persists a single nested key, e.g. "sync.pairedDevices".
	Set(key string, value interface{}) error
}

// ViperStore persists settings as JSON in the workspace config dir.
type ViperStore struct {
	mu   sync.Mutex
	v    *viper.Viper
	path string
}

// NewViperStore opens (or initializes) the workspace config file.
func NewViperStore(path string) (*ViperStore, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetDefault("sync.enabled", false)
	v.SetDefault("sync.lanPort", DefaultLANPort)
	v.SetDefault("sync.lanEnabled", true)
	v.SetDefault("sync.bleEnabled", false)
	v.SetDefault("sync.conflictStrategy", string(models.StrategyLastWriteWins))
	v.SetDefault("sync.autoSync", false)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	return &ViperStore{v: v, path: path}, nil
}

// Sync re-reads the backing file and returns the sync settings block.
func (s *ViperStore) Sync() models.SyncConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Pick up external edits; a missing file just yields defaults.
	_ = s.v.ReadInConfig()

	var cfg models.SyncConfig
	if err := s.v.UnmarshalKey("sync", &cfg); err != nil {
		return defaultSyncConfig()
	}
	if cfg.LANPort == 0 {
		cfg.LANPort = DefaultLANPort
	}
	if cfg.ConflictStrategy == "" {
		cfg.ConflictStrategy = models.StrategyLastWriteWins
	}
	return cfg
}

// Set persists a single key synchronously. The write goes through a
// scratch instance because viper's own Set installs an override layer
// that would mask later file re-reads of the same key.
func (s *ViperStore) Set(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeKey(key, value)
}

func (s *ViperStore) writeKey(key string, value interface{}) error {
	w := viper.New()
	w.SetConfigFile(s.path)
	w.SetConfigType("json")
	if err := w.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read config %s: %w", s.path, err)
	}

	w.Set(key, value)
	if err := w.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write config %s: %w", s.path, err)
	}

	_ = s.v.ReadInConfig()
	return nil
}

// DeviceID returns the stable device identifier, minting and persisting
// one on first use. Pairings reference this ID, so it must survive
// restarts.
func (s *ViperStore) DeviceID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.v.ReadInConfig()
	if id := s.v.GetString("device.id"); id != "" {
		return id, nil
	}

	id := uuid.NewString()
	if err := s.writeKey("device.id", id); err != nil {
		return "", err
	}
	return id, nil
}

func defaultSyncConfig() models.SyncConfig {
	return models.SyncConfig{
		LANPort:          DefaultLANPort,
		LANEnabled:       true,
		ConflictStrategy: models.StrategyLastWriteWins,
	}
}
