package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Workspace layout constants. The hidden config directory lives inside
// the workspace and is excluded from manifests.
const (
	ConfigDirName    = ".notesync"
	ConfigFileName   = "config.json"
	ConflictsDirName = "sync-conflicts"
	TrashDirName     = "trash"
	HistoryDBName    = "history.db"

	DefaultLANPort  = 18923
	SyncServiceName = "_notesync._tcp"
)

// Config holds process-level configuration. Persisted sync settings
// (paired devices, transport toggles) live in the workspace config store
// instead; see Store.
type Config struct {
	// Workspace is the note workspace root directory.
	Workspace string `json:"workspace"`

	// DeviceName is the human-readable name advertised to peers.
	DeviceName string `json:"device_name"`

	// AppVersion is reported in the discovery handshake.
	AppVersion string `json:"app_version"`

	// Log controls logging behavior.
	Log LogConfig `json:"log"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Format     string `json:"format"`      // text, json
	File       string `json:"file"`        // Log file path (empty = stdout)
	MaxSize    int    `json:"max_size"`    // Max log file size in MB
	MaxBackups int    `json:"max_backups"` // Max number of old logs
	MaxAge     int    `json:"max_age"`     // Max age in days
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "desktop"
	}

	return &Config{
		Workspace:  ".",
		DeviceName: hostname,
		AppVersion: "0.1.0",
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Workspace == "" {
		return errors.New("workspace is required")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// ConfigDir returns the workspace's hidden config directory.
func (c *Config) ConfigDir() string {
	return filepath.Join(c.Workspace, ConfigDirName)
}

// ConflictsDir returns the conflict-backup directory.
func (c *Config) ConflictsDir() string {
	return filepath.Join(c.ConfigDir(), ConflictsDirName)
}

// TrashDir returns the soft-delete directory.
func (c *Config) TrashDir() string {
	return filepath.Join(c.ConfigDir(), TrashDirName)
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.ConfigDir(),
		c.ConflictsDir(),
		c.TrashDir(),
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
