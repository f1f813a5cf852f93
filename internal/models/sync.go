package models

import "time"

// SyncStatus is the orchestrator's externally visible state.
type SyncStatus string

const (
	StatusIdle        SyncStatus = "idle"
	StatusDiscovering SyncStatus = "discovering"
	StatusConnecting  SyncStatus = "connecting"
	StatusSyncing     SyncStatus = "syncing"
	StatusError       SyncStatus = "error"
)

// TransportType identifies one of the two supported links.
type TransportType string

const (
	TransportLAN TransportType = "lan"
	TransportBLE TransportType = "ble"
)

// DeviceType distinguishes the two peer roles.
type DeviceType string

const (
	DeviceMobile  DeviceType = "mobile"
	DeviceDesktop DeviceType = "desktop"
)

// SyncDevice is the ephemeral record of a currently connected peer.
// It is rebuilt each session and never persisted.
type SyncDevice struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Type        DeviceType    `json:"type"`
	Transport   TransportType `json:"transport"`
	LastSeen    int64         `json:"lastSeen"`
	IsPaired    bool          `json:"isPaired"`
	IsConnected bool          `json:"isConnected"`
}

// PairingInfo is a short-lived, single-use pairing challenge.
type PairingInfo struct {
	PIN       string `json:"pin"`
	QRPayload string `json:"qrPayload"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Expired reports whether the challenge is past its TTL.
func (p *PairingInfo) Expired(now time.Time) bool {
	return now.UnixMilli() > p.ExpiresAt
}

// QRPayload is the connection descriptor embedded in the pairing QR code.
type QRPayload struct {
	DeviceID    string `json:"deviceId"`
	PIN         string `json:"pin"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	ServiceName string `json:"serviceName"`
}

// AuthToken is a long-lived bearer credential minted at pairing time.
// The secret must never appear in logs.
type AuthToken struct {
	Token      string `json:"token" mapstructure:"token"`
	DeviceID   string `json:"deviceId" mapstructure:"deviceId"`
	DeviceName string `json:"deviceName" mapstructure:"deviceName"`
	CreatedAt  int64  `json:"createdAt" mapstructure:"createdAt"`
	LastUsed   int64  `json:"lastUsed" mapstructure:"lastUsed"`
}

// ConflictStrategy is the configured default for delta conflicts.
type ConflictStrategy string

const (
	StrategyLastWriteWins ConflictStrategy = "last-write-wins"
	StrategyKeepBoth      ConflictStrategy = "keep-both"
	StrategyAsk           ConflictStrategy = "ask"
)

// SyncConfig is the persisted sync settings block, owned by the config
// store collaborator.
type SyncConfig struct {
	Enabled          bool             `json:"enabled" mapstructure:"enabled"`
	LANPort          int              `json:"lanPort" mapstructure:"lanPort"`
	LANEnabled       bool             `json:"lanEnabled" mapstructure:"lanEnabled"`
	BLEEnabled       bool             `json:"bleEnabled" mapstructure:"bleEnabled"`
	ConflictStrategy ConflictStrategy `json:"conflictStrategy" mapstructure:"conflictStrategy"`
	AutoSync         bool             `json:"autoSync" mapstructure:"autoSync"`
	PairedDevices    []AuthToken      `json:"pairedDevices" mapstructure:"pairedDevices"`
}

// SyncResult summarizes one completed sync round, reported by the client.
type SyncResult struct {
	Success       bool     `json:"success"`
	SentCount     int      `json:"sentCount"`
	ReceivedCount int      `json:"receivedCount"`
	ConflictCount int      `json:"conflictCount"`
	Errors        []string `json:"errors,omitempty"`
	DurationMS    int64    `json:"duration"`
}

// SyncProgress is emitted while a round is in flight.
type SyncProgress struct {
	Phase       string `json:"phase"` // manifest, transfer, apply, complete, error
	Current     int    `json:"current"`
	Total       int    `json:"total"`
	CurrentFile string `json:"currentFile,omitempty"`
}

// DeviceInfo is the unauthenticated handshake blob, served by the LAN
// /status endpoint and the BLE device-info characteristic.
type DeviceInfo struct {
	DeviceID        string `json:"deviceId"`
	DeviceName      string `json:"deviceName"`
	AppVersion      string `json:"appVersion"`
	SyncEnabled     bool   `json:"syncEnabled"`
	RequiresPairing bool   `json:"requiresPairing"`
	WorkspaceName   string `json:"workspaceName"`
}

// NoteChange is a filesystem change observed by the note store watcher.
type NoteChange struct {
	Path string     `json:"path"`
	Kind ChangeKind `json:"kind"`
}

// ChangeKind is the kind of watched filesystem change.
type ChangeKind string

const (
	ChangeAdd    ChangeKind = "add"
	ChangeUpdate ChangeKind = "change"
	ChangeRemove ChangeKind = "remove"
)
