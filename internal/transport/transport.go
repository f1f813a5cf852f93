// Package transport defines the pluggable link contract implemented by
// the LAN and BLE transports.
package transport

import (
	"context"

	"github.com/notesync/notesync/internal/models"
)

// Transport is one link over which a mobile peer can reach this
// workspace. Exactly two implementations exist by design (LAN, BLE);
// zero, one, or both may be active at a time, each started and stopped
// independently.
type Transport interface {
	Type() models.TransportType

	// Start brings the transport up. BLE returns an error wrapping
	// models.ErrBLEUnavailable when no usable radio exists; callers
	// treat that as expected and keep other transports running.
	Start(ctx context.Context) error

	Stop() error

	IsRunning() bool
}
