package ble

import "context"

// GATT identifiers for the sync service. The control characteristic
// carries JSON protocol messages, the data characteristic carries
// framed payload transfers, and the device-info characteristic is a
// readable unauthenticated handshake blob.
const (
	ServiceUUID        = "13370001-4e53-594e-4331-000000000001"
	ControlCharUUID    = "13370002-4e53-594e-4331-000000000001"
	DataCharUUID       = "13370003-4e53-594e-4331-000000000001"
	DeviceInfoCharUUID = "13370004-4e53-594e-4331-000000000001"
)

// ServiceConfig wires the peripheral's characteristics to protocol
// callbacks. Callbacks run on the radio's event goroutine; handlers
// must not block on it.
type ServiceConfig struct {
	// LocalName is the advertised device name.
	LocalName string

	// DeviceInfo is served as the read value of the device-info
	// characteristic.
	DeviceInfo []byte

	// OnConnect fires when a central connects or disconnects.
	OnConnect func(addr string, connected bool)

	// OnControlWrite fires per write to the control characteristic.
	OnControlWrite func(data []byte)

	// OnDataWrite fires per write to the data characteristic.
	OnDataWrite func(data []byte)

	// OnMTU fires when the negotiated MTU changes, on radios that
	// report it.
	OnMTU func(mtu int)
}

// Peripheral abstracts the BLE radio so the protocol logic stays
// testable without hardware.
type Peripheral interface {
	// Enable powers the adapter up. Implementations honor the context
	// deadline; a missing or blocked adapter must not hang the caller.
	Enable(ctx context.Context) error

	// Advertise registers the GATT service and starts advertising.
	Advertise(cfg ServiceConfig) error

	// NotifyControl pushes a control-characteristic notification.
	NotifyControl(data []byte) error

	// NotifyData pushes a data-characteristic notification.
	NotifyData(data []byte) error

	// Stop ends advertising and releases the service.
	Stop() error
}
