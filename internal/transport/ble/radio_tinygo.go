package ble

import (
	"context"
	"fmt"

	"tinygo.org/x/bluetooth"
)

// hardwareRadio is the Peripheral backed by the host Bluetooth adapter.
type hardwareRadio struct {
	adapter *bluetooth.Adapter
	adv     *bluetooth.Advertisement

	controlChar bluetooth.Characteristic
	dataChar    bluetooth.Characteristic
}

// NewRadio returns the default host adapter wrapped as a Peripheral.
func NewRadio() Peripheral {
	return &hardwareRadio{adapter: bluetooth.DefaultAdapter}
}

// Enable powers the adapter up, bounded by the context. The underlying
// stack can block indefinitely when Bluetooth is off, so enabling runs
// on its own goroutine.
func (r *hardwareRadio) Enable(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- r.adapter.Enable() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("enable adapter: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enable adapter: %w", ctx.Err())
	}
}

func (r *hardwareRadio) Advertise(cfg ServiceConfig) error {
	serviceUUID, err := bluetooth.ParseUUID(ServiceUUID)
	if err != nil {
		return fmt.Errorf("parse service UUID: %w", err)
	}
	controlUUID, err := bluetooth.ParseUUID(ControlCharUUID)
	if err != nil {
		return fmt.Errorf("parse control UUID: %w", err)
	}
	dataUUID, err := bluetooth.ParseUUID(DataCharUUID)
	if err != nil {
		return fmt.Errorf("parse data UUID: %w", err)
	}
	infoUUID, err := bluetooth.ParseUUID(DeviceInfoCharUUID)
	if err != nil {
		return fmt.Errorf("parse device-info UUID: %w", err)
	}

	if cfg.OnConnect != nil {
		r.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
			cfg.OnConnect(device.Address.String(), connected)
		})
	}

	// The host stack does not report the negotiated ATT MTU to
	// peripherals, so cfg.OnMTU never fires on this radio and the
	// session keeps its default chunk size.
	service := bluetooth.Service{
		UUID: serviceUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &r.controlChar,
				UUID:   controlUUID,
				Flags: bluetooth.CharacteristicWritePermission |
					bluetooth.CharacteristicNotifyPermission,
				WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
					if cfg.OnControlWrite != nil {
						cfg.OnControlWrite(value)
					}
				},
			},
			{
				Handle: &r.dataChar,
				UUID:   dataUUID,
				Flags: bluetooth.CharacteristicWritePermission |
					bluetooth.CharacteristicNotifyPermission,
				WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
					if cfg.OnDataWrite != nil {
						cfg.OnDataWrite(value)
					}
				},
			},
			{
				UUID:  infoUUID,
				Value: cfg.DeviceInfo,
				Flags: bluetooth.CharacteristicReadPermission,
			},
		},
	}
	if err := r.adapter.AddService(&service); err != nil {
		return fmt.Errorf("add GATT service: %w", err)
	}

	r.adv = r.adapter.DefaultAdvertisement()
	if err := r.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    cfg.LocalName,
		ServiceUUIDs: []bluetooth.UUID{serviceUUID},
	}); err != nil {
		return fmt.Errorf("configure advertisement: %w", err)
	}
	if err := r.adv.Start(); err != nil {
		return fmt.Errorf("start advertising: %w", err)
	}

	return nil
}

func (r *hardwareRadio) NotifyControl(data []byte) error {
	_, err := r.controlChar.Write(data)
	return err
}

func (r *hardwareRadio) NotifyData(data []byte) error {
	_, err := r.dataChar.Write(data)
	return err
}

func (r *hardwareRadio) Stop() error {
	if r.adv == nil {
		return nil
	}
	return r.adv.Stop()
}
