// Package myo drives a Myo gesture armband over BLE GATT without the vendor
// dongle. It resolves the device's vendor-specific characteristics against
// the static profile, speaks the proprietary command protocol, and decodes
// the notification streams into typed events.
package myo

import "context"

// DeviceInfo describes a discovered BLE peripheral.
type DeviceInfo struct {
	Name    string
	Address string
	RSSI    int
}

// Characteristic is one GATT characteristic exposed by a connected device.
type Characteristic interface {
	// UUID returns the characteristic UUID.
	UUID() string
	// ServiceUUID returns the UUID of the enclosing service.
	ServiceUUID() string
	// Read reads the characteristic value.
	Read() ([]byte, error)
	// Write sends data to the characteristic.
	Write(data []byte) error
	// Subscribe registers a callback for notifications or indications.
	Subscribe(callback func(data []byte)) error
	// Unsubscribe stops notifications registered by Subscribe.
	Unsubscribe() error
}

// Connection is an active BLE connection to a peripheral.
type Connection interface {
	// Characteristics enumerates every characteristic the device exposes.
	Characteristics() ([]Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the link drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE stack for the session and for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan returns the first peripheral matching the filter: the device at
	// address when address is non-empty, otherwise the first device
	// advertising serviceUUID. Blocks until a match or ctx is done.
	Scan(ctx context.Context, serviceUUID, address string) (DeviceInfo, error)
	// Connect establishes a connection to the device at the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
