package myo

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"
)

// BluetoothAdapter implements Adapter on top of tinygo-org/bluetooth. On
// Linux the device address is a MAC; on macOS it is the CoreBluetooth UUID
// assigned to the peripheral.
type BluetoothAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects the connections map.
	mu          sync.Mutex
	connections map[string]*bluetoothConnection // keyed by device address
}

// NewBluetoothAdapter creates an Adapter backed by the platform's default
// BLE adapter.
func NewBluetoothAdapter() *BluetoothAdapter {
	return &BluetoothAdapter{
		adapter:     bluetooth.DefaultAdapter,
		connections: make(map[string]*bluetoothConnection),
	}
}

func (a *BluetoothAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return err
	}

	// The stack reports link loss through this adapter-level handler; route
	// it to the right connection's OnDisconnect callback.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		addr := device.Address.String()
		a.mu.Lock()
		conn, ok := a.connections[addr]
		a.mu.Unlock()
		if ok {
			conn.linkDropped()
		}
	})

	return nil
}

func (a *BluetoothAdapter) Scan(ctx context.Context, serviceUUID, address string) (DeviceInfo, error) {
	var filter bluetooth.UUID
	if address == "" {
		uuid, err := bluetooth.ParseUUID(serviceUUID)
		if err != nil {
			return DeviceInfo{}, fmt.Errorf("myo: parse service UUID: %w", err)
		}
		filter = uuid
	}

	var mu sync.Mutex
	var found DeviceInfo
	var matched bool

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.adapter.StopScan()
		case <-done:
		}
	}()

	err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if address != "" {
			if !strings.EqualFold(result.Address.String(), address) {
				return
			}
		} else if !result.HasServiceUUID(filter) {
			return
		}
		mu.Lock()
		if !matched {
			matched = true
			found = DeviceInfo{
				Name:    result.LocalName(),
				Address: result.Address.String(),
				RSSI:    int(result.RSSI),
			}
			adapter.StopScan()
		}
		mu.Unlock()
	})
	close(done)

	if err != nil && ctx.Err() == nil {
		return DeviceInfo{}, fmt.Errorf("myo: scan: %w", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !matched {
		if ctx.Err() != nil {
			return DeviceInfo{}, fmt.Errorf("myo: scan: %w", ctx.Err())
		}
		return DeviceInfo{}, fmt.Errorf("myo: scan: no matching device")
	}
	return found, nil
}

func (a *BluetoothAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	var addr bluetooth.Address
	addr.Set(address)

	// The stack's Connect blocks with its own timeout; wrap it so ctx
	// cancellation returns promptly even though the dial cannot be aborted.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("myo: connect to %s: %w", address, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("myo: connect to %s: %w", address, result.err)
		}
		conn := &bluetoothConnection{device: &result.device}

		a.mu.Lock()
		a.connections[address] = conn
		a.mu.Unlock()

		return conn, nil
	}
}

// Compile-time check that BluetoothAdapter implements Adapter.
var _ Adapter = (*BluetoothAdapter)(nil)

type bluetoothConnection struct {
	device *bluetooth.Device

	// mu guards the callback against the BLE stack's goroutine.
	mu           sync.Mutex
	disconnectCb func()
	dropped      bool
}

// linkDropped runs the disconnect callback, or arranges for it to fire on
// registration when the link dies before OnDisconnect is called.
func (c *bluetoothConnection) linkDropped() {
	c.mu.Lock()
	c.dropped = true
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (c *bluetoothConnection) Characteristics() ([]Characteristic, error) {
	svcs, err := c.device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("myo: discover services: %w", err)
	}
	var chars []Characteristic
	for _, svc := range svcs {
		svcUUID := svc.UUID().String()
		cs, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("myo: discover characteristics of %s: %w", svcUUID, err)
		}
		for i := range cs {
			chars = append(chars, &bluetoothCharacteristic{
				char:        &cs[i],
				serviceUUID: svcUUID,
			})
		}
	}
	return chars, nil
}

func (c *bluetoothConnection) Disconnect() error {
	return c.device.Disconnect()
}

func (c *bluetoothConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	dropped := c.dropped
	c.disconnectCb = cb
	c.mu.Unlock()
	if dropped {
		cb()
	}
}

type bluetoothCharacteristic struct {
	char        *bluetooth.DeviceCharacteristic
	serviceUUID string
}

func (c *bluetoothCharacteristic) UUID() string {
	return c.char.UUID().String()
}

func (c *bluetoothCharacteristic) ServiceUUID() string {
	return c.serviceUUID
}

func (c *bluetoothCharacteristic) Read() ([]byte, error) {
	buf := make([]byte, 64)
	n, err := c.char.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (c *bluetoothCharacteristic) Write(data []byte) error {
	_, err := c.char.WriteWithoutResponse(data)
	return err
}

func (c *bluetoothCharacteristic) Subscribe(cb func(data []byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		cb(buf)
	})
}

func (c *bluetoothCharacteristic) Unsubscribe() error {
	return c.char.EnableNotifications(nil)
}
