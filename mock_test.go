package myo

import (
	"context"
	"sync"
	"testing"

	"github.com/iomz/dl-myo/profile"
)

// mockCharacteristic records writes, serves canned read values, and allows
// injecting notifications.
type mockCharacteristic struct {
	mu          sync.Mutex
	serviceUUID string
	uuid        string
	value        []byte
	writes       [][]byte
	writeErr     error
	subscribeErr error
	onWrite      func() // runs before Write returns, under no lock
	callback     func([]byte)
	subscribed   bool
}

func (c *mockCharacteristic) UUID() string        { return c.uuid }
func (c *mockCharacteristic) ServiceUUID() string { return c.serviceUUID }

func (c *mockCharacteristic) Read() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(c.value))
	copy(cp, c.value)
	return cp, nil
}

func (c *mockCharacteristic) Write(data []byte) error {
	c.mu.Lock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	hook := c.onWrite
	err := c.writeErr
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (c *mockCharacteristic) Subscribe(cb func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	c.callback = cb
	c.subscribed = true
	return nil
}

func (c *mockCharacteristic) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = nil
	c.subscribed = false
	return nil
}

// SimulateNotification delivers a notification to the subscriber.
func (c *mockCharacteristic) SimulateNotification(data []byte) {
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	if cb != nil {
		cb(data)
	}
}

func (c *mockCharacteristic) isSubscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}

func (c *mockCharacteristic) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

// mockConnection simulates a connected Myo.
type mockConnection struct {
	mu           sync.Mutex
	chars        []*mockCharacteristic
	charsHook    func() // runs before Characteristics returns, under no lock
	disconnectCb func()
	disconnected bool
}

// newMyoConnection builds a connection exposing the full Myo profile with
// plausible read values, plus one characteristic the registry cannot
// resolve.
func newMyoConnection() *mockConnection {
	conn := &mockConnection{}
	for _, d := range profile.All() {
		conn.chars = append(conn.chars, &mockCharacteristic{serviceUUID: d.Service, uuid: d.UUID})
	}
	// The "unknown" vendor service seen on real hardware.
	conn.chars = append(conn.chars, &mockCharacteristic{
		serviceUUID: "d5060006-a904-deb9-4748-2c7f4a124842",
		uuid:        "d5060602-a904-deb9-4748-2c7f4a124842",
	})
	conn.char("BatteryLevel").value = []byte{85}
	conn.char("FirmwareVersion").value = []byte{0x01, 0x00, 0x05, 0x00, 0xb2, 0x07, 0x02, 0x00}
	conn.char("ManufacturerName").value = []byte("Thalmic Labs")
	return conn
}

// char returns the characteristic for a profile handle name.
func (c *mockConnection) char(name string) *mockCharacteristic {
	d, ok := profile.ResolveName(name)
	if !ok {
		return nil
	}
	for _, ch := range c.chars {
		if ch.uuid == d.UUID {
			return ch
		}
	}
	return nil
}

// removeChar drops a characteristic, simulating partial firmware.
func (c *mockConnection) removeChar(name string) {
	d, _ := profile.ResolveName(name)
	out := c.chars[:0]
	for _, ch := range c.chars {
		if ch.uuid != d.UUID {
			out = append(out, ch)
		}
	}
	c.chars = out
}

func (c *mockConnection) Characteristics() ([]Characteristic, error) {
	c.mu.Lock()
	hook := c.charsHook
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Characteristic, len(c.chars))
	for i, ch := range c.chars {
		out[i] = ch
	}
	return out, nil
}

func (c *mockConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

func (c *mockConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

// SimulateDisconnect reports link loss the way the transport would.
func (c *mockConnection) SimulateDisconnect() {
	c.mu.Lock()
	c.disconnected = true
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// mockAdapter simulates the BLE stack.
type mockAdapter struct {
	device      DeviceInfo
	conn        *mockConnection
	scanErr     error
	connectHook func() // runs inside Connect, simulating a slow dial
}

func newMockAdapter(conn *mockConnection) *mockAdapter {
	return &mockAdapter{
		device: DeviceInfo{Name: "Myo", Address: "DD:31:32:94:85:8E", RSSI: -60},
		conn:   conn,
	}
}

func (a *mockAdapter) Enable() error { return nil }

func (a *mockAdapter) Scan(_ context.Context, _, address string) (DeviceInfo, error) {
	if a.scanErr != nil {
		return DeviceInfo{}, a.scanErr
	}
	if address != "" {
		a.device.Address = address
	}
	return a.device, nil
}

func (a *mockAdapter) Connect(_ context.Context, _ string) (Connection, error) {
	if a.connectHook != nil {
		a.connectHook()
	}
	return a.conn, nil
}

func TestMocksImplementInterfaces(t *testing.T) {
	var _ Adapter = (*mockAdapter)(nil)
	var _ Connection = (*mockConnection)(nil)
	var _ Characteristic = (*mockCharacteristic)(nil)
}
