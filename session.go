package myo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/iomz/dl-myo/profile"
	"github.com/iomz/dl-myo/wire"
)

// State is the session lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateResolving
	StateReady
	StateStreaming
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateResolving:
		return "resolving"
	case StateReady:
		return "ready"
	case StateStreaming:
		return "streaming"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrInvalidState reports an operation attempted outside its valid
	// session state. The caller must re-sequence calls; nothing is queued.
	ErrInvalidState = errors.New("myo: invalid session state")
	// ErrDisconnected reports that the link dropped, either before or during
	// the failed operation.
	ErrDisconnected = errors.New("myo: disconnected")
	// ErrUnavailable reports a characteristic the connected firmware does
	// not expose. The operation fails rather than silently no-op.
	ErrUnavailable = errors.New("myo: characteristic unavailable")
)

// Options configures a Session.
type Options struct {
	// Address pins the session to an explicit device address. Empty means
	// "first device advertising the Myo service".
	Address string
	// EventBuffer bounds the event stream. When full, the oldest event is
	// dropped; stale samples are worth less than current ones.
	EventBuffer int
	// Scales are the IMU fixed-point divisors; zero fields use the stock
	// firmware constants.
	Scales wire.Scales
	// Logger receives session diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		EventBuffer: 256,
		Scales:      wire.DefaultScales(),
	}
}

type resolvedChar struct {
	desc profile.Descriptor
	char Characteristic
}

// Session is one logical connection to a single physical armband. A session
// is not reusable: once disconnected or faulted, create a new one to
// reconnect. Sessions for different devices are fully independent.
type Session struct {
	adapter Adapter
	opts    Options
	dec     *wire.Decoder
	log     *slog.Logger

	mu       sync.Mutex
	state    State
	conn     Connection
	device   DeviceInfo
	resolved map[string]resolvedChar // keyed by descriptor name
	subs     map[string]bool
	modes    wire.SetMode
	closed   bool
	closeErr error

	// writeMu serializes command writes: the Myo cannot pipeline commands,
	// so concurrent callers queue behind the one in flight.
	writeMu sync.Mutex

	evMu         sync.Mutex
	events       chan wire.Event
	streamClosed bool

	done chan struct{}
}

// NewSession creates a session using the given transport adapter.
func NewSession(adapter Adapter, opts Options) *Session {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		adapter: adapter,
		opts:    opts,
		dec:     wire.NewDecoder(opts.Scales),
		log:     log,
		subs:    make(map[string]bool),
		events:  make(chan wire.Event, opts.EventBuffer),
		done:    make(chan struct{}),
	}
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Device returns the connected device's discovery info.
func (s *Session) Device() DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// Modes returns the currently configured streaming modes.
func (s *Session) Modes() wire.SetMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modes
}

// Events returns the decoded notification stream. The channel is closed on
// disconnect; a single malformed payload never closes it.
func (s *Session) Events() <-chan wire.Event { return s.events }

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the session ended: nil while active or after a
// caller-initiated disconnect, ErrDisconnected when the transport dropped
// the link.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

// ResolvedHandles returns the handle descriptors actually present on the
// connected device, sorted by name.
func (s *Session) ResolvedHandles() []profile.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]profile.Descriptor, 0, len(s.resolved))
	for _, rc := range s.resolved {
		out = append(out, rc.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Connect scans for the device, connects, and resolves its characteristics
// against the profile. A device missing the Command characteristic faults
// the session; missing data characteristics are tolerated and simply
// unavailable later.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: session is closed", ErrInvalidState)
	}
	if s.state != StateDisconnected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: connect while %s", ErrInvalidState, state)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	fail := func(err error) error {
		s.mu.Lock()
		// A concurrent Disconnect already settled the terminal state.
		if !s.closed {
			s.state = StateDisconnected
		}
		s.mu.Unlock()
		return err
	}

	if err := s.adapter.Enable(); err != nil {
		return fail(fmt.Errorf("myo: enable adapter: %w", err))
	}

	dev, err := s.adapter.Scan(ctx, profile.MyoServiceUUID, s.opts.Address)
	if err != nil {
		return fail(fmt.Errorf("myo: scan: %w", err))
	}
	s.log.Debug("found device", "name", dev.Name, "address", dev.Address, "rssi", dev.RSSI)

	conn, err := s.adapter.Connect(ctx, dev.Address)
	if err != nil {
		return fail(fmt.Errorf("myo: connect: %w", err))
	}

	// Register before discovery: a link drop during resolution must not be
	// missed.
	conn.OnDisconnect(func() {
		s.teardown(StateDisconnected, ErrDisconnected)
	})

	s.mu.Lock()
	if s.closed {
		// Disconnect landed while the dial was in flight; the late
		// connection is ours to drop.
		s.mu.Unlock()
		if err := conn.Disconnect(); err != nil {
			s.log.Debug("transport disconnect", "error", err)
		}
		return fmt.Errorf("%w: session closed during connect", ErrDisconnected)
	}
	s.conn = conn
	s.device = dev
	s.state = StateResolving
	s.mu.Unlock()

	chars, err := conn.Characteristics()
	if err != nil {
		s.fault()
		return fmt.Errorf("myo: resolve: %w", err)
	}
	resolved := make(map[string]resolvedChar)
	for _, ch := range chars {
		desc, ok := profile.Resolve(ch.ServiceUUID(), ch.UUID())
		if !ok {
			// Unknown characteristics are expected on partial firmware.
			s.log.Debug("unknown characteristic", "service", ch.ServiceUUID(), "uuid", ch.UUID())
			continue
		}
		resolved[desc.Name] = resolvedChar{desc: desc, char: ch}
	}
	for _, d := range profile.All() {
		if d.Required {
			if _, ok := resolved[d.Name]; !ok {
				s.fault()
				return fmt.Errorf("myo: required characteristic %s not present", d.Name)
			}
		}
	}

	s.mu.Lock()
	if s.closed {
		// Teardown already dropped the connection.
		s.mu.Unlock()
		return fmt.Errorf("%w: session closed during connect", ErrDisconnected)
	}
	s.resolved = resolved
	s.state = StateReady
	s.mu.Unlock()

	s.log.Info("connected", "name", dev.Name, "address", dev.Address, "characteristics", len(resolved))
	return nil
}

// Disconnect closes the session. The event stream closes without error and
// any queued command write fails with ErrDisconnected.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.closed || s.state == StateDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("%w: not connected", ErrInvalidState)
	}
	s.mu.Unlock()
	s.teardown(StateDisconnected, nil)
	return nil
}

// fault moves the session to the terminal Faulted state.
func (s *Session) fault() {
	s.teardown(StateFaulted, ErrDisconnected)
}

// teardown is the single exit path: it runs once, drops the transport
// connection, and closes the event stream.
func (s *Session) teardown(to State, reason error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeErr = reason
	conn := s.conn
	s.conn = nil
	s.resolved = nil
	s.subs = nil
	s.state = to
	name := s.device.Name
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			s.log.Debug("transport disconnect", "error", err)
		}
	}
	close(s.done)

	s.evMu.Lock()
	s.streamClosed = true
	close(s.events)
	s.evMu.Unlock()

	if reason == nil {
		s.log.Info("disconnected by caller", "name", name)
	} else {
		s.log.Warn("connection closed", "name", name, "reason", reason, "state", to.String())
	}
}

// pushEvent delivers an event to the stream, dropping the oldest buffered
// event when the consumer lags.
func (s *Session) pushEvent(ev wire.Event) {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	if s.streamClosed {
		return
	}
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case <-s.events:
		default:
		}
	}
}

func (s *Session) notifyHandler(desc profile.Descriptor) func([]byte) {
	return func(data []byte) {
		ev, err := s.dec.Decode(desc.Payload, data)
		if err != nil {
			// Diagnostic only; one bad payload never ends the stream.
			s.log.Warn("dropping malformed notification", "characteristic", desc.Name, "len", len(data), "error", err)
			return
		}
		s.pushEvent(ev)
	}
}

// lookup returns the resolved characteristic by name, verifying session
// state and the required capability.
func (s *Session) lookup(name string, need profile.Capability) (resolvedChar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady && s.state != StateStreaming {
		return resolvedChar{}, fmt.Errorf("%w: %s while %s", ErrInvalidState, name, s.state)
	}
	rc, ok := s.resolved[name]
	if !ok {
		return resolvedChar{}, fmt.Errorf("%w: %s", ErrUnavailable, name)
	}
	if !rc.desc.Caps.Has(need) {
		return resolvedChar{}, fmt.Errorf("%w: %s does not support the operation", ErrUnavailable, name)
	}
	return rc, nil
}

// command encodes and writes one command. Writes queue behind writeMu in
// FIFO wakeup order; at most one is in flight per session.
func (s *Session) command(cmd wire.Command) error {
	data, err := wire.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	rc, err := s.lookup("Command", profile.Write)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	select {
	case <-s.done:
		return ErrDisconnected
	default:
	}
	if err := rc.char.Write(data); err != nil {
		select {
		case <-s.done:
			return fmt.Errorf("%w: %v", ErrDisconnected, err)
		default:
		}
		return fmt.Errorf("myo: write command: %w", err)
	}
	return nil
}

// subscriptionsFor lists the notify characteristics implied by the modes.
func subscriptionsFor(m wire.SetMode) []string {
	var names []string
	switch m.EMG {
	case wire.EMGModeSendEMG, wire.EMGModeSendRaw:
		names = append(names, "EmgData0", "EmgData1", "EmgData2", "EmgData3")
	case wire.EMGModeSendFilt:
		names = append(names, "FVData")
	}
	switch m.IMU {
	case wire.IMUModeSendData, wire.IMUModeSendAll, wire.IMUModeSendRaw:
		names = append(names, "IMUData")
	}
	switch m.IMU {
	case wire.IMUModeSendEvents, wire.IMUModeSendAll:
		names = append(names, "MotionEvent")
	}
	if m.Classifier == wire.ClassifierModeEnabled {
		names = append(names, "ClassifierEvent")
	}
	return names
}

// SetMode configures the streaming modes, writes the command, and adjusts
// notification subscriptions to match. All modes off returns the session to
// Ready. Re-sending the active modes re-writes the command but leaves
// subscriptions untouched.
func (s *Session) SetMode(m wire.SetMode) error {
	want := subscriptionsFor(m)

	// Every characteristic a requested mode streams through must be present;
	// failing beats silently never delivering data.
	for _, name := range want {
		rc, err := s.lookup(name, 0)
		if err != nil {
			return err
		}
		if !rc.desc.Notifiable() {
			return fmt.Errorf("%w: %s is not notifiable", ErrUnavailable, name)
		}
	}

	if err := s.command(m); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrDisconnected
	}
	wanted := make(map[string]bool, len(want)+1)
	for _, name := range want {
		wanted[name] = true
	}
	// Battery notifications ride along whenever streaming; best effort.
	if len(want) > 0 {
		if _, ok := s.resolved["BatteryLevel"]; ok {
			wanted["BatteryLevel"] = true
		}
	}
	var add, remove []resolvedChar
	for name := range wanted {
		if !s.subs[name] {
			add = append(add, s.resolved[name])
		}
	}
	for name := range s.subs {
		if !wanted[name] {
			remove = append(remove, s.resolved[name])
			delete(s.subs, name)
		}
	}
	s.modes = m
	if len(wanted) > 0 {
		s.state = StateStreaming
	} else {
		s.state = StateReady
	}
	s.mu.Unlock()

	for _, rc := range add {
		if err := rc.char.Subscribe(s.notifyHandler(rc.desc)); err != nil {
			return fmt.Errorf("myo: subscribe %s: %w", rc.desc.Name, err)
		}
		// Recorded only on success so a retry revisits failed characteristics.
		s.mu.Lock()
		if s.subs != nil {
			s.subs[rc.desc.Name] = true
		}
		s.mu.Unlock()
	}
	for _, rc := range remove {
		if err := rc.char.Unsubscribe(); err != nil {
			s.log.Warn("unsubscribe failed", "characteristic", rc.desc.Name, "error", err)
		}
	}
	return nil
}

// Vibrate triggers a canned vibration pattern.
func (s *Session) Vibrate(t wire.VibrationType) error {
	return s.command(wire.Vibrate{Type: t})
}

// Vibrate2 plays a custom vibration pattern of up to 7 steps.
func (s *Session) Vibrate2(steps ...wire.VibrationStep) error {
	return s.command(wire.Vibrate2{Steps: steps})
}

// SetLED sets the logo and band LED colors.
func (s *Session) SetLED(logo, line wire.RGB) error {
	return s.command(wire.LED{Logo: logo, Line: line})
}

// DeepSleep puts the device into its lowest-power state; the link drops
// shortly after.
func (s *Session) DeepSleep() error {
	return s.command(wire.DeepSleep{})
}

// SetSleepMode controls whether the device sleeps when idle.
func (s *Session) SetSleepMode(m wire.SleepMode) error {
	return s.command(wire.SetSleepMode{Mode: m})
}

// Unlock changes the classifier lockout state.
func (s *Session) Unlock(t wire.UnlockType) error {
	return s.command(wire.Unlock{Type: t})
}

// UserAction notifies the device of a recognized user action.
func (s *Session) UserAction() error {
	return s.command(wire.UserAction{Type: wire.UserActionSingle})
}

// ReadBattery reads the remaining battery percentage.
func (s *Session) ReadBattery() (uint8, error) {
	rc, err := s.lookup("BatteryLevel", profile.Read)
	if err != nil {
		return 0, err
	}
	data, err := rc.char.Read()
	if err != nil {
		return 0, fmt.Errorf("myo: read battery: %w", err)
	}
	b, err := wire.DecodeBatteryLevel(data)
	if err != nil {
		return 0, err
	}
	return b.Percent, nil
}

// ReadFirmwareVersion reads the device firmware version.
func (s *Session) ReadFirmwareVersion() (wire.FirmwareVersion, error) {
	rc, err := s.lookup("FirmwareVersion", profile.Read)
	if err != nil {
		return wire.FirmwareVersion{}, err
	}
	data, err := rc.char.Read()
	if err != nil {
		return wire.FirmwareVersion{}, fmt.Errorf("myo: read firmware version: %w", err)
	}
	return wire.DecodeFirmwareVersion(data)
}

// ReadFirmwareInfo reads the device's static self-description.
func (s *Session) ReadFirmwareInfo() (wire.FirmwareInfo, error) {
	rc, err := s.lookup("FirmwareInfo", profile.Read)
	if err != nil {
		return wire.FirmwareInfo{}, err
	}
	data, err := rc.char.Read()
	if err != nil {
		return wire.FirmwareInfo{}, fmt.Errorf("myo: read firmware info: %w", err)
	}
	return wire.DecodeFirmwareInfo(data)
}

// ReadManufacturerName reads the manufacturer name string.
func (s *Session) ReadManufacturerName() (string, error) {
	rc, err := s.lookup("ManufacturerName", profile.Read)
	if err != nil {
		return "", err
	}
	data, err := rc.char.Read()
	if err != nil {
		return "", fmt.Errorf("myo: read manufacturer name: %w", err)
	}
	return string(data), nil
}

// Warmup disables idle sleep and runs the LED/vibration greeting sequence
// the stock connect flow uses.
func (s *Session) Warmup() error {
	if err := s.SetSleepMode(wire.SleepModeNeverSleep); err != nil {
		return err
	}
	colors := []wire.RGB{
		{R: 255},
		{G: 255},
		{B: 255},
		{R: 255, G: 255, B: 255},
	}
	for _, c := range colors {
		if err := s.SetLED(c, c); err != nil {
			return err
		}
		time.Sleep(250 * time.Millisecond)
	}
	return s.Vibrate(wire.VibrationShort)
}
