package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/iomz/dl-myo/profile"
)

// ErrLengthMismatch reports a notification payload whose length does not
// match the fixed length of its payload kind. Nothing is partially decoded.
var ErrLengthMismatch = errors.New("wire: payload length mismatch")

// ErrUnknownPayload reports a payload kind the decoder has no layout for.
var ErrUnknownPayload = errors.New("wire: unknown payload kind")

// Fixed payload lengths per kind.
const (
	emgDataLen         = 16
	imuDataLen         = 20
	classifierEventLen = 3
	motionEventLen     = 3
	fvDataLen          = 16
	batteryLevelLen    = 1
	firmwareVersionLen = 8
	firmwareInfoLen    = 20
)

// Fixed-point scale divisors declared by the stock firmware (myohw.h). The
// decoder takes them as configuration because firmware revisions may declare
// different fixed-point formats.
const (
	DefaultOrientationScale   = 16384.0
	DefaultAccelerometerScale = 2048.0
	DefaultGyroscopeScale     = 16.0
)

// Scales holds the fixed-point divisors used to convert raw IMU integers to
// physical units.
type Scales struct {
	Orientation   float64
	Accelerometer float64
	Gyroscope     float64
}

// DefaultScales returns the scale constants of the stock firmware.
func DefaultScales() Scales {
	return Scales{
		Orientation:   DefaultOrientationScale,
		Accelerometer: DefaultAccelerometerScale,
		Gyroscope:     DefaultGyroscopeScale,
	}
}

// Event is one decoded inbound payload. Kind names the payload kind for
// logging and serialization.
type Event interface {
	Kind() string
}

// EMGData is one raw EMG notification: two consecutive samples of the 8
// channels, packed into a single 16-byte payload by the firmware. Sample1
// was captured before Sample2.
type EMGData struct {
	Sample1 [8]int8 `json:"sample1"`
	Sample2 [8]int8 `json:"sample2"`
}

func (EMGData) Kind() string { return "emg" }

// Quaternion is a unit quaternion in physical units.
type Quaternion struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Vector is a 3-vector in physical units.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// IMUData is one IMU notification: orientation quaternion, accelerometer and
// gyroscope. Raw fixed-point integers are kept alongside the scaled values.
type IMUData struct {
	RawOrientation   [4]int16 `json:"-"` // w, x, y, z
	RawAccelerometer [3]int16 `json:"-"`
	RawGyroscope     [3]int16 `json:"-"`

	Orientation   Quaternion `json:"orientation"`
	Accelerometer Vector     `json:"accelerometer"`
	Gyroscope     Vector     `json:"gyroscope"`
}

func (IMUData) Kind() string { return "imu" }

// Arm identifies which arm the device is worn on (myohw_arm_t).
type Arm byte

const (
	ArmRight   Arm = 0x01
	ArmLeft    Arm = 0x02
	ArmUnknown Arm = 0xff
)

// XDirection is the orientation of the device's x axis on the arm
// (myohw_x_direction_t).
type XDirection byte

const (
	XDirectionTowardWrist XDirection = 0x01
	XDirectionTowardElbow XDirection = 0x02
	XDirectionUnknown     XDirection = 0xff
)

// Pose is a classified gesture (myohw_pose_t).
type Pose uint16

const (
	PoseRest          Pose = 0x0000
	PoseFist          Pose = 0x0001
	PoseWaveIn        Pose = 0x0002
	PoseWaveOut       Pose = 0x0003
	PoseFingersSpread Pose = 0x0004
	PoseDoubleTap     Pose = 0x0005
	PoseUnknown       Pose = 0xffff
)

func (p Pose) String() string {
	switch p {
	case PoseRest:
		return "rest"
	case PoseFist:
		return "fist"
	case PoseWaveIn:
		return "wave_in"
	case PoseWaveOut:
		return "wave_out"
	case PoseFingersSpread:
		return "fingers_spread"
	case PoseDoubleTap:
		return "double_tap"
	default:
		return "unknown"
	}
}

// ClassifierEventType discriminates classifier events
// (myohw_classifier_event_type_t).
type ClassifierEventType byte

const (
	ClassifierEventArmSynced    ClassifierEventType = 0x01
	ClassifierEventArmUnsynced  ClassifierEventType = 0x02
	ClassifierEventPose         ClassifierEventType = 0x03
	ClassifierEventUnlocked     ClassifierEventType = 0x04
	ClassifierEventLocked       ClassifierEventType = 0x05
	ClassifierEventSyncFailed   ClassifierEventType = 0x06
	ClassifierEventWarmupResult ClassifierEventType = 0x07
)

// SyncResult explains a failed sync gesture (myohw_sync_result_t).
type SyncResult byte

const SyncFailedTooHard SyncResult = 0x01

// ClassifierEvent is one classifier indication. Which of the typed fields is
// meaningful depends on Type; Data always holds the raw payload bytes, since
// some firmware revisions emit event subtypes this driver does not model.
type ClassifierEvent struct {
	Type ClassifierEventType `json:"type"`
	Data [2]byte             `json:"-"`

	Arm        Arm        `json:"arm,omitempty"`         // ArmSynced
	XDirection XDirection `json:"x_direction,omitempty"` // ArmSynced
	Pose       Pose       `json:"pose,omitempty"`        // Pose
	SyncResult SyncResult `json:"sync_result,omitempty"` // SyncFailed
}

func (ClassifierEvent) Kind() string { return "classifier" }

// MotionEventType discriminates motion events (myohw_motion_event_type_t).
type MotionEventType byte

const MotionEventTap MotionEventType = 0x00

// MotionEvent is one motion indication from the IMU service.
type MotionEvent struct {
	Type         MotionEventType `json:"type"`
	TapDirection int8            `json:"tap_direction"`
	TapCount     int8            `json:"tap_count"`
}

func (MotionEvent) Kind() string { return "motion" }

// FVData is one filtered EMG notification: 8 per-channel magnitudes. The
// layout is not part of myohw.h; it was recovered from the stock firmware.
type FVData struct {
	Values [8]int16 `json:"values"`
}

func (FVData) Kind() string { return "fv" }

// BatteryLevel is the remaining battery charge.
type BatteryLevel struct {
	Percent uint8 `json:"percent"`
}

func (BatteryLevel) Kind() string { return "battery" }

// HardwareRev identifies the hardware revision (myohw_hardware_rev_t).
type HardwareRev uint16

const (
	HardwareRevUnknown HardwareRev = 0
	HardwareRevC       HardwareRev = 1
	HardwareRevD       HardwareRev = 2
	HardwareRevS       HardwareRev = 3
)

// FirmwareVersion is the device firmware version (myohw_fw_version_t).
type FirmwareVersion struct {
	Major       uint16      `json:"major"`
	Minor       uint16      `json:"minor"`
	Patch       uint16      `json:"patch"`
	HardwareRev HardwareRev `json:"hardware_rev"`
}

func (FirmwareVersion) Kind() string { return "firmware_version" }

func (v FirmwareVersion) String() string {
	return fmt.Sprintf("%d.%d.%d (rev %d)", v.Major, v.Minor, v.Patch, v.HardwareRev)
}

// SKU identifies the device color (myohw_sku_t).
type SKU byte

const (
	SKUUnknown SKU = 0
	SKUBlack   SKU = 1
	SKUWhite   SKU = 2
)

// ClassifierModelType identifies the active classifier model
// (myohw_classifier_model_type_t).
type ClassifierModelType byte

const (
	ClassifierModelBuiltin ClassifierModelType = 0
	ClassifierModelCustom  ClassifierModelType = 1
)

// FirmwareInfo is the device's static self-description (myohw_fw_info_t).
type FirmwareInfo struct {
	SerialNumber          string              `json:"serial_number"`
	UnlockPose            Pose                `json:"unlock_pose"`
	ActiveClassifierType  ClassifierModelType `json:"active_classifier_type"`
	ActiveClassifierIndex uint8               `json:"active_classifier_index"`
	HasCustomClassifier   bool                `json:"has_custom_classifier"`
	StreamIndicating      bool                `json:"stream_indicating"`
	SKU                   SKU                 `json:"sku"`
}

func (FirmwareInfo) Kind() string { return "firmware_info" }

// Decoder decodes notification payloads. The zero value uses the stock
// firmware scale constants.
type Decoder struct {
	Scales Scales
}

// NewDecoder returns a decoder using the given scales; zero-valued scale
// fields fall back to the stock firmware constants.
func NewDecoder(s Scales) *Decoder {
	def := DefaultScales()
	if s.Orientation == 0 {
		s.Orientation = def.Orientation
	}
	if s.Accelerometer == 0 {
		s.Accelerometer = def.Accelerometer
	}
	if s.Gyroscope == 0 {
		s.Gyroscope = def.Gyroscope
	}
	return &Decoder{Scales: s}
}

// Decode decodes a payload according to its kind from the resolved handle
// descriptor. Decoding is pure; payloads of the wrong length are rejected
// whole with ErrLengthMismatch.
func (d *Decoder) Decode(kind profile.Payload, data []byte) (Event, error) {
	var ev Event
	var err error
	switch kind {
	case profile.PayloadEMG:
		ev, err = decodeEMG(data)
	case profile.PayloadIMU:
		ev, err = d.decodeIMU(data)
	case profile.PayloadClassifierEvent:
		ev, err = decodeClassifierEvent(data)
	case profile.PayloadMotionEvent:
		ev, err = decodeMotionEvent(data)
	case profile.PayloadFV:
		ev, err = decodeFV(data)
	case profile.PayloadBatteryLevel:
		ev, err = DecodeBatteryLevel(data)
	case profile.PayloadFirmwareVersion:
		ev, err = DecodeFirmwareVersion(data)
	case profile.PayloadFirmwareInfo:
		ev, err = DecodeFirmwareInfo(data)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownPayload, kind)
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func lengthError(kind string, want, got int) error {
	return fmt.Errorf("%w: %s wants %d bytes, got %d", ErrLengthMismatch, kind, want, got)
}

func decodeEMG(data []byte) (EMGData, error) {
	var e EMGData
	if len(data) != emgDataLen {
		return e, lengthError("emg", emgDataLen, len(data))
	}
	for i := 0; i < 8; i++ {
		e.Sample1[i] = int8(data[i])
		e.Sample2[i] = int8(data[8+i])
	}
	return e, nil
}

func (d *Decoder) decodeIMU(data []byte) (IMUData, error) {
	var e IMUData
	if len(data) != imuDataLen {
		return e, lengthError("imu", imuDataLen, len(data))
	}
	s := d.Scales
	if s.Orientation == 0 || s.Accelerometer == 0 || s.Gyroscope == 0 {
		s = DefaultScales()
	}
	raw := make([]int16, 10)
	for i := range raw {
		raw[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	copy(e.RawOrientation[:], raw[:4])
	copy(e.RawAccelerometer[:], raw[4:7])
	copy(e.RawGyroscope[:], raw[7:10])
	e.Orientation = Quaternion{
		W: float64(raw[0]) / s.Orientation,
		X: float64(raw[1]) / s.Orientation,
		Y: float64(raw[2]) / s.Orientation,
		Z: float64(raw[3]) / s.Orientation,
	}
	e.Accelerometer = Vector{
		X: float64(raw[4]) / s.Accelerometer,
		Y: float64(raw[5]) / s.Accelerometer,
		Z: float64(raw[6]) / s.Accelerometer,
	}
	e.Gyroscope = Vector{
		X: float64(raw[7]) / s.Gyroscope,
		Y: float64(raw[8]) / s.Gyroscope,
		Z: float64(raw[9]) / s.Gyroscope,
	}
	return e, nil
}

func decodeClassifierEvent(data []byte) (ClassifierEvent, error) {
	var e ClassifierEvent
	if len(data) != classifierEventLen {
		return e, lengthError("classifier event", classifierEventLen, len(data))
	}
	e.Type = ClassifierEventType(data[0])
	e.Data[0], e.Data[1] = data[1], data[2]
	switch e.Type {
	case ClassifierEventArmSynced:
		e.Arm = Arm(data[1])
		e.XDirection = XDirection(data[2])
	case ClassifierEventPose:
		e.Pose = Pose(binary.LittleEndian.Uint16(data[1:]))
	case ClassifierEventSyncFailed:
		e.SyncResult = SyncResult(data[1])
	}
	return e, nil
}

func decodeMotionEvent(data []byte) (MotionEvent, error) {
	var e MotionEvent
	if len(data) != motionEventLen {
		return e, lengthError("motion event", motionEventLen, len(data))
	}
	e.Type = MotionEventType(data[0])
	e.TapDirection = int8(data[1])
	e.TapCount = int8(data[2])
	return e, nil
}

func decodeFV(data []byte) (FVData, error) {
	var e FVData
	if len(data) != fvDataLen {
		return e, lengthError("fv", fvDataLen, len(data))
	}
	for i := 0; i < 8; i++ {
		e.Values[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return e, nil
}

// DecodeBatteryLevel decodes the standard battery level characteristic.
func DecodeBatteryLevel(data []byte) (BatteryLevel, error) {
	if len(data) != batteryLevelLen {
		return BatteryLevel{}, lengthError("battery level", batteryLevelLen, len(data))
	}
	return BatteryLevel{Percent: data[0]}, nil
}

// DecodeFirmwareVersion decodes the FirmwareVersion characteristic.
func DecodeFirmwareVersion(data []byte) (FirmwareVersion, error) {
	var v FirmwareVersion
	if len(data) != firmwareVersionLen {
		return v, lengthError("firmware version", firmwareVersionLen, len(data))
	}
	v.Major = binary.LittleEndian.Uint16(data[0:])
	v.Minor = binary.LittleEndian.Uint16(data[2:])
	v.Patch = binary.LittleEndian.Uint16(data[4:])
	v.HardwareRev = HardwareRev(binary.LittleEndian.Uint16(data[6:]))
	return v, nil
}

// DecodeFirmwareInfo decodes the FirmwareInfo characteristic. The serial
// number is transmitted least significant byte first and rendered in the
// familiar colon-separated order.
func DecodeFirmwareInfo(data []byte) (FirmwareInfo, error) {
	var fi FirmwareInfo
	if len(data) != firmwareInfoLen {
		return fi, lengthError("firmware info", firmwareInfoLen, len(data))
	}
	parts := make([]string, 6)
	for i := 0; i < 6; i++ {
		parts[i] = fmt.Sprintf("%02X", data[5-i])
	}
	fi.SerialNumber = strings.Join(parts, ":")
	fi.UnlockPose = Pose(binary.LittleEndian.Uint16(data[6:]))
	fi.ActiveClassifierType = ClassifierModelType(data[8])
	fi.ActiveClassifierIndex = data[9]
	fi.HasCustomClassifier = data[10] != 0
	fi.StreamIndicating = data[11] != 0
	fi.SKU = SKU(data[12])
	return fi, nil
}
