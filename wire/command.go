// Package wire implements the Myo's binary command and notification formats.
// Every layout is fixed-width little-endian, taken from the reverse-engineered
// myohw.h header; the bytes must match the firmware exactly.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Command type bytes (myohw_command_t).
const (
	cmdSetMode      = 0x01
	cmdVibrate      = 0x03
	cmdDeepSleep    = 0x04
	cmdLED          = 0x06 // undocumented in myohw.h
	cmdVibrate2     = 0x07
	cmdSetSleepMode = 0x09
	cmdUnlock       = 0x0a
	cmdUserAction   = 0x0b
)

// ErrInvalidArgument reports a command field outside the protocol's valid
// range. Commands with such fields fail to encode rather than truncate.
var ErrInvalidArgument = errors.New("wire: invalid argument")

// EMGMode selects how the device streams EMG data (myohw_emg_mode_t, plus
// the undocumented filtered mode used by the stock firmware).
type EMGMode byte

const (
	EMGModeNone     EMGMode = 0x00
	EMGModeSendFilt EMGMode = 0x01
	EMGModeSendEMG  EMGMode = 0x02
	EMGModeSendRaw  EMGMode = 0x03
)

func (m EMGMode) valid() bool { return m <= EMGModeSendRaw }

// IMUMode selects how the device streams IMU data (myohw_imu_mode_t).
type IMUMode byte

const (
	IMUModeNone       IMUMode = 0x00
	IMUModeSendData   IMUMode = 0x01
	IMUModeSendEvents IMUMode = 0x02
	IMUModeSendAll    IMUMode = 0x03
	IMUModeSendRaw    IMUMode = 0x04
)

func (m IMUMode) valid() bool { return m <= IMUModeSendRaw }

// ClassifierMode enables the on-board gesture classifier
// (myohw_classifier_mode_t).
type ClassifierMode byte

const (
	ClassifierModeDisabled ClassifierMode = 0x00
	ClassifierModeEnabled  ClassifierMode = 0x01
)

func (m ClassifierMode) valid() bool { return m <= ClassifierModeEnabled }

// VibrationType is a canned vibration duration (myohw_vibration_type_t).
type VibrationType byte

const (
	VibrationNone   VibrationType = 0x00
	VibrationShort  VibrationType = 0x01
	VibrationMedium VibrationType = 0x02
	VibrationLong   VibrationType = 0x03
)

// SleepMode controls whether the device is allowed to sleep when idle
// (myohw_sleep_mode_t).
type SleepMode byte

const (
	SleepModeNormal     SleepMode = 0x00
	SleepModeNeverSleep SleepMode = 0x01
)

// UnlockType controls the classifier lockout (myohw_unlock_type_t).
type UnlockType byte

const (
	UnlockLock  UnlockType = 0x00
	UnlockTimed UnlockType = 0x01
	UnlockHold  UnlockType = 0x02
)

// UserActionType is the trigger for a UserAction command
// (myohw_user_action_type_t).
type UserActionType byte

const UserActionSingle UserActionType = 0x00

// Command is one outbound device instruction. Implementations report their
// command-type byte and payload; EncodeCommand prepends the two-byte header.
type Command interface {
	command() (typ byte, payload []byte, err error)
}

// SetMode configures the EMG, IMU and classifier streaming modes.
type SetMode struct {
	EMG        EMGMode
	IMU        IMUMode
	Classifier ClassifierMode
}

func (c SetMode) command() (byte, []byte, error) {
	if !c.EMG.valid() {
		return 0, nil, fmt.Errorf("%w: emg mode 0x%02x", ErrInvalidArgument, byte(c.EMG))
	}
	if !c.IMU.valid() {
		return 0, nil, fmt.Errorf("%w: imu mode 0x%02x", ErrInvalidArgument, byte(c.IMU))
	}
	if !c.Classifier.valid() {
		return 0, nil, fmt.Errorf("%w: classifier mode 0x%02x", ErrInvalidArgument, byte(c.Classifier))
	}
	return cmdSetMode, []byte{byte(c.EMG), byte(c.IMU), byte(c.Classifier)}, nil
}

// Vibrate triggers one of the canned vibration patterns.
type Vibrate struct {
	Type VibrationType
}

func (c Vibrate) command() (byte, []byte, error) {
	if c.Type > VibrationLong {
		return 0, nil, fmt.Errorf("%w: vibration type 0x%02x", ErrInvalidArgument, byte(c.Type))
	}
	return cmdVibrate, []byte{byte(c.Type)}, nil
}

// vibrate2Steps is the fixed slot count of a Vibrate2 pattern
// (myohw_command_vibrate2_t).
const vibrate2Steps = 7

// VibrationStep is one step of a custom vibration pattern.
type VibrationStep struct {
	Duration uint16 // milliseconds
	Strength uint8  // 0 = motor off, 255 = full speed
}

// Vibrate2 plays a custom vibration pattern of up to 7 steps. Unused slots
// are transmitted as zeroes, which the firmware treats as "motor off".
type Vibrate2 struct {
	Steps []VibrationStep
}

func (c Vibrate2) command() (byte, []byte, error) {
	if len(c.Steps) > vibrate2Steps {
		return 0, nil, fmt.Errorf("%w: %d vibration steps, max %d", ErrInvalidArgument, len(c.Steps), vibrate2Steps)
	}
	payload := make([]byte, vibrate2Steps*3)
	for i, s := range c.Steps {
		binary.LittleEndian.PutUint16(payload[i*3:], s.Duration)
		payload[i*3+2] = s.Strength
	}
	return cmdVibrate2, payload, nil
}

// DeepSleep puts the device into its lowest-power state. Only plugging in
// the charger wakes it back up.
type DeepSleep struct{}

func (DeepSleep) command() (byte, []byte, error) { return cmdDeepSleep, nil, nil }

// RGB is an LED color.
type RGB struct {
	R, G, B uint8
}

// LED sets the colors of the logo and band LEDs.
type LED struct {
	Logo RGB
	Line RGB
}

func (c LED) command() (byte, []byte, error) {
	return cmdLED, []byte{c.Logo.R, c.Logo.G, c.Logo.B, c.Line.R, c.Line.G, c.Line.B}, nil
}

// SetSleepMode controls whether the device sleeps when idle.
type SetSleepMode struct {
	Mode SleepMode
}

func (c SetSleepMode) command() (byte, []byte, error) {
	if c.Mode > SleepModeNeverSleep {
		return 0, nil, fmt.Errorf("%w: sleep mode 0x%02x", ErrInvalidArgument, byte(c.Mode))
	}
	return cmdSetSleepMode, []byte{byte(c.Mode)}, nil
}

// Unlock changes the classifier lockout state.
type Unlock struct {
	Type UnlockType
}

func (c Unlock) command() (byte, []byte, error) {
	if c.Type > UnlockHold {
		return 0, nil, fmt.Errorf("%w: unlock type 0x%02x", ErrInvalidArgument, byte(c.Type))
	}
	return cmdUnlock, []byte{byte(c.Type)}, nil
}

// UserAction notifies the device that a user action was recognized.
type UserAction struct {
	Type UserActionType
}

func (c UserAction) command() (byte, []byte, error) {
	if c.Type != UserActionSingle {
		return 0, nil, fmt.Errorf("%w: user action type 0x%02x", ErrInvalidArgument, byte(c.Type))
	}
	return cmdUserAction, []byte{byte(c.Type)}, nil
}

// EncodeCommand serializes a command for the Command characteristic:
// a myohw_command_header_t ([type, payload length]) followed by the payload.
func EncodeCommand(c Command) ([]byte, error) {
	typ, payload, err := c.command()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 2+len(payload))
	buf = append(buf, typ, byte(len(payload)))
	buf = append(buf, payload...)
	return buf, nil
}
