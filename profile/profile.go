// Package profile is the static GATT profile of the Myo armband: the mapping
// from (service UUID, characteristic UUID) pairs to named, typed handle
// descriptors. The vendor never published the profile; the UUIDs below were
// recovered from the myohw.h header and from live captures of a real device.
package profile

import "strings"

// Myo vendor service UUIDs.
const (
	MyoServiceUUID        = "d5060001-a904-deb9-4748-2c7f4a124842"
	ControlServiceUUID    = "d5060001-a904-deb9-4748-2c7f4a124842"
	IMUServiceUUID        = "d5060002-a904-deb9-4748-2c7f4a124842"
	ClassifierServiceUUID = "d5060003-a904-deb9-4748-2c7f4a124842"
	FVServiceUUID         = "d5060004-a904-deb9-4748-2c7f4a124842"
	EMGServiceUUID        = "d5060005-a904-deb9-4748-2c7f4a124842"
)

// Myo vendor characteristic UUIDs.
const (
	FirmwareInfoUUID    = "d5060101-a904-deb9-4748-2c7f4a124842"
	FirmwareVersionUUID = "d5060201-a904-deb9-4748-2c7f4a124842"
	CommandUUID         = "d5060401-a904-deb9-4748-2c7f4a124842"
	IMUDataUUID         = "d5060402-a904-deb9-4748-2c7f4a124842"
	MotionEventUUID     = "d5060502-a904-deb9-4748-2c7f4a124842"
	ClassifierEventUUID = "d5060103-a904-deb9-4748-2c7f4a124842"
	FVDataUUID          = "d5060104-a904-deb9-4748-2c7f4a124842"
	EmgData0UUID        = "d5060105-a904-deb9-4748-2c7f4a124842"
	EmgData1UUID        = "d5060205-a904-deb9-4748-2c7f4a124842"
	EmgData2UUID        = "d5060305-a904-deb9-4748-2c7f4a124842"
	EmgData3UUID        = "d5060405-a904-deb9-4748-2c7f4a124842"
)

// Standard Bluetooth SIG service/characteristic UUIDs present on the Myo.
const (
	GenericAccessServiceUUID     = "00001800-0000-1000-8000-00805f9b34fb"
	DeviceNameUUID               = "00002a00-0000-1000-8000-00805f9b34fb"
	DeviceInformationServiceUUID = "0000180a-0000-1000-8000-00805f9b34fb"
	ManufacturerNameUUID         = "00002a29-0000-1000-8000-00805f9b34fb"
	BatteryServiceUUID           = "0000180f-0000-1000-8000-00805f9b34fb"
	BatteryLevelUUID             = "00002a19-0000-1000-8000-00805f9b34fb"
)

// Capability is the access capability set of a characteristic.
type Capability uint8

const (
	Read Capability = 1 << iota
	Write
	Notify
	Indicate
)

// Has reports whether c includes all capabilities in want.
func (c Capability) Has(want Capability) bool { return c&want == want }

// Payload tags which codec applies to a characteristic's payload.
type Payload int

const (
	PayloadNone Payload = iota
	PayloadCommand
	PayloadEMG
	PayloadIMU
	PayloadMotionEvent
	PayloadClassifierEvent
	PayloadFV
	PayloadBatteryLevel
	PayloadFirmwareVersion
	PayloadFirmwareInfo
	PayloadString
)

// Descriptor identifies one GATT characteristic's semantic role on the Myo.
type Descriptor struct {
	Name     string
	Service  string
	UUID     string
	Caps     Capability
	Payload  Payload
	Required bool
}

// Notifiable reports whether the characteristic pushes data (notify or
// indicate; the subscription mechanics are identical at this layer).
func (d Descriptor) Notifiable() bool { return d.Caps&(Notify|Indicate) != 0 }

// registry holds every characteristic the driver knows about. Only Command is
// required: a Myo without a writable command characteristic cannot be driven
// at all, while missing data characteristics merely make the matching
// operations unavailable.
var registry = []Descriptor{
	{Name: "DeviceName", Service: GenericAccessServiceUUID, UUID: DeviceNameUUID, Caps: Read, Payload: PayloadString},
	{Name: "ManufacturerName", Service: DeviceInformationServiceUUID, UUID: ManufacturerNameUUID, Caps: Read, Payload: PayloadString},
	{Name: "BatteryLevel", Service: BatteryServiceUUID, UUID: BatteryLevelUUID, Caps: Read | Notify, Payload: PayloadBatteryLevel},
	{Name: "FirmwareInfo", Service: ControlServiceUUID, UUID: FirmwareInfoUUID, Caps: Read, Payload: PayloadFirmwareInfo},
	{Name: "FirmwareVersion", Service: ControlServiceUUID, UUID: FirmwareVersionUUID, Caps: Read, Payload: PayloadFirmwareVersion},
	{Name: "Command", Service: ControlServiceUUID, UUID: CommandUUID, Caps: Write, Payload: PayloadCommand, Required: true},
	{Name: "IMUData", Service: IMUServiceUUID, UUID: IMUDataUUID, Caps: Notify, Payload: PayloadIMU},
	{Name: "MotionEvent", Service: IMUServiceUUID, UUID: MotionEventUUID, Caps: Indicate, Payload: PayloadMotionEvent},
	{Name: "ClassifierEvent", Service: ClassifierServiceUUID, UUID: ClassifierEventUUID, Caps: Indicate, Payload: PayloadClassifierEvent},
	{Name: "FVData", Service: FVServiceUUID, UUID: FVDataUUID, Caps: Notify, Payload: PayloadFV},
	{Name: "EmgData0", Service: EMGServiceUUID, UUID: EmgData0UUID, Caps: Notify, Payload: PayloadEMG},
	{Name: "EmgData1", Service: EMGServiceUUID, UUID: EmgData1UUID, Caps: Notify, Payload: PayloadEMG},
	{Name: "EmgData2", Service: EMGServiceUUID, UUID: EmgData2UUID, Caps: Notify, Payload: PayloadEMG},
	{Name: "EmgData3", Service: EMGServiceUUID, UUID: EmgData3UUID, Caps: Notify, Payload: PayloadEMG},
}

// byKey indexes the registry by "<service>/<characteristic>" in lower case.
var byKey = func() map[string]Descriptor {
	m := make(map[string]Descriptor, len(registry))
	for _, d := range registry {
		m[key(d.Service, d.UUID)] = d
	}
	return m
}()

func key(serviceUUID, charUUID string) string {
	return strings.ToLower(serviceUUID) + "/" + strings.ToLower(charUUID)
}

// Resolve looks up the descriptor for a (service, characteristic) UUID pair.
// Unknown pairs are expected on partial firmware and reported as absence.
func Resolve(serviceUUID, charUUID string) (Descriptor, bool) {
	d, ok := byKey[key(serviceUUID, charUUID)]
	return d, ok
}

// ResolveName looks up a descriptor by its symbolic name.
func ResolveName(name string) (Descriptor, bool) {
	for _, d := range registry {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// All returns every descriptor in the registry, in profile order. The slice
// is a copy; callers may not mutate registry state through it.
func All() []Descriptor {
	out := make([]Descriptor, len(registry))
	copy(out, registry)
	return out
}
