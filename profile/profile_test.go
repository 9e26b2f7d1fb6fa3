package profile

import "testing"

func TestResolveCommand(t *testing.T) {
	d, ok := Resolve("d5060001-a904-deb9-4748-2c7f4a124842", "d5060401-a904-deb9-4748-2c7f4a124842")
	if !ok {
		t.Fatal("Resolve() did not find the Command characteristic")
	}
	if d.Name != "Command" {
		t.Errorf("Name = %q, want %q", d.Name, "Command")
	}
	if !d.Caps.Has(Write) {
		t.Error("Command should be writable")
	}
	if d.Caps.Has(Read) || d.Caps.Has(Notify) {
		t.Errorf("Command caps = %b, want write-only", d.Caps)
	}
	if !d.Required {
		t.Error("Command should be required")
	}
}

func TestResolveCaseInsensitive(t *testing.T) {
	d, ok := Resolve("D5060005-A904-DEB9-4748-2C7F4A124842", "D5060105-A904-DEB9-4748-2C7F4A124842")
	if !ok {
		t.Fatal("Resolve() should be case insensitive")
	}
	if d.Name != "EmgData0" {
		t.Errorf("Name = %q, want %q", d.Name, "EmgData0")
	}
}

func TestResolveUnknown(t *testing.T) {
	// The "unknown" vendor service observed on real hardware is deliberately
	// not in the registry; absence, not an error.
	if _, ok := Resolve("d5060006-a904-deb9-4748-2c7f4a124842", "d5060602-a904-deb9-4748-2c7f4a124842"); ok {
		t.Error("Resolve() found a descriptor for an unregistered characteristic")
	}
}

func TestResolveIsPure(t *testing.T) {
	a, okA := Resolve(EMGServiceUUID, EmgData2UUID)
	b, okB := Resolve(EMGServiceUUID, EmgData2UUID)
	if okA != okB || a != b {
		t.Errorf("Resolve() is not pure: (%v,%v) != (%v,%v)", a, okA, b, okB)
	}
}

func TestResolveName(t *testing.T) {
	d, ok := ResolveName("IMUData")
	if !ok {
		t.Fatal("ResolveName(IMUData) not found")
	}
	if d.UUID != IMUDataUUID {
		t.Errorf("UUID = %q, want %q", d.UUID, IMUDataUUID)
	}
	if !d.Notifiable() {
		t.Error("IMUData should be notifiable")
	}
	if _, ok := ResolveName("NoSuchHandle"); ok {
		t.Error("ResolveName() found a descriptor for a bogus name")
	}
}

func TestRegistryPairsUnique(t *testing.T) {
	seen := make(map[string]string)
	for _, d := range All() {
		k := d.Service + "/" + d.UUID
		if prev, dup := seen[k]; dup {
			t.Errorf("duplicate (service, characteristic) pair %s: %s and %s", k, prev, d.Name)
		}
		seen[k] = d.Name
	}
}

func TestAllReturnsCopy(t *testing.T) {
	a := All()
	a[0].Name = "mutated"
	b := All()
	if b[0].Name == "mutated" {
		t.Error("All() exposes registry backing storage")
	}
}

func TestEveryDescriptorHasPayloadKind(t *testing.T) {
	for _, d := range All() {
		if d.Payload == PayloadNone {
			t.Errorf("%s has no payload kind", d.Name)
		}
		if d.Caps == 0 {
			t.Errorf("%s has an empty capability set", d.Name)
		}
	}
}
