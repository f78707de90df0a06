package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDeviceLookup(t *testing.T) {
	a := Account{Devices: []Device{{ID: MasterDeviceID}, {ID: 3}}}

	if _, ok := a.Device(MasterDeviceID); !ok {
		t.Error("master device should be found")
	}
	if _, ok := a.Device(2); ok {
		t.Error("device 2 should not be found")
	}
	if _, ok := a.MasterDevice(); !ok {
		t.Error("MasterDevice should return the master device")
	}
}

func TestAddDeviceReplacesExisting(t *testing.T) {
	a := Account{}
	a.AddDevice(Device{ID: 2, Name: "old"})
	a.AddDevice(Device{ID: 2, Name: "new"})

	if len(a.Devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(a.Devices))
	}
	if a.Devices[0].Name != "new" {
		t.Errorf("expected replacement, got %q", a.Devices[0].Name)
	}
}

func TestNextDeviceID(t *testing.T) {
	a := Account{Devices: []Device{{ID: MasterDeviceID}, {ID: 2}, {ID: 4}}}
	if got := a.NextDeviceID(); got != 3 {
		t.Errorf("expected next device id 3, got %d", got)
	}

	empty := Account{}
	if got := empty.NextDeviceID(); got != MasterDeviceID+1 {
		t.Errorf("expected next device id %d, got %d", MasterDeviceID+1, got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	a := &Account{
		ID:               uuid.New(),
		Number:           "+15550001",
		Devices:          []Device{{ID: MasterDeviceID, SignedPreKey: &SignedPreKey{KeyID: 7}}},
		IdentityKey:      []byte{1, 2, 3},
		RegistrationLock: &RegistrationLock{Hash: "h", Salt: "s"},
		CreatedAt:        time.Now(),
	}

	cp := a.Clone()
	cp.Devices[0].SignedPreKey.KeyID = 99
	cp.Devices[0].LastSeen = time.Now()
	cp.IdentityKey[0] = 42
	cp.RegistrationLock.Hash = "changed"

	if a.Devices[0].SignedPreKey.KeyID != 7 {
		t.Error("clone shares signed pre-key with original")
	}
	if a.IdentityKey[0] != 1 {
		t.Error("clone shares identity key bytes with original")
	}
	if a.RegistrationLock.Hash != "h" {
		t.Error("clone shares registration lock with original")
	}
}
