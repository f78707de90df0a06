package model

import (
	"time"

	"github.com/google/uuid"
)

// MasterDeviceID is the device id of the primary device created at registration.
const MasterDeviceID = 1

// Account is the durable identity record for one user. Instances are value
// snapshots: mutation paths on the account manager return a fresh copy and the
// snapshot passed in must not be written again.
type Account struct {
	ID     uuid.UUID `json:"id"`
	Number string    `json:"number"`

	Devices []Device `json:"devices"`

	IdentityKey                    []byte `json:"identity_key,omitempty"`
	UnidentifiedAccessKey          []byte `json:"unidentified_access_key,omitempty"`
	UnrestrictedUnidentifiedAccess bool   `json:"unrestricted_unidentified_access"`
	DiscoverableByPhoneNumber      bool   `json:"discoverable_by_phone_number"`

	ProfileName string `json:"profile_name,omitempty"`
	AvatarRef   string `json:"avatar_ref,omitempty"`

	RegistrationLock *RegistrationLock `json:"registration_lock,omitempty"`

	// Version is the optimistic-concurrency token. It is owned by the durable
	// store and increments on every successful write.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// Device represents one client installation belonging to an account.
type Device struct {
	ID              int           `json:"id"`
	Name            string        `json:"name,omitempty"`
	AuthCredHash    string        `json:"authcred_hash,omitempty"`
	PushToken       string        `json:"push_token,omitempty"`
	FetchesMessages bool          `json:"fetches_messages"`
	RegistrationID  int           `json:"registration_id"`
	SignedPreKey    *SignedPreKey `json:"signed_prekey,omitempty"`
	UserAgent       string        `json:"user_agent,omitempty"`

	LastSeen  time.Time `json:"last_seen"`
	CreatedAt time.Time `json:"created_at"`

	Capabilities DeviceCapabilities `json:"capabilities"`
}

// DeviceCapabilities flags what a client build supports.
type DeviceCapabilities struct {
	Storage           bool `json:"storage"`
	Transfer          bool `json:"transfer"`
	SenderKey         bool `json:"sender_key"`
	AnnouncementGroup bool `json:"announcement_group"`
	ChangeNumber      bool `json:"change_number"`
}

// SignedPreKey is a device's current signed pre-key.
type SignedPreKey struct {
	KeyID     int64  `json:"key_id"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

// RegistrationLock is the account-level re-registration lock credential.
type RegistrationLock struct {
	Hash string `json:"hash"`
	Salt string `json:"salt"`
}

// Device returns the device with the given id, if present.
func (a *Account) Device(id int) (Device, bool) {
	for _, d := range a.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

// MasterDevice returns the account's primary device, if present.
func (a *Account) MasterDevice() (Device, bool) {
	return a.Device(MasterDeviceID)
}

// AddDevice appends the device, replacing any existing device with the same id.
func (a *Account) AddDevice(device Device) {
	for i, d := range a.Devices {
		if d.ID == device.ID {
			a.Devices[i] = device
			return
		}
	}
	a.Devices = append(a.Devices, device)
}

// RemoveDevice deletes the device with the given id, if present.
func (a *Account) RemoveDevice(id int) {
	for i, d := range a.Devices {
		if d.ID == id {
			a.Devices = append(a.Devices[:i], a.Devices[i+1:]...)
			return
		}
	}
}

// NextDeviceID returns the smallest unused device id above the master id.
func (a *Account) NextDeviceID() int {
	next := MasterDeviceID + 1
	for {
		if _, ok := a.Device(next); !ok {
			return next
		}
		next++
	}
}

// Clone returns a deep copy of the account so that no two holders share
// device slices or key material.
func (a *Account) Clone() *Account {
	cp := *a
	cp.Devices = make([]Device, len(a.Devices))
	copy(cp.Devices, a.Devices)
	for i := range cp.Devices {
		if spk := cp.Devices[i].SignedPreKey; spk != nil {
			s := *spk
			cp.Devices[i].SignedPreKey = &s
		}
	}
	if a.RegistrationLock != nil {
		rl := *a.RegistrationLock
		cp.RegistrationLock = &rl
	}
	if a.IdentityKey != nil {
		cp.IdentityKey = append([]byte(nil), a.IdentityKey...)
	}
	if a.UnidentifiedAccessKey != nil {
		cp.UnidentifiedAccessKey = append([]byte(nil), a.UnidentifiedAccessKey...)
	}
	return &cp
}
