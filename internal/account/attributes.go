package account

import "github.com/relaymesh/server/internal/model"

// Attributes carries the client-supplied registration attributes used to
// build a new account and its master device.
type Attributes struct {
	Name            string
	RegistrationID  int
	FetchesMessages bool

	IdentityKey                    []byte
	UnidentifiedAccessKey          []byte
	UnrestrictedUnidentifiedAccess bool
	DiscoverableByPhoneNumber      bool

	RegistrationLock *model.RegistrationLock
	SignedPreKey     *model.SignedPreKey
	Capabilities     model.DeviceCapabilities
}
