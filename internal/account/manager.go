// Package account implements the account mutation facade: create, read,
// update, change-number and delete operations over the durable account store,
// with optimistic-concurrency retries, cache-aside coherence, phone-number
// locking, and identity reclamation across deletion and re-registration.
package account

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/relaymesh/server/internal/auth"
	"github.com/relaymesh/server/internal/model"
	"github.com/relaymesh/server/internal/repo"
)

// maxUpdateAttempts bounds the optimistic-concurrency retry loop.
const maxUpdateAttempts = 10

// retryBackoff is the pause between conditional-write attempts.
const retryBackoff = 10 * time.Millisecond

// Deps are the collaborators the manager orchestrates.
type Deps struct {
	Accounts  repo.AccountRepo
	Cache     Cache
	Reclaim   *ReclaimManager
	Keys      repo.KeyRepo
	Messages  repo.MessageRepo
	Profiles  repo.ProfileRepo
	Usernames repo.UsernameRepo
	Pending   PendingAccountStore
	Presence  PresenceTracker

	SecureStorage RemoteStorageClient
	SecureBackup  RemoteStorageClient
}

// Manager is the account mutation facade. All methods are safe for
// concurrent use; operations on the same number are serialized by the
// reclaim manager's locks and operations on the same identifier by the
// store's conditional writes.
type Manager struct {
	deps Deps
}

// NewManager creates a new account manager.
func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps}
}

// Create registers a new account for the number. If the number was recently
// deleted, the previous identifier is reclaimed; if a live account already
// owns the number, its record is taken over in place and the dependent state
// of the displaced identity is purged.
func (m *Manager) Create(ctx context.Context, number, password, userAgent string, attrs Attributes) (*model.Account, error) {
	var created *model.Account

	err := m.deps.Reclaim.LockAndTake(ctx, number, func(ctx context.Context, reclaimed *uuid.UUID) error {
		credHash, err := auth.HashCredential(password)
		if err != nil {
			return err
		}

		now := time.Now()
		device := model.Device{
			ID:              model.MasterDeviceID,
			Name:            attrs.Name,
			AuthCredHash:    credHash,
			FetchesMessages: attrs.FetchesMessages,
			RegistrationID:  attrs.RegistrationID,
			SignedPreKey:    attrs.SignedPreKey,
			UserAgent:       userAgent,
			LastSeen:        now.Truncate(24 * time.Hour),
			CreatedAt:       now,
			Capabilities:    attrs.Capabilities,
		}

		account := &model.Account{
			ID:                             uuid.New(),
			Number:                         number,
			IdentityKey:                    attrs.IdentityKey,
			UnidentifiedAccessKey:          attrs.UnidentifiedAccessKey,
			UnrestrictedUnidentifiedAccess: attrs.UnrestrictedUnidentifiedAccess,
			DiscoverableByPhoneNumber:      attrs.DiscoverableByPhoneNumber,
			RegistrationLock:               attrs.RegistrationLock,
			CreatedAt:                      now,
		}
		if reclaimed != nil {
			account.ID = *reclaimed
		}
		account.AddDevice(device)

		originalID := account.ID

		fresh, err := m.deps.Accounts.Create(ctx, account)
		if err != nil {
			return err
		}

		m.cacheSet(ctx, account)

		if err := m.deps.Pending.Remove(ctx, number); err != nil {
			return err
		}

		// Three mutually-exclusive outcomes: a brand-new account, a takeover
		// of a live account (the store reassigned our identifier), or a
		// re-registration of a recently-deleted account (reclaimed != nil).
		// Only the takeover leaves dependent state under the final
		// identifier that must not bleed into the fresh registration; the
		// reclaimed identity was purged when it was deleted.
		if account.ID != originalID {
			if err := m.deps.Messages.Clear(ctx, account.ID); err != nil {
				return err
			}
			if err := m.deps.Keys.DeleteAll(ctx, account.ID); err != nil {
				return err
			}
			if err := m.deps.Profiles.DeleteAll(ctx, account.ID); err != nil {
				return err
			}
		}

		switch {
		case fresh:
			log.Printf("created account %s", account.ID)
		case account.ID != originalID:
			log.Printf("created account %s (took over live registration)", account.ID)
		default:
			log.Printf("created account %s (reclaimed recently-deleted identifier)", account.ID)
		}

		created = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetByNumber returns the account owning the number, or nil when none does.
// Reads are cache-aside: the durable store is the fallback of record.
func (m *Manager) GetByNumber(ctx context.Context, number string) (*model.Account, error) {
	cached, err := m.deps.Cache.GetByNumber(ctx, number)
	if err != nil {
		log.Printf("account cache read failed: %v", err)
	}
	if cached != nil {
		return cached, nil
	}

	account, err := m.deps.Accounts.GetByNumber(ctx, number)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.cacheSet(ctx, account)
	return account, nil
}

// GetByID returns the account with the identifier, or nil when none exists.
func (m *Manager) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	cached, err := m.deps.Cache.GetByID(ctx, id)
	if err != nil {
		log.Printf("account cache read failed: %v", err)
	}
	if cached != nil {
		return cached, nil
	}

	account, err := m.deps.Accounts.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.cacheSet(ctx, account)
	return account, nil
}

// Update applies mutate to the account and persists it with bounded
// optimistic retries. It returns a fresh snapshot; the snapshot passed in
// must not be used for further writes.
func (m *Manager) Update(ctx context.Context, account *model.Account, mutate func(*model.Account)) (*model.Account, error) {
	return m.update(ctx, account, func(a *model.Account) bool {
		mutate(a)
		// callers of the public method are assumed to actually change the
		// account
		return true
	})
}

// UpdateDevice applies mutate to one device of the account.
func (m *Manager) UpdateDevice(ctx context.Context, account *model.Account, deviceID int, mutate func(*model.Device)) (*model.Account, error) {
	return m.update(ctx, account, func(a *model.Account) bool {
		for i := range a.Devices {
			if a.Devices[i].ID == deviceID {
				mutate(&a.Devices[i])
			}
		}
		return true
	})
}

// UpdateDeviceLastSeen advances the device's last-seen timestamp, skipping
// the durable write entirely when the stored value is already current. The
// field is low-value and frequently contended.
func (m *Manager) UpdateDeviceLastSeen(ctx context.Context, account *model.Account, deviceID int, lastSeen time.Time) (*model.Account, error) {
	return m.update(ctx, account, func(a *model.Account) bool {
		for i := range a.Devices {
			if a.Devices[i].ID == deviceID {
				if !lastSeen.After(a.Devices[i].LastSeen) {
					return false
				}
				a.Devices[i].LastSeen = lastSeen
				return true
			}
		}
		return false
	})
}

func (m *Manager) update(ctx context.Context, account *model.Account, mutator func(*model.Account) bool) (*model.Account, error) {
	// Delete before write: a stale cache entry must never win a race against
	// the imminent durable write.
	m.cacheDelete(ctx, account)

	originalNumber := account.Number

	updated, err := m.updateWithRetries(ctx, account, mutator,
		m.deps.Accounts.Update,
		func(ctx context.Context) (*model.Account, error) {
			return m.deps.Accounts.GetByID(ctx, account.ID)
		})
	if err != nil {
		return nil, err
	}

	if updated.Number != originalNumber {
		log.Printf("account %s number changed via general update path", account.ID)
		return nil, ErrNumberChangedViaUpdate
	}

	m.cacheSet(ctx, updated)
	return updated, nil
}

// updateWithRetries runs the bounded optimistic-concurrency loop: apply the
// mutator to a fresh copy, attempt the conditional write, and on a version
// conflict refetch the durable record, reapply, and retry. Only the
// version-conflict sentinel is retried. A mutator reporting "no change"
// short-circuits without a store round-trip.
func (m *Manager) updateWithRetries(ctx context.Context, account *model.Account,
	mutator func(*model.Account) bool,
	persist func(context.Context, *model.Account) error,
	refetch func(context.Context) (*model.Account, error)) (*model.Account, error) {

	working := account.Clone()
	if !mutator(working) {
		return account, nil
	}

	first := true
	backoff := retry.WithMaxRetries(maxUpdateAttempts-1, retry.NewConstant(retryBackoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if !first {
			refetched, err := refetch(ctx)
			if err != nil {
				return err
			}
			working = refetched
			if !mutator(working) {
				return nil
			}
		}
		first = false

		if err := persist(ctx, working); err != nil {
			if errors.Is(err, repo.ErrVersionConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repo.ErrVersionConflict) {
			return nil, ErrRetryLimitExceeded
		}
		return nil, err
	}
	return working, nil
}

// ChangeNumber moves the account to newNumber. An account already owning
// newNumber is deleted and its identifier recorded under the moving
// account's original number. Calling with the account's current number is a
// no-op that touches neither the lock service nor the stores.
func (m *Manager) ChangeNumber(ctx context.Context, account *model.Account, newNumber string) (*model.Account, error) {
	if account.Number == newNumber {
		return account, nil
	}

	var updated *model.Account

	err := m.deps.Reclaim.LockAndPutPair(ctx, account.Number, newNumber, func(ctx context.Context) (*uuid.UUID, error) {
		m.cacheDelete(ctx, account)

		existing, err := m.GetByNumber(ctx, newNumber)
		if err != nil {
			return nil, err
		}

		var displaced *uuid.UUID
		if existing != nil {
			if err := m.purge(ctx, existing); err != nil {
				return nil, err
			}
			id := existing.ID
			displaced = &id
		}

		updated, err = m.updateWithRetries(ctx, account,
			func(*model.Account) bool { return true },
			func(ctx context.Context, a *model.Account) error {
				return m.deps.Accounts.ChangeNumber(ctx, a, newNumber)
			},
			func(ctx context.Context) (*model.Account, error) {
				return m.deps.Accounts.GetByID(ctx, account.ID)
			})
		if err != nil {
			return nil, err
		}
		return displaced, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the account, purges all dependent-subsystem state, and
// records a reclamation record for its number. The sequence is not
// transactional: a failure may leave the account partially deleted, and a
// retry completes the remaining steps (each sub-step is safe to repeat).
func (m *Manager) Delete(ctx context.Context, account *model.Account) error {
	err := m.deps.Reclaim.LockAndPut(ctx, account.Number, func(ctx context.Context) (*uuid.UUID, error) {
		if err := m.purge(ctx, account); err != nil {
			return nil, err
		}
		id := account.ID
		return &id, nil
	})
	if err != nil {
		log.Printf("failed to delete account %s: %v", account.ID, err)
		return err
	}
	return nil
}

func (m *Manager) purge(ctx context.Context, account *model.Account) error {
	// Remote deletions run concurrently with the local purge and are joined
	// before the durable record goes away.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.deps.SecureStorage.DeleteData(gctx, account.ID) })
	g.Go(func() error { return m.deps.SecureBackup.DeleteData(gctx, account.ID) })

	err := multierr.Combine(
		m.deps.Usernames.Delete(ctx, account.ID),
		m.deps.Profiles.DeleteAll(ctx, account.ID),
		m.deps.Keys.DeleteAll(ctx, account.ID),
		m.deps.Messages.Clear(ctx, account.ID),
	)
	err = multierr.Append(err, g.Wait())
	if err != nil {
		return err
	}

	m.cacheDelete(ctx, account)

	if err := m.deps.Accounts.DeleteByID(ctx, account.ID); err != nil {
		return err
	}

	for _, device := range account.Devices {
		if err := m.deps.Presence.DisplacePresence(ctx, account.ID, device.ID); err != nil {
			log.Printf("failed to displace presence for %s.%d: %v", account.ID, device.ID, err)
		}
	}
	return nil
}

func (m *Manager) cacheSet(ctx context.Context, account *model.Account) {
	if err := m.deps.Cache.Set(ctx, account); err != nil {
		log.Printf("account cache write failed: %v", err)
	}
}

func (m *Manager) cacheDelete(ctx context.Context, account *model.Account) {
	if err := m.deps.Cache.Delete(ctx, account); err != nil {
		log.Printf("account cache delete failed: %v", err)
	}
}
