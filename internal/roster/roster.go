package roster

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store persists whole roster tables. Replace is a full rewrite of one role.
type Store interface {
	Load(ctx context.Context, role Role) ([]Identity, error)
	Replace(ctx context.Context, role Role, idents []Identity) error
}

// Roster serves lookups and imports on top of a Store.
//
// Imports and device binding are read-modify-rewrite cycles with no lock held
// between the read and the write: two overlapping imports for the same role
// can lose one another's rows. That is acceptable for a single-admin workflow.
type Roster struct {
	store Store
	hash  func(string) (string, error)
}

// Option configures a Roster.
type Option func(*Roster)

// WithCredentialHasher hashes credentials of newly imported identities before they are stored.
func WithCredentialHasher(h func(string) (string, error)) Option {
	return func(r *Roster) { r.hash = h }
}

func New(store Store, opts ...Option) *Roster {
	r := &Roster{store: store}
	for _, o := range opts {
		o(r)
	}
	return r
}

// List returns every identity of role in stored order.
func (r *Roster) List(ctx context.Context, role Role) ([]Identity, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return r.store.Load(ctx, role)
}

// Lookup finds an identity by exact match on the trimmed id.
func (r *Roster) Lookup(ctx context.Context, role Role, id string) (Identity, error) {
	return r.find(ctx, role, func(i Identity) bool { return NormalizeID(i.ID) == NormalizeID(id) })
}

// LookupByContact finds an identity by its contact number.
func (r *Roster) LookupByContact(ctx context.Context, role Role, contact string) (Identity, error) {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return Identity{}, ErrNotFound
	}
	return r.find(ctx, role, func(i Identity) bool { return strings.TrimSpace(i.Contact) == contact })
}

// LookupAny tries each role in order and returns the first match.
func (r *Roster) LookupAny(ctx context.Context, id string, roles ...Role) (Identity, error) {
	for _, role := range roles {
		ident, err := r.Lookup(ctx, role, id)
		if err == nil {
			return ident, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Identity{}, err
		}
	}
	return Identity{}, ErrNotFound
}

// MergeImport merges rows into role's table and rewrites it.
// It returns the number of rows processed.
func (r *Roster) MergeImport(ctx context.Context, role Role, busID string, rows []Identity) (int, error) {
	if !role.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	existing, err := r.store.Load(ctx, role)
	if err != nil {
		return 0, err
	}
	merged, n := Merge(existing, role, busID, rows)
	if r.hash != nil {
		// Merge keeps existing identities in place, so only appended rows and
		// rewritten drivers can carry a new plaintext credential.
		for i := range merged {
			if merged[i].Credential == "" || (i < len(existing) && merged[i].Credential == existing[i].Credential) {
				continue
			}
			h, err := r.hash(merged[i].Credential)
			if err != nil {
				return 0, fmt.Errorf("hash credential for %s: %w", merged[i].ID, err)
			}
			merged[i].Credential = h
		}
	}
	for _, ident := range merged {
		if err := ident.Validate(); err != nil {
			return 0, err
		}
	}
	if err := r.store.Replace(ctx, role, merged); err != nil {
		return 0, err
	}
	return n, nil
}

// BindDevice records device against an identity that has none yet.
// Binding is one-way: a different device on an already bound identity fails.
func (r *Roster) BindDevice(ctx context.Context, role Role, id, device string) error {
	device = strings.TrimSpace(device)
	idents, err := r.store.Load(ctx, role)
	if err != nil {
		return err
	}
	for i := range idents {
		if NormalizeID(idents[i].ID) != NormalizeID(id) {
			continue
		}
		if idents[i].DeviceBound() {
			if strings.TrimSpace(idents[i].DeviceID) == device {
				return nil
			}
			return ErrDeviceAlreadyBound
		}
		idents[i].DeviceID = device
		return r.store.Replace(ctx, role, idents)
	}
	return ErrNotFound
}

// Rehash runs every stored credential of role through the configured hasher.
// It returns how many credentials changed.
func (r *Roster) Rehash(ctx context.Context, role Role) (int, error) {
	if r.hash == nil {
		return 0, nil
	}
	idents, err := r.store.Load(ctx, role)
	if err != nil {
		return 0, err
	}
	changed := 0
	for i := range idents {
		if idents[i].Credential == "" {
			continue
		}
		h, err := r.hash(idents[i].Credential)
		if err != nil {
			return 0, fmt.Errorf("hash credential for %s: %w", idents[i].ID, err)
		}
		if h != idents[i].Credential {
			idents[i].Credential = h
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}
	if err := r.store.Replace(ctx, role, idents); err != nil {
		return 0, err
	}
	return changed, nil
}

func (r *Roster) find(ctx context.Context, role Role, match func(Identity) bool) (Identity, error) {
	idents, err := r.List(ctx, role)
	if err != nil {
		return Identity{}, err
	}
	for _, ident := range idents {
		if match(ident) {
			return ident, nil
		}
	}
	return Identity{}, ErrNotFound
}
