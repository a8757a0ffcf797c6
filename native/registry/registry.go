package registry

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"

	"tokenswap/core/events"
	"tokenswap/state"
)

var (
	errNilState = errors.New("registry: state not configured")

	// ErrAssetNotFound is returned when no asset exists for the identifier.
	ErrAssetNotFound = errors.New("registry: asset not found")
	// ErrAssetExists is returned by Mint when the derived identifier is
	// already taken.
	ErrAssetExists = errors.New("registry: asset already exists")
	// ErrNotOwner is returned when the caller is not the asset's current
	// owner.
	ErrNotOwner = errors.New("registry: caller is not the asset owner")
	// ErrCapabilityMismatch is returned when a capability does not
	// correspond to the asset's registered transfer authority.
	ErrCapabilityMismatch = errors.New("registry: capability does not match registered authority")
)

type ledgerState interface {
	KVPut(key []byte, value interface{}) error
	KVGet(key []byte, out interface{}) (bool, error)
	KVDelete(key []byte) error
}

// Ledger owns the asset records and the transfer-capability registry. All
// mutations are serialized by an internal mutex so a capability can never
// authorize two racing transfers.
type Ledger struct {
	mu      sync.Mutex
	state   ledgerState
	emitter events.Emitter
}

// NewLedger creates an asset ledger with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewLedger(st *state.Store) *Ledger {
	return &Ledger{state: st, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used by the ledger. Passing nil
// resets the emitter to a no-op implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) emit(evt events.Event) {
	if l == nil || l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(evt)
}

func (l *Ledger) loadAsset(id [32]byte) (*Asset, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	asset := new(Asset)
	ok, err := l.state.KVGet(state.AssetKey(id), asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssetNotFound
	}
	return asset, nil
}

func (l *Ledger) storeAsset(a *Asset) error {
	sanitized, err := SanitizeAsset(a)
	if err != nil {
		return err
	}
	return l.state.KVPut(state.AssetKey(sanitized.ID), sanitized)
}

// Mint registers a new asset owned by its creator. The identifier is derived
// from the creator, collection and name; minting the same identity twice fails
// with ErrAssetExists.
func (l *Ledger) Mint(creator [20]byte, collection, name string) (*Asset, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	trimmed := &Asset{
		Creator:    creator,
		Collection: collection,
		Name:       name,
		Owner:      creator,
	}
	trimmed.ID = AssetID(creator, strings.TrimSpace(collection), strings.TrimSpace(name))
	sanitized, err := SanitizeAsset(trimmed)
	if err != nil {
		return nil, err
	}
	exists, err := l.state.KVGet(state.AssetKey(sanitized.ID), nil)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAssetExists
	}
	if err := l.state.KVPut(state.AssetKey(sanitized.ID), sanitized); err != nil {
		return nil, err
	}
	l.emit(AssetMinted{Asset: sanitized.Clone()})
	return sanitized.Clone(), nil
}

// Get returns a copy of the asset record.
func (l *Ledger) Get(id [32]byte) (*Asset, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	asset, err := l.loadAsset(id)
	if err != nil {
		return nil, err
	}
	return asset.Clone(), nil
}

// CollectionOf returns the collection the asset belongs to.
func (l *Ledger) CollectionOf(id [32]byte) (string, error) {
	asset, err := l.Get(id)
	if err != nil {
		return "", err
	}
	return asset.Collection, nil
}

// NameOf returns the asset's token name.
func (l *Ledger) NameOf(id [32]byte) (string, error) {
	asset, err := l.Get(id)
	if err != nil {
		return "", err
	}
	return asset.Name, nil
}

// OwnerOf returns the asset's current owner.
func (l *Ledger) OwnerOf(id [32]byte) ([20]byte, error) {
	asset, err := l.Get(id)
	if err != nil {
		return [20]byte{}, err
	}
	return asset.Owner, nil
}

// Transfer moves the asset from its current owner to the recipient. The from
// address must be the current owner. Transferring to the current owner is a
// no-op.
func (l *Ledger) Transfer(id [32]byte, from, to [20]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transferLocked(id, from, to, false)
}

func (l *Ledger) transferLocked(id [32]byte, from, to [20]byte, forced bool) error {
	asset, err := l.loadAsset(id)
	if err != nil {
		return err
	}
	if !forced && asset.Owner != from {
		return ErrNotOwner
	}
	if asset.Owner == to {
		return nil
	}
	previous := asset.Owner
	asset.Owner = to
	if err := l.storeAsset(asset); err != nil {
		return err
	}
	l.emit(AssetTransferred{ID: id, From: previous, To: to, Forced: forced})
	return nil
}

// IssueCapability mints a transfer authority for the asset. Only the current
// owner may issue one. The digest of the capability secret is persisted so the
// returned value can later be proven against the ledger; issuing again
// replaces any previously registered authority.
func (l *Ledger) IssueCapability(caller [20]byte, id [32]byte) (*Capability, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	asset, err := l.loadAsset(id)
	if err != nil {
		return nil, err
	}
	if asset.Owner != caller {
		return nil, ErrNotOwner
	}
	cap := &Capability{assetID: id}
	if _, err := rand.Read(cap.secret[:]); err != nil {
		return nil, fmt.Errorf("registry: generate capability secret: %w", err)
	}
	auth := &authority{Digest: cap.digest()}
	if err := l.state.KVPut(state.AuthorityKey(id), auth); err != nil {
		return nil, err
	}
	return cap, nil
}

// AuthorizedTransfer moves the asset to the recipient on the strength of the
// supplied capability, regardless of the asset's current owner. Each use bumps
// the persisted authority counter inside the same critical section, so a
// duplicated capability value cannot win two races.
func (l *Ledger) AuthorizedTransfer(cap *Capability, to [20]byte) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if cap == nil {
		return ErrCapabilityMismatch
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	auth := new(authority)
	ok, err := l.state.KVGet(state.AuthorityKey(cap.assetID), auth)
	if err != nil {
		return err
	}
	if !ok || auth.Digest != cap.digest() {
		return ErrCapabilityMismatch
	}
	auth.Uses++
	if err := l.state.KVPut(state.AuthorityKey(cap.assetID), auth); err != nil {
		return err
	}
	asset, err := l.loadAsset(cap.assetID)
	if err != nil {
		return err
	}
	return l.transferLocked(cap.assetID, asset.Owner, to, true)
}

// RevokeCapability deletes the registered authority matching the supplied
// capability, rendering it void. Revoking a capability that is not currently
// registered fails with ErrCapabilityMismatch.
func (l *Ledger) RevokeCapability(cap *Capability) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if cap == nil {
		return ErrCapabilityMismatch
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	auth := new(authority)
	ok, err := l.state.KVGet(state.AuthorityKey(cap.assetID), auth)
	if err != nil {
		return err
	}
	if !ok || auth.Digest != cap.digest() {
		return ErrCapabilityMismatch
	}
	return l.state.KVDelete(state.AuthorityKey(cap.assetID))
}
