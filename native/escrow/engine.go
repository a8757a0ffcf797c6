package escrow

import (
	"errors"
	"sync"

	"tokenswap/core/events"
	"tokenswap/core/types"
	nativecommon "tokenswap/native/common"
	"tokenswap/native/registry"
)

var errNilState = errors.New("escrow engine: state not configured")

const moduleName = "escrow"

// lockStripes bounds the number of per-asset mutexes. Operations on the same
// asset always hash to the same stripe, giving the read-validate-mutate
// sequences the per-record mutual exclusion the swap protocol requires.
const lockStripes = 64

type engineState interface {
	RecordGet(id [32]byte) (*Record, bool, error)
	RecordPut(*Record) error
}

type assetRegistry interface {
	CollectionOf(id [32]byte) (string, error)
	NameOf(id [32]byte) (string, error)
	OwnerOf(id [32]byte) ([20]byte, error)
	Transfer(id [32]byte, from, to [20]byte) error
	IssueCapability(caller [20]byte, id [32]byte) (*registry.Capability, error)
	AuthorizedTransfer(cap *registry.Capability, to [20]byte) error
	RevokeCapability(cap *registry.Capability) error
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine is the escrow record manager. It owns the full lifecycle of per-asset
// escrow records and the atomic swap protocol, wiring the record store and the
// asset registry together.
type Engine struct {
	state    engineState
	registry assetRegistry
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	locks    [lockStripes]sync.Mutex
}

// NewEngine creates an escrow engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the record store used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry configures the asset registry collaborator.
func (e *Engine) SetRegistry(reg assetRegistry) { e.registry = reg }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses configures the administrative pause view consulted before every
// mutating operation.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) lockFor(id [32]byte) *sync.Mutex {
	return &e.locks[int(id[0])%lockStripes]
}

// lockPair acquires the stripes of both assets in deterministic order and
// returns an unlock function. A shared stripe is locked once.
func (e *Engine) lockPair(a, b [32]byte) func() {
	la, lb := e.lockFor(a), e.lockFor(b)
	if la == lb {
		la.Lock()
		return la.Unlock
	}
	// Order by stripe address via the asset bytes that selected them.
	if int(a[0])%lockStripes > int(b[0])%lockStripes {
		la, lb = lb, la
	}
	la.Lock()
	lb.Lock()
	return func() {
		lb.Unlock()
		la.Unlock()
	}
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.registry == nil {
		return errors.New("escrow engine: registry not configured")
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

func (e *Engine) loadRecord(id [32]byte) (*Record, error) {
	record, ok, err := e.state.RecordGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTradingDisabled
	}
	return record, nil
}

func (e *Engine) storeRecord(record *Record) error {
	sanitized, err := SanitizeRecord(record)
	if err != nil {
		return err
	}
	return e.state.RecordPut(sanitized)
}

// requireOwner verifies the caller currently owns the asset.
func (e *Engine) requireOwner(caller [20]byte, id [32]byte) error {
	owner, err := e.registry.OwnerOf(id)
	if err != nil {
		return err
	}
	if owner != caller {
		return ErrNotOwner
	}
	return nil
}

// Initialize places an asset under escrow management. The declared collection
// and token name must equal the asset's actual identity; the record starts
// armed with a freshly issued transfer authority and no acceptance criteria.
// At most one record can ever exist per asset.
func (e *Engine) Initialize(caller [20]byte, assetID [32]byte, declaredCollection, declaredName string) error {
	if err := e.ready(); err != nil {
		return err
	}
	lock := e.lockFor(assetID)
	lock.Lock()
	defer lock.Unlock()
	if _, ok, err := e.state.RecordGet(assetID); err != nil {
		return err
	} else if ok {
		return ErrAlreadyManaged
	}
	if err := e.requireOwner(caller, assetID); err != nil {
		return err
	}
	collection, err := e.registry.CollectionOf(assetID)
	if err != nil {
		return err
	}
	name, err := e.registry.NameOf(assetID)
	if err != nil {
		return err
	}
	if collection != declaredCollection || name != declaredName {
		return ErrAssetMismatch
	}
	cap, err := e.registry.IssueCapability(caller, assetID)
	if err != nil {
		return err
	}
	record := &Record{
		AssetID: assetID,
		Armed:   true,
		Secret:  cap.Secret(),
	}
	if err := e.storeRecord(record); err != nil {
		return err
	}
	e.emit(NewInitializedEvent(record))
	return nil
}

// Start opens trading on the record, naming the caller as lister and replacing
// the acceptance criteria wholesale. A disarmed record is re-armed when cap is
// supplied; cap must have been issued for this exact asset. Starting resets
// the match-all flag.
func (e *Engine) Start(caller [20]byte, assetID [32]byte, cap *registry.Capability, collections, tokens []string) error {
	if err := e.ready(); err != nil {
		return err
	}
	lock := e.lockFor(assetID)
	lock.Lock()
	defer lock.Unlock()
	record, err := e.loadRecord(assetID)
	if err != nil {
		return err
	}
	if err := e.requireOwner(caller, assetID); err != nil {
		return err
	}
	if cap != nil && cap.AssetID() != assetID {
		return ErrObjectMismatch
	}
	if !record.Armed {
		if cap == nil {
			return ErrTradingDisabled
		}
		record.Armed = true
		record.Secret = cap.Secret()
	} else if cap != nil {
		record.Secret = cap.Secret()
	}
	record.Listed = true
	record.Lister = caller
	record.MatchingCollections = append([]string(nil), collections...)
	record.MatchingTokens = append([]string(nil), tokens...)
	record.MatchAllInCollections = false
	if err := e.storeRecord(record); err != nil {
		return err
	}
	e.emit(NewStartedEvent(record))
	return nil
}

// AddMatchingNames appends to both acceptance criteria sequences. An explicit
// whitelist addition narrows intent back to exact-name matching, so the
// match-all flag is always reset.
func (e *Engine) AddMatchingNames(caller [20]byte, assetID [32]byte, collections, tokens []string) error {
	if err := e.ready(); err != nil {
		return err
	}
	lock := e.lockFor(assetID)
	lock.Lock()
	defer lock.Unlock()
	record, err := e.loadRecord(assetID)
	if err != nil {
		return err
	}
	if err := e.requireOwner(caller, assetID); err != nil {
		return err
	}
	if !record.Listed {
		return ErrNotStarted
	}
	record.MatchingCollections = append(record.MatchingCollections, collections...)
	record.MatchingTokens = append(record.MatchingTokens, tokens...)
	record.MatchAllInCollections = false
	if err := e.storeRecord(record); err != nil {
		return err
	}
	e.emit(NewNamesAddedEvent(record))
	return nil
}

// ClearMatchingNames empties both criteria sequences and the match-all flag.
// Trading stays open and armed, it just no longer matches anything.
func (e *Engine) ClearMatchingNames(caller [20]byte, assetID [32]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	lock := e.lockFor(assetID)
	lock.Lock()
	defer lock.Unlock()
	record, err := e.loadRecord(assetID)
	if err != nil {
		return err
	}
	if err := e.requireOwner(caller, assetID); err != nil {
		return err
	}
	if !record.Listed {
		return ErrNotStarted
	}
	record.MatchingCollections = nil
	record.MatchingTokens = nil
	record.MatchAllInCollections = false
	if err := e.storeRecord(record); err != nil {
		return err
	}
	e.emit(NewClearedEvent(record))
	return nil
}

// SetMatchAllInCollections accepts any token name within the listed
// collections. The collection whitelist must be non-empty at the moment the
// flag is set; the token whitelist is emptied.
func (e *Engine) SetMatchAllInCollections(caller [20]byte, assetID [32]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	lock := e.lockFor(assetID)
	lock.Lock()
	defer lock.Unlock()
	record, err := e.loadRecord(assetID)
	if err != nil {
		return err
	}
	if err := e.requireOwner(caller, assetID); err != nil {
		return err
	}
	if !record.Listed {
		return ErrNotStarted
	}
	if len(record.MatchingCollections) == 0 {
		return ErrTradingDisabled
	}
	record.MatchingTokens = nil
	record.MatchAllInCollections = true
	if err := e.storeRecord(record); err != nil {
		return err
	}
	e.emit(NewMatchAllSetEvent(record))
	return nil
}

// Close clears the lister and all acceptance criteria. The transfer authority
// remains held, so the owner can start again later. The operation is
// idempotent.
func (e *Engine) Close(caller [20]byte, assetID [32]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	lock := e.lockFor(assetID)
	lock.Lock()
	defer lock.Unlock()
	record, err := e.loadRecord(assetID)
	if err != nil {
		return err
	}
	if err := e.requireOwner(caller, assetID); err != nil {
		return err
	}
	if !record.closeListing() {
		return nil
	}
	if err := e.storeRecord(record); err != nil {
		return err
	}
	e.emit(NewClosedEvent(record))
	return nil
}

// Freeze closes the record and extracts its transfer authority, returning the
// capability to the caller for reuse elsewhere. The record is disarmed until a
// later Start re-arms it.
func (e *Engine) Freeze(caller [20]byte, assetID [32]byte) (*registry.Capability, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	lock := e.lockFor(assetID)
	lock.Lock()
	defer lock.Unlock()
	record, err := e.loadRecord(assetID)
	if err != nil {
		return nil, err
	}
	if err := e.requireOwner(caller, assetID); err != nil {
		return nil, err
	}
	if !record.Armed {
		return nil, ErrTradingDisabled
	}
	cap := registry.Rehydrate(assetID, record.Secret)
	record.closeListing()
	record.Armed = false
	record.Secret = [32]byte{}
	if err := e.storeRecord(record); err != nil {
		return nil, err
	}
	e.emit(NewFrozenEvent(record))
	return cap, nil
}

// IsTradable reports whether a record exists for the asset and holds a
// transfer authority. Pure read; no ownership check.
func (e *Engine) IsTradable(assetID [32]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	record, ok, err := e.state.RecordGet(assetID)
	if err != nil {
		return false, err
	}
	return ok && record.Armed, nil
}

// Record returns a copy of the asset's escrow record for inspection.
func (e *Engine) Record(assetID [32]byte) (*Record, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	record, ok, err := e.state.RecordGet(assetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTradingDisabled
	}
	return record.Clone(), nil
}
