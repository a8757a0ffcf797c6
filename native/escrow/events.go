package escrow

import (
	"encoding/hex"
	"strconv"

	"tokenswap/core/types"
)

const (
	EventTypeInitialized  = "escrow.initialized"
	EventTypeStarted      = "escrow.started"
	EventTypeNamesAdded   = "escrow.names_added"
	EventTypeCleared      = "escrow.cleared"
	EventTypeMatchAllSet  = "escrow.match_all_set"
	EventTypeClosed       = "escrow.closed"
	EventTypeFrozen       = "escrow.frozen"
	EventTypeSwapExecuted = "escrow.swap_executed"
)

// NewInitializedEvent returns the canonical payload for an asset entering
// escrow management.
func NewInitializedEvent(r *Record) *types.Event { return newRecordEvent(EventTypeInitialized, r) }

// NewStartedEvent returns the payload emitted when trading is opened on a
// record.
func NewStartedEvent(r *Record) *types.Event { return newRecordEvent(EventTypeStarted, r) }

// NewNamesAddedEvent returns the payload emitted when acceptance criteria are
// appended.
func NewNamesAddedEvent(r *Record) *types.Event { return newRecordEvent(EventTypeNamesAdded, r) }

// NewClearedEvent returns the payload emitted when acceptance criteria are
// emptied.
func NewClearedEvent(r *Record) *types.Event { return newRecordEvent(EventTypeCleared, r) }

// NewMatchAllSetEvent returns the payload emitted when a record switches to
// collection-wide matching.
func NewMatchAllSetEvent(r *Record) *types.Event { return newRecordEvent(EventTypeMatchAllSet, r) }

// NewClosedEvent returns the payload emitted when a listing is closed.
func NewClosedEvent(r *Record) *types.Event { return newRecordEvent(EventTypeClosed, r) }

// NewFrozenEvent returns the payload emitted when a record's transfer
// authority is extracted.
func NewFrozenEvent(r *Record) *types.Event { return newRecordEvent(EventTypeFrozen, r) }

// NewSwapExecutedEvent returns the payload emitted when a flash offer settles.
func NewSwapExecutedEvent(offerer, previousOwner [20]byte, offeredID [32]byte, target *Record) *types.Event {
	attrs := map[string]string{
		"offerer":       hex.EncodeToString(offerer[:]),
		"previousOwner": hex.EncodeToString(previousOwner[:]),
		"offeredAsset":  hex.EncodeToString(offeredID[:]),
	}
	if target != nil {
		attrs["targetAsset"] = hex.EncodeToString(target.AssetID[:])
	}
	return &types.Event{Type: EventTypeSwapExecuted, Attributes: attrs}
}

func newRecordEvent(eventType string, r *Record) *types.Event {
	attrs := make(map[string]string)
	if r == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["asset"] = hex.EncodeToString(r.AssetID[:])
	attrs["armed"] = strconv.FormatBool(r.Armed)
	attrs["listed"] = strconv.FormatBool(r.Listed)
	if r.Listed {
		attrs["lister"] = hex.EncodeToString(r.Lister[:])
	}
	attrs["collections"] = strconv.Itoa(len(r.MatchingCollections))
	attrs["tokens"] = strconv.Itoa(len(r.MatchingTokens))
	attrs["matchAll"] = strconv.FormatBool(r.MatchAllInCollections)
	return &types.Event{Type: eventType, Attributes: attrs}
}
