package escrow

import (
	"tokenswap/native/registry"
)

// FlashOffer atomically swaps an offered asset against a listed target asset.
// The offerer must own the offered asset; the target record must be armed,
// open, listed by the target's actual current owner, and its acceptance
// criteria must admit the offered asset's collection and name. On success the
// offered asset moves to the target's owner, the target moves to the offerer,
// and the target listing is consumed so it cannot be replayed.
//
// An offered asset whose own record is absent or disarmed is accepted as-is;
// a present record is closed best-effort so the freshly received asset is not
// still listed under the previous owner's terms. Offering an asset against its
// own listing fails with ErrTradingDisabled: the cleanup consumes the listing
// before the target validation runs.
func (e *Engine) FlashOffer(offerer [20]byte, offeredID, targetID [32]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	unlock := e.lockPair(offeredID, targetID)
	defer unlock()

	owner, err := e.registry.OwnerOf(offeredID)
	if err != nil {
		return err
	}
	if owner != offerer {
		return ErrNotOwner
	}

	// Stale-terms cleanup on the offered side. Failures here are the one
	// tolerated best-effort path of the protocol.
	if offered, ok, err := e.state.RecordGet(offeredID); err == nil && ok {
		if offered.closeListing() {
			if putErr := e.storeRecord(offered); putErr == nil {
				e.emit(NewClosedEvent(offered))
			}
		}
	}

	target, err := e.loadRecord(targetID)
	if err != nil {
		return err
	}
	if !target.Armed || !target.Listed {
		return ErrTradingDisabled
	}
	targetOwner, err := e.registry.OwnerOf(targetID)
	if err != nil {
		return err
	}
	if target.Lister != targetOwner {
		return ErrOwnerChanged
	}
	collection, err := e.registry.CollectionOf(offeredID)
	if err != nil {
		return err
	}
	name, err := e.registry.NameOf(offeredID)
	if err != nil {
		return err
	}
	if !target.matches(collection, name) {
		return ErrNotMatched
	}

	// Consume the listing before moving anything; restore it if either
	// transfer leg fails so no partial swap persists.
	prior := target.Clone()
	target.closeListing()
	if err := e.storeRecord(target); err != nil {
		return err
	}
	if err := e.registry.Transfer(offeredID, offerer, targetOwner); err != nil {
		e.restoreRecord(prior)
		return err
	}
	cap := registry.Rehydrate(targetID, target.Secret)
	if err := e.registry.AuthorizedTransfer(cap, offerer); err != nil {
		// Should the transfer back fail as well, the listing stays consumed:
		// the offered asset sits with the target owner until resolved out of
		// band, but the stale listing can never settle a second time.
		if backErr := e.registry.Transfer(offeredID, targetOwner, offerer); backErr == nil {
			e.restoreRecord(prior)
		}
		return err
	}
	e.emit(NewSwapExecutedEvent(offerer, targetOwner, offeredID, target))
	return nil
}

func (e *Engine) restoreRecord(prior *Record) {
	if prior == nil {
		return
	}
	// Rollback write; an error here means the backing store itself failed
	// and the original operation error is the one worth reporting.
	_ = e.state.RecordPut(prior)
}
