package escrow

import (
	"errors"
	"sync"
	"testing"
)

// swapFixture arms and lists a target asset accepting collection "C2" name
// "N2", and mints a matching offered asset for the offerer.
func swapFixture(t *testing.T) (*Engine, *mockState, *mockRegistry, [20]byte, [20]byte, [32]byte, [32]byte) {
	t.Helper()
	engine, state, reg := newTestEngine()
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)
	targetID := newTestAssetID(0xA1)
	offeredID := newTestAssetID(0xB2)
	reg.addAsset(targetID, "C1", "N1", seller)
	reg.addAsset(offeredID, "C2", "N2", buyer)
	if err := engine.Initialize(seller, targetID, "C1", "N1"); err != nil {
		t.Fatalf("initialize target: %v", err)
	}
	if err := engine.Start(seller, targetID, nil, []string{"C2"}, []string{"N2"}); err != nil {
		t.Fatalf("start target: %v", err)
	}
	return engine, state, reg, seller, buyer, targetID, offeredID
}

func TestFlashOfferSwapsOwnershipAtomically(t *testing.T) {
	engine, state, reg, seller, buyer, targetID, offeredID := swapFixture(t)

	if err := engine.FlashOffer(buyer, offeredID, targetID); err != nil {
		t.Fatalf("flash offer: %v", err)
	}
	if owner, _ := reg.OwnerOf(offeredID); owner != seller {
		t.Fatalf("expected offered asset to move to the seller")
	}
	if owner, _ := reg.OwnerOf(targetID); owner != buyer {
		t.Fatalf("expected target asset to move to the offerer")
	}
	record := state.records[targetID]
	if record.Listed || len(record.MatchingCollections) != 0 || len(record.MatchingTokens) != 0 {
		t.Fatalf("expected consumed listing, got %+v", record)
	}
	if record.Status() != StatusArmedClosed {
		t.Fatalf("consumed record must stay armed so the new owner can relist, got %s", record.Status())
	}
}

func TestFlashOfferRejectsNonOwnerOfferer(t *testing.T) {
	engine, _, _, seller, _, targetID, offeredID := swapFixture(t)

	if err := engine.FlashOffer(seller, offeredID, targetID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestFlashOfferNoDoubleSpend(t *testing.T) {
	engine, _, reg, _, buyer, targetID, offeredID := swapFixture(t)
	otherID := newTestAssetID(0xC3)
	reg.addAsset(otherID, "C2", "N2", buyer)

	if err := engine.FlashOffer(buyer, offeredID, targetID); err != nil {
		t.Fatalf("first flash offer: %v", err)
	}
	// The listing is consumed; a second offer against the same record must
	// fail even though the criteria would have matched.
	err := engine.FlashOffer(buyer, otherID, targetID)
	if !errors.Is(err, ErrTradingDisabled) && !errors.Is(err, ErrOwnerChanged) {
		t.Fatalf("expected ErrTradingDisabled or ErrOwnerChanged, got %v", err)
	}
}

func TestFlashOfferMatchEvaluation(t *testing.T) {
	cases := []struct {
		name       string
		collection string
		token      string
		wantErr    error
	}{
		{name: "exact match", collection: "C2", token: "N2", wantErr: nil},
		{name: "wrong token name", collection: "C2", token: "N3", wantErr: ErrNotMatched},
		{name: "wrong collection", collection: "C3", token: "N2", wantErr: ErrNotMatched},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, _, reg, _, buyer, targetID, _ := swapFixture(t)
			offeredID := newTestAssetID(0xD4)
			reg.addAsset(offeredID, tc.collection, tc.token, buyer)

			err := engine.FlashOffer(buyer, offeredID, targetID)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("expected match, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestFlashOfferMatchAllIgnoresTokenNames(t *testing.T) {
	engine, _, reg, seller, buyer, targetID, _ := swapFixture(t)
	if err := engine.SetMatchAllInCollections(seller, targetID); err != nil {
		t.Fatalf("set match all: %v", err)
	}
	offeredID := newTestAssetID(0xD4)
	reg.addAsset(offeredID, "C2", "AnyNameAtAll", buyer)

	if err := engine.FlashOffer(buyer, offeredID, targetID); err != nil {
		t.Fatalf("expected collection-wide match, got %v", err)
	}
}

func TestFlashOfferDisarmedTargetFails(t *testing.T) {
	engine, _, _, seller, buyer, targetID, offeredID := swapFixture(t)
	if _, err := engine.Freeze(seller, targetID); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	// Even with criteria repopulated the record stays inert without a
	// transfer authority.
	if err := engine.FlashOffer(buyer, offeredID, targetID); !errors.Is(err, ErrTradingDisabled) {
		t.Fatalf("expected ErrTradingDisabled, got %v", err)
	}
}

func TestFlashOfferOwnerChangedGuard(t *testing.T) {
	engine, _, reg, _, buyer, targetID, offeredID := swapFixture(t)
	// Ownership moves out-of-band after the listing was opened.
	reg.assets[targetID].owner = newTestAddress(0x07)

	if err := engine.FlashOffer(buyer, offeredID, targetID); !errors.Is(err, ErrOwnerChanged) {
		t.Fatalf("expected ErrOwnerChanged, got %v", err)
	}
}

func TestFlashOfferClosesOfferedListing(t *testing.T) {
	engine, state, _, _, buyer, targetID, offeredID := swapFixture(t)
	if err := engine.Initialize(buyer, offeredID, "C2", "N2"); err != nil {
		t.Fatalf("initialize offered: %v", err)
	}
	if err := engine.Start(buyer, offeredID, nil, []string{"C1"}, []string{"N1"}); err != nil {
		t.Fatalf("start offered: %v", err)
	}

	if err := engine.FlashOffer(buyer, offeredID, targetID); err != nil {
		t.Fatalf("flash offer: %v", err)
	}
	offered := state.records[offeredID]
	if offered.Listed || len(offered.MatchingCollections) != 0 {
		t.Fatalf("expected offered listing cleared so the asset is not for sale under stale terms, got %+v", offered)
	}
	// The offered record keeps its authority; only the listing is gone.
	if !offered.Armed {
		t.Fatalf("expected offered record to stay armed")
	}
}

func TestFlashOfferSelfOfferRejected(t *testing.T) {
	engine, _, reg := newTestEngine()
	owner := newTestAddress(0x01)
	assetID := newTestAssetID(0xA1)
	reg.addAsset(assetID, "C1", "N1", owner)
	if err := engine.Initialize(owner, assetID, "C1", "N1"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := engine.Start(owner, assetID, nil, []string{"C1"}, []string{"N1"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Offering an asset against its own listing consumes the listing during
	// the stale-terms cleanup, so the swap is rejected.
	if err := engine.FlashOffer(owner, assetID, assetID); !errors.Is(err, ErrTradingDisabled) {
		t.Fatalf("expected ErrTradingDisabled, got %v", err)
	}
}

func TestFlashOfferRollsBackOnTransferFailure(t *testing.T) {
	engine, state, reg, seller, buyer, targetID, offeredID := swapFixture(t)
	reg.failTransfer = true

	if err := engine.FlashOffer(buyer, offeredID, targetID); err == nil {
		t.Fatalf("expected transfer failure to surface")
	}
	record := state.records[targetID]
	if !record.Listed || record.Lister != seller {
		t.Fatalf("expected listing restored after failed transfer, got %+v", record)
	}
	if len(record.MatchingCollections) != 1 || record.MatchingCollections[0] != "C2" {
		t.Fatalf("expected criteria restored, got %+v", record)
	}
	if owner, _ := reg.OwnerOf(offeredID); owner != buyer {
		t.Fatalf("expected offered asset untouched")
	}
}

func TestFlashOfferConcurrentOffersSingleWinner(t *testing.T) {
	engine, state, reg, _, buyer, targetID, offeredID := swapFixture(t)
	rival := newTestAddress(0x05)
	rivalID := newTestAssetID(0xC3)
	reg.addAsset(rivalID, "C2", "N2", rival)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = engine.FlashOffer(buyer, offeredID, targetID)
	}()
	go func() {
		defer wg.Done()
		errs[1] = engine.FlashOffer(rival, rivalID, targetID)
	}()
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		if !errors.Is(err, ErrTradingDisabled) && !errors.Is(err, ErrOwnerChanged) {
			t.Fatalf("loser must observe the consumed listing, got %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one settled offer, got %d", wins)
	}
	owner, err := reg.OwnerOf(targetID)
	if err != nil {
		t.Fatalf("owner of target: %v", err)
	}
	if owner != buyer && owner != rival {
		t.Fatalf("expected the target with one of the offerers")
	}
	record := state.records[targetID]
	if record.Listed || record.Status() != StatusArmedClosed {
		t.Fatalf("expected consumed armed record, got %+v", record)
	}
}

func TestFlashOfferDoubleFailureKeepsListingConsumed(t *testing.T) {
	engine, state, reg, seller, buyer, targetID, offeredID := swapFixture(t)
	reg.failAuthorized = true
	// First Transfer leg succeeds, the compensating transfer back fails.
	reg.transfersUntilFail = 2

	if err := engine.FlashOffer(buyer, offeredID, targetID); err == nil {
		t.Fatalf("expected authorized transfer failure to surface")
	}
	// The listing must not reopen: a second identical offer cannot settle the
	// same terms again.
	record := state.records[targetID]
	if record.Listed {
		t.Fatalf("expected listing to stay consumed, got %+v", record)
	}
	if owner, _ := reg.OwnerOf(targetID); owner != seller {
		t.Fatalf("expected target asset untouched")
	}
	otherID := newTestAssetID(0xC3)
	reg.addAsset(otherID, "C2", "N2", buyer)
	if err := engine.FlashOffer(buyer, otherID, targetID); !errors.Is(err, ErrTradingDisabled) {
		t.Fatalf("expected ErrTradingDisabled on the consumed listing, got %v", err)
	}
}

func TestFlashOfferRollsBackOnAuthorizedTransferFailure(t *testing.T) {
	engine, state, reg, seller, buyer, targetID, offeredID := swapFixture(t)
	reg.failAuthorized = true

	if err := engine.FlashOffer(buyer, offeredID, targetID); err == nil {
		t.Fatalf("expected authorized transfer failure to surface")
	}
	record := state.records[targetID]
	if !record.Listed || record.Lister != seller {
		t.Fatalf("expected listing restored, got %+v", record)
	}
	if owner, _ := reg.OwnerOf(offeredID); owner != buyer {
		t.Fatalf("expected offered asset returned to the offerer")
	}
	if owner, _ := reg.OwnerOf(targetID); owner != seller {
		t.Fatalf("expected target asset untouched")
	}
}
