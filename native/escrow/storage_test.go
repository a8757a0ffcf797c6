package escrow

import (
	"reflect"
	"testing"

	"tokenswap/state"
	"tokenswap/storage"
)

func newTestStateStore() *StateStore {
	return NewStateStore(state.NewStore(storage.NewMemDB()))
}

func TestStateStoreRoundTrip(t *testing.T) {
	store := newTestStateStore()
	record := &Record{
		AssetID:             newTestAssetID(0xA1),
		Armed:               true,
		Secret:              [32]byte{0x01, 0x02},
		Listed:              true,
		Lister:              newTestAddress(0x01),
		MatchingCollections: []string{"C1", "C2"},
		MatchingTokens:      []string{"N1"},
	}

	if err := store.RecordPut(record); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, ok, err := store.RecordGet(record.AssetID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("expected record to exist")
	}
	if !reflect.DeepEqual(loaded, record) {
		t.Fatalf("round trip mismatch:\n  stored %+v\n  loaded %+v", record, loaded)
	}
}

func TestStateStoreMissingRecord(t *testing.T) {
	store := newTestStateStore()
	record, ok, err := store.RecordGet(newTestAssetID(0xEE))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok || record != nil {
		t.Fatalf("expected missing record, got ok=%v record=%+v", ok, record)
	}
}

func TestStateStoreRejectsInvariantViolations(t *testing.T) {
	store := newTestStateStore()
	cases := []struct {
		name   string
		record *Record
	}{
		{
			name: "disarmed record holding a secret",
			record: &Record{
				AssetID: newTestAssetID(0xA1),
				Secret:  [32]byte{0x01},
			},
		},
		{
			name: "unlisted record naming a lister",
			record: &Record{
				AssetID: newTestAssetID(0xA1),
				Armed:   true,
				Secret:  [32]byte{0x01},
				Lister:  newTestAddress(0x01),
			},
		},
		{
			name: "match-all record carrying token names",
			record: &Record{
				AssetID:               newTestAssetID(0xA1),
				Armed:                 true,
				Secret:                [32]byte{0x01},
				Listed:                true,
				Lister:                newTestAddress(0x01),
				MatchingCollections:   []string{"C1"},
				MatchingTokens:        []string{"N1"},
				MatchAllInCollections: true,
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := store.RecordPut(tc.record); err == nil {
				t.Fatalf("expected put to be rejected")
			}
		})
	}
}

func TestStateStorePutDoesNotMutateInput(t *testing.T) {
	store := newTestStateStore()
	record := &Record{
		AssetID: newTestAssetID(0xA1),
		Armed:   true,
		Secret:  [32]byte{0x01},
	}
	if err := store.RecordPut(record); err != nil {
		t.Fatalf("put: %v", err)
	}
	if record.MatchingCollections != nil || record.MatchingTokens != nil {
		t.Fatalf("expected caller's record untouched, got %+v", record)
	}
}
