package escrow

import (
	"tokenswap/state"
)

// StateStore adapts the shared keyed record store to the engine's record
// interface.
type StateStore struct {
	st *state.Store
}

// NewStateStore binds the adapter to a store.
func NewStateStore(st *state.Store) *StateStore {
	return &StateStore{st: st}
}

// RecordGet loads the escrow record for the asset. Missing records are
// reported via the boolean, not an error.
func (s *StateStore) RecordGet(id [32]byte) (*Record, bool, error) {
	record := new(Record)
	ok, err := s.st.KVGet(state.RecordKey(id), record)
	if err != nil || !ok {
		return nil, false, err
	}
	return record, true, nil
}

// RecordPut persists the escrow record under its asset identifier.
func (s *StateStore) RecordPut(record *Record) error {
	sanitized, err := SanitizeRecord(record)
	if err != nil {
		return err
	}
	return s.st.KVPut(state.RecordKey(sanitized.AssetID), sanitized)
}
