package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"tokenswap/storage"
)

// Store wraps a storage.Database with RLP encoding and prefixed keys. It is
// the shared keyed record store both the asset registry and the escrow engine
// persist into.
type Store struct {
	db storage.Database
}

// NewStore binds a Store to the given database backend.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// KVPut RLP-encodes value and stores it under key.
func (s *Store) KVPut(key []byte, value interface{}) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("state: store not configured")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return s.db.Put(key, encoded)
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed; a missing key is not an error.
func (s *Store) KVGet(key []byte, out interface{}) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("state: store not configured")
	}
	data, err := s.db.Get(key)
	if err != nil {
		if err == storage.ErrKeyNotFound {
			return false, nil
		}
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// KVHas reports whether any value is stored under key.
func (s *Store) KVHas(key []byte) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("state: store not configured")
	}
	return s.db.Has(key)
}

// KVDelete removes the value stored under key. Deleting a missing key is a
// no-op.
func (s *Store) KVDelete(key []byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("state: store not configured")
	}
	return s.db.Delete(key)
}
