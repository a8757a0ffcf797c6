package state

// Key prefixes for the shared keyed record store. Every record is addressed by
// the 32-byte asset identifier appended to its prefix.
var (
	prefixAsset     = []byte("registry/asset/")
	prefixAuthority = []byte("registry/auth/")
	prefixRecord    = []byte("escrow/record/")
)

// AssetKey returns the storage key of the asset ledger entry.
func AssetKey(id [32]byte) []byte {
	return append(append([]byte(nil), prefixAsset...), id[:]...)
}

// AuthorityKey returns the storage key of an asset's registered transfer
// authority digest.
func AuthorityKey(id [32]byte) []byte {
	return append(append([]byte(nil), prefixAuthority...), id[:]...)
}

// RecordKey returns the storage key of an asset's escrow record.
func RecordKey(id [32]byte) []byte {
	return append(append([]byte(nil), prefixRecord...), id[:]...)
}
