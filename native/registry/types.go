package registry

import (
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Asset is a uniquely identified digital item. The identifier is the keccak256
// hash of the creator, collection and name, ensuring deterministic IDs without
// a separate sequence.
type Asset struct {
	ID         [32]byte
	Creator    [20]byte
	Collection string
	Name       string
	Owner      [20]byte
}

// Clone returns a copy of the asset so callers can mutate the result without
// affecting the stored instance.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// AssetID derives the canonical identifier of an asset from its immutable
// identity fields.
func AssetID(creator [20]byte, collection, name string) [32]byte {
	return ethcrypto.Keccak256Hash(creator[:], []byte(collection), []byte(name))
}

// SanitizeAsset validates and normalises the supplied asset definition,
// returning a cloned instance with trimmed identity strings. The function does
// not mutate the original value.
func SanitizeAsset(a *Asset) (*Asset, error) {
	if a == nil {
		return nil, fmt.Errorf("registry: nil asset")
	}
	clone := a.Clone()
	clone.Collection = strings.TrimSpace(clone.Collection)
	clone.Name = strings.TrimSpace(clone.Name)
	if clone.Collection == "" {
		return nil, fmt.Errorf("registry: collection must not be empty")
	}
	if clone.Name == "" {
		return nil, fmt.Errorf("registry: name must not be empty")
	}
	if clone.ID != AssetID(clone.Creator, clone.Collection, clone.Name) {
		return nil, fmt.Errorf("registry: identifier does not match identity fields")
	}
	return clone, nil
}

// Capability is a transfer authority bound to a single asset. Holding a
// Capability proves the right to force transfers of that asset independent of
// its then-current owner. Values are only obtainable from
// Ledger.IssueCapability; the fields are unexported so a capability cannot be
// forged from its parts.
type Capability struct {
	assetID [32]byte
	secret  [32]byte
}

// AssetID reports which asset the capability is bound to.
func (c *Capability) AssetID() [32]byte {
	if c == nil {
		return [32]byte{}
	}
	return c.assetID
}

// Secret exposes the capability's bearer secret. It exists solely so a trusted
// storage layer can persist an armed escrow record across restarts; possession
// of the secret is the capability.
func (c *Capability) Secret() [32]byte {
	if c == nil {
		return [32]byte{}
	}
	return c.secret
}

// Rehydrate reconstructs a capability from persisted parts. The result is only
// useful if the matching authority digest is still registered on the ledger.
func Rehydrate(assetID, secret [32]byte) *Capability {
	return &Capability{assetID: assetID, secret: secret}
}

func (c *Capability) digest() [32]byte {
	return ethcrypto.Keccak256Hash(c.secret[:])
}

// authority is the persisted side of a capability: the digest of the secret
// plus a use counter bumped on every authorized transfer.
type authority struct {
	Digest [32]byte
	Uses   uint64
}
