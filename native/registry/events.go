package registry

import (
	"encoding/hex"
	"strconv"

	"tokenswap/core/types"
)

const (
	TypeAssetMinted      = "registry.minted"
	TypeAssetTransferred = "registry.transferred"
)

// AssetMinted is emitted when a new asset enters the ledger.
type AssetMinted struct {
	Asset *Asset
}

func (AssetMinted) EventType() string { return TypeAssetMinted }

func (e AssetMinted) Event() *types.Event {
	attrs := make(map[string]string)
	if e.Asset != nil {
		attrs["id"] = hex.EncodeToString(e.Asset.ID[:])
		attrs["creator"] = hex.EncodeToString(e.Asset.Creator[:])
		attrs["collection"] = e.Asset.Collection
		attrs["name"] = e.Asset.Name
	}
	return &types.Event{Type: TypeAssetMinted, Attributes: attrs}
}

// AssetTransferred is emitted on every ownership change, whether owner-signed
// or forced through a transfer capability.
type AssetTransferred struct {
	ID     [32]byte
	From   [20]byte
	To     [20]byte
	Forced bool
}

func (AssetTransferred) EventType() string { return TypeAssetTransferred }

func (e AssetTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeAssetTransferred,
		Attributes: map[string]string{
			"id":     hex.EncodeToString(e.ID[:]),
			"from":   hex.EncodeToString(e.From[:]),
			"to":     hex.EncodeToString(e.To[:]),
			"forced": strconv.FormatBool(e.Forced),
		},
	}
}
