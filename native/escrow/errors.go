package escrow

import "errors"

var (
	// ErrNotOwner is returned when the caller is not the asset's current
	// owner.
	ErrNotOwner = errors.New("escrow: caller is not the asset owner")
	// ErrTradingDisabled is returned when no record exists for the asset,
	// the record holds no transfer authority, or a listing required by the
	// operation is closed.
	ErrTradingDisabled = errors.New("escrow: trading disabled")
	// ErrNotMatched is returned when the offered asset fails the target
	// record's acceptance criteria.
	ErrNotMatched = errors.New("escrow: offered asset does not match acceptance criteria")
	// ErrNotStarted is returned when a criteria mutation is attempted on a
	// record whose trading has not been opened.
	ErrNotStarted = errors.New("escrow: trading has not been started")
	// ErrAssetMismatch is returned by Initialize when the declared
	// collection or token name does not equal the asset's actual identity.
	ErrAssetMismatch = errors.New("escrow: declared identity does not match asset")
	// ErrObjectMismatch is returned when a supplied capability was not
	// issued for the asset being operated on.
	ErrObjectMismatch = errors.New("escrow: capability bound to a different asset")
	// ErrOwnerChanged is returned by FlashOffer when the listed owner no
	// longer matches the asset's actual owner.
	ErrOwnerChanged = errors.New("escrow: listed owner no longer owns the asset")
	// ErrAlreadyManaged is returned by Initialize when a record already
	// exists for the asset.
	ErrAlreadyManaged = errors.New("escrow: record already exists for asset")
)
