package assets

import (
	"github.com/yuliyu123/nft-auction/crypto"
)

// Custodian is the asset-registry collaborator. Assets are identified by
// (collection, id); a collection is itself addressed like an account.
type Custodian interface {
	// OwnerOf returns the current owner of an asset.
	OwnerOf(collection crypto.Address, id uint64) (crypto.Address, error)

	// IsAuthorized reports whether operator may move the asset on behalf of
	// its current owner.
	IsAuthorized(operator crypto.Address, collection crypto.Address, id uint64) (bool, error)

	// TransferFrom moves the asset from `from` to `to`. The caller must be
	// the current owner or an authorized operator, and `from` must match the
	// current owner.
	TransferFrom(caller, from, to crypto.Address, collection crypto.Address, id uint64) error
}
