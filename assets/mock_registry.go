package assets

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yuliyu123/nft-auction/crypto"
)

type assetKey struct {
	collection crypto.Address
	id         uint64
}

// MockRegistry implements Custodian with in-memory ownership records.
// Per-asset approvals follow ERC721 semantics: an approval names a single
// operator and is cleared by any transfer.
type MockRegistry struct {
	mu        sync.RWMutex
	owners    map[assetKey]crypto.Address
	approvals map[assetKey]crypto.Address
}

// NewMockRegistry creates an empty asset registry.
func NewMockRegistry() *MockRegistry {
	return &MockRegistry{
		owners:    make(map[assetKey]crypto.Address),
		approvals: make(map[assetKey]crypto.Address),
	}
}

// Mint records a new asset owned by owner. Fails if the asset already exists.
func (r *MockRegistry) Mint(owner crypto.Address, collection crypto.Address, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := assetKey{collection, id}
	if _, exists := r.owners[key]; exists {
		return fmt.Errorf("asset %s/%d already exists", collection, id)
	}
	r.owners[key] = owner
	return nil
}

// Exists reports whether an asset has been minted.
func (r *MockRegistry) Exists(collection crypto.Address, id uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.owners[assetKey{collection, id}]
	return ok
}

// OwnerOf returns the current owner of an asset.
func (r *MockRegistry) OwnerOf(collection crypto.Address, id uint64) (crypto.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owner, ok := r.owners[assetKey{collection, id}]
	if !ok {
		return crypto.Address{}, fmt.Errorf("asset %s/%d does not exist", collection, id)
	}
	return owner, nil
}

// Approve authorizes operator to move the asset. Only the current owner may
// approve; approving the zero address clears the approval.
func (r *MockRegistry) Approve(caller, operator crypto.Address, collection crypto.Address, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := assetKey{collection, id}
	owner, ok := r.owners[key]
	if !ok {
		return fmt.Errorf("asset %s/%d does not exist", collection, id)
	}
	if owner != caller {
		return fmt.Errorf("%s is not the owner of %s/%d", caller, collection, id)
	}

	if operator.IsZero() {
		delete(r.approvals, key)
	} else {
		r.approvals[key] = operator
	}
	return nil
}

// IsAuthorized reports whether operator may move the asset.
func (r *MockRegistry) IsAuthorized(operator crypto.Address, collection crypto.Address, id uint64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := assetKey{collection, id}
	owner, ok := r.owners[key]
	if !ok {
		return false, fmt.Errorf("asset %s/%d does not exist", collection, id)
	}
	return owner == operator || r.approvals[key] == operator, nil
}

// TransferFrom moves the asset from `from` to `to`. Any approval on the asset
// is cleared.
func (r *MockRegistry) TransferFrom(caller, from, to crypto.Address, collection crypto.Address, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := assetKey{collection, id}
	owner, ok := r.owners[key]
	if !ok {
		return fmt.Errorf("asset %s/%d does not exist", collection, id)
	}
	if owner != from {
		return fmt.Errorf("%s does not own %s/%d", from, collection, id)
	}
	if caller != owner && r.approvals[key] != caller {
		return fmt.Errorf("%s is not authorized to move %s/%d", caller, collection, id)
	}

	r.owners[key] = to
	delete(r.approvals, key)
	return nil
}

// AssetsOf returns the ids owned by owner within a collection, sorted.
func (r *MockRegistry) AssetsOf(owner crypto.Address, collection crypto.Address) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []uint64
	for key, who := range r.owners {
		if key.collection == collection && who == owner {
			ids = append(ids, key.id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
