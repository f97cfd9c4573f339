package auction

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yuliyu123/nft-auction/crypto"
)

// Registry maps asset keys to auction records and owns the lifecycle state.
// A key holds at most one live (non-finalized) record; finalized records are
// retained for queries until the asset is listed again.
//
// Methods return record snapshots, never internal pointers. The engine
// serializes mutations per key on top of this; the registry's own lock only
// guards map access.
type Registry struct {
	mu      sync.RWMutex
	records map[Key]*Record
}

// NewRegistry creates an empty auction registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[Key]*Record)}
}

// Create inserts a new active record for the key. Fails with ErrAlreadyListed
// if a live record exists; a finalized record is replaced.
func (r *Registry) Create(key Key, seller, paymentMedium crypto.Address, minPrice decimal.Decimal, deadline, now time.Time) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[key]; ok && existing.live() {
		return Record{}, fmt.Errorf("%s: %w", key, ErrAlreadyListed)
	}

	rec := &Record{
		Seller:        seller,
		PaymentMedium: paymentMedium,
		MinPrice:      minPrice,
		Deadline:      deadline,
		MaxBidAmount:  decimal.Zero,
		IsActive:      true,
		CreatedAt:     now,
	}
	r.records[key] = rec
	return *rec, nil
}

// Get returns a snapshot of the record for the key.
func (r *Registry) Get(key Key) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[key]
	if !ok {
		return Record{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return *rec, nil
}

// SetActive toggles the pause state. Only the seller may call it; a terminal
// record rejects the change. Nothing else in the record is touched: pausing
// neither resets nor extends the deadline.
func (r *Registry) SetActive(key Key, caller crypto.Address, active bool) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return Record{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if rec.IsFinalized {
		return Record{}, fmt.Errorf("%s: %w", key, ErrAlreadyFinalized)
	}
	if rec.Seller != caller {
		return Record{}, fmt.Errorf("%s: %w", key, ErrUnauthorized)
	}

	rec.IsActive = active
	return *rec, nil
}

// SetMaxBid records the new winning bid.
func (r *Registry) SetMaxBid(key Key, bidder crypto.Address, amount decimal.Decimal) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return Record{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}

	rec.MaxBidUser = bidder
	rec.MaxBidAmount = amount
	return *rec, nil
}

// Finalize marks the record terminal. Calling it twice fails with
// ErrAlreadyFinalized.
func (r *Registry) Finalize(key Key) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return Record{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if rec.IsFinalized {
		return Record{}, fmt.Errorf("%s: %w", key, ErrAlreadyFinalized)
	}

	rec.IsActive = false
	rec.IsFinalized = true
	return *rec, nil
}

// Restore installs a previously persisted record, replacing any existing one.
func (r *Registry) Restore(key Key, rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := rec
	r.records[key] = &stored
}

// List returns snapshots of all records, sorted by key for determinism.
func (r *Registry) List() []Listing {
	r.mu.RLock()
	defer r.mu.RUnlock()

	listings := make([]Listing, 0, len(r.records))
	for key, rec := range r.records {
		listings = append(listings, Listing{Key: key, Record: *rec})
	}
	sort.Slice(listings, func(i, j int) bool {
		return listings[i].Key.String() < listings[j].Key.String()
	})
	return listings
}
