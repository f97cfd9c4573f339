package auction

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/yuliyu123/nft-auction/crypto"
)

// BidLedger tracks how much each bidder currently has locked per auction.
// It is pure accounting: fund movement is the engine's job. The invariant it
// preserves is that the recorded amounts always match what the engine has
// pulled and not yet released, so every bidder can verify their lock at any
// time and settlement knows exactly who is owed what.
type BidLedger struct {
	mu     sync.RWMutex
	escrow map[Key]map[crypto.Address]decimal.Decimal
}

// NewBidLedger creates an empty bid ledger.
func NewBidLedger() *BidLedger {
	return &BidLedger{escrow: make(map[Key]map[crypto.Address]decimal.Decimal)}
}

// Place records that bidder now has amount locked for key, superseding any
// prior amount by the same bidder. A bidder raising their own bid locks the
// new total, not the sum.
func (b *BidLedger) Place(key Key, bidder crypto.Address, amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.escrow[key] == nil {
		b.escrow[key] = make(map[crypto.Address]decimal.Decimal)
	}
	b.escrow[key][bidder] = amount
}

// AmountOwed returns the amount currently locked by bidder for key, zero if
// none.
func (b *BidLedger) AmountOwed(key Key, bidder crypto.Address) decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if amount, ok := b.escrow[key][bidder]; ok {
		return amount
	}
	return decimal.Zero
}

// TotalLocked returns the sum of all locked amounts for key.
func (b *BidLedger) TotalLocked(key Key) decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := decimal.Zero
	for _, amount := range b.escrow[key] {
		total = total.Add(amount)
	}
	return total
}

// Entries returns a copy of all escrow entries for key.
func (b *BidLedger) Entries(key Key) map[crypto.Address]decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries := make(map[crypto.Address]decimal.Decimal, len(b.escrow[key]))
	for bidder, amount := range b.escrow[key] {
		entries[bidder] = amount
	}
	return entries
}

// Clear removes bidder's entry for key and returns the removed amount.
func (b *BidLedger) Clear(key Key, bidder crypto.Address) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()

	amount, ok := b.escrow[key][bidder]
	if !ok {
		return decimal.Zero
	}
	delete(b.escrow[key], bidder)
	if len(b.escrow[key]) == 0 {
		delete(b.escrow, key)
	}
	return amount
}

// RefundAll removes and returns every entry for key except the given bidder,
// sorted by bidder address for deterministic payout order. The engine
// re-Places any entry whose refund the ledger rejects.
func (b *BidLedger) RefundAll(key Key, except crypto.Address) []Refund {
	b.mu.Lock()
	defer b.mu.Unlock()

	var refunds []Refund
	for bidder, amount := range b.escrow[key] {
		if bidder == except {
			continue
		}
		refunds = append(refunds, Refund{Bidder: bidder, Amount: amount})
		delete(b.escrow[key], bidder)
	}
	if len(b.escrow[key]) == 0 {
		delete(b.escrow, key)
	}

	sort.Slice(refunds, func(i, j int) bool {
		return refunds[i].Bidder.String() < refunds[j].Bidder.String()
	})
	return refunds
}
