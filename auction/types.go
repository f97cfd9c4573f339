package auction

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yuliyu123/nft-auction/crypto"
)

// Key uniquely identifies at most one live auction: the asset's collection
// address and its id within the collection.
type Key struct {
	Collection crypto.Address `json:"collection"`
	AssetID    uint64         `json:"asset_id"`
}

// String renders the key as collection/id for logging and map ordering.
func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.Collection, k.AssetID)
}

// Record is the full state of one auction. Once IsFinalized is set the
// record is terminal and immutable.
type Record struct {
	Seller        crypto.Address  `json:"seller"`
	PaymentMedium crypto.Address  `json:"payment_medium"`
	MinPrice      decimal.Decimal `json:"min_price"`
	Deadline      time.Time       `json:"deadline"`

	// MaxBidUser is the zero address until the first bid is placed.
	MaxBidUser   crypto.Address  `json:"max_bid_user"`
	MaxBidAmount decimal.Decimal `json:"max_bid_amount"`

	IsActive    bool `json:"is_active"`
	IsFinalized bool `json:"is_finalized"`

	CreatedAt time.Time `json:"created_at"`
}

// HasBid reports whether any bid has been placed.
func (r *Record) HasBid() bool {
	return !r.MaxBidUser.IsZero()
}

// live reports whether the record still blocks re-listing the asset:
// active or paused, but not finalized.
func (r *Record) live() bool {
	return !r.IsFinalized
}

// Listing pairs a key with its auction record for enumeration.
type Listing struct {
	Key    Key    `json:"key"`
	Record Record `json:"record"`
}

// Refund is one (bidder, amount) escrow entry owed back to a bidder.
type Refund struct {
	Bidder crypto.Address  `json:"bidder"`
	Amount decimal.Decimal `json:"amount"`
}

// FailedRefund records a refund the ledger rejected during settlement.
// The bidder remains owed in the bid ledger.
type FailedRefund struct {
	Bidder crypto.Address  `json:"bidder"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

// SettlementReport describes the outcome of FinishSale or RetryRefunds.
type SettlementReport struct {
	Key       Key             `json:"key"`
	Unsold    bool            `json:"unsold"`
	Winner    crypto.Address  `json:"winner"`
	SalePrice decimal.Decimal `json:"sale_price"`
	Refunded  []Refund        `json:"refunded,omitempty"`
	Failed    []FailedRefund  `json:"failed,omitempty"`
}

// EventType identifies an engine state change.
type EventType string

const (
	EventAuctionCreated   EventType = "auction_created"
	EventBidPlaced        EventType = "bid_placed"
	EventAuctionPaused    EventType = "auction_paused"
	EventAuctionResumed   EventType = "auction_resumed"
	EventAuctionFinalized EventType = "auction_finalized"
	EventRefundsRetried   EventType = "refunds_retried"
)

// Event is emitted after a mutating operation commits. The record is a
// snapshot of the post-operation state; Report is set for settlement events.
type Event struct {
	Type   EventType         `json:"type"`
	Key    Key               `json:"key"`
	Record Record            `json:"record"`
	Bidder crypto.Address    `json:"bidder,omitempty"`
	Amount decimal.Decimal   `json:"amount,omitempty"`
	Report *SettlementReport `json:"report,omitempty"`
}

// Observer receives committed engine events. Observers run synchronously on
// the mutating call's goroutine; slow work should be handed off.
type Observer func(Event)
