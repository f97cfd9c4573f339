package services

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/yuliyu123/nft-auction/auction"
	"github.com/yuliyu123/nft-auction/crypto"
)

// CreateAuctionRequest lists an asset for sale. The signer must own the
// asset; the collection and id in the URL must match the body.
type CreateAuctionRequest struct {
	Collection    crypto.Address  `json:"collection"`
	AssetID       uint64          `json:"asset_id"`
	PaymentMedium crypto.Address  `json:"payment_medium"`
	MinPrice      decimal.Decimal `json:"min_price"`
	Deadline      time.Time       `json:"deadline"`
}

// BidRequest places or raises a bid by the signer.
type BidRequest struct {
	Collection crypto.Address  `json:"collection"`
	AssetID    uint64          `json:"asset_id"`
	Amount     decimal.Decimal `json:"amount"`
}

// AuctionActionRequest addresses an existing auction for stop, resume, and
// finish. The signer is the acting caller.
type AuctionActionRequest struct {
	Collection crypto.Address `json:"collection"`
	AssetID    uint64         `json:"asset_id"`
}

// AuctionResponse returns the auction record after a mutation or query.
type AuctionResponse struct {
	Collection crypto.Address `json:"collection"`
	AssetID    uint64         `json:"asset_id"`
	Record     auction.Record `json:"record"`
}

// SettlementResponse returns the outcome of finish or refund retry.
type SettlementResponse struct {
	Report *auction.SettlementReport `json:"report"`
}

// OwnerResponse returns the asset's current owner.
type OwnerResponse struct {
	Owner crypto.Address `json:"owner"`
}

// EscrowResponse returns one bidder's locked amount.
type EscrowResponse struct {
	Bidder crypto.Address  `json:"bidder"`
	Amount decimal.Decimal `json:"amount"`
}

// ListResponse enumerates all known auctions.
type ListResponse struct {
	Auctions []auction.Listing `json:"auctions"`
}

// ErrorResponse carries a machine-readable error message.
type ErrorResponse struct {
	Error string `json:"error"`
}
