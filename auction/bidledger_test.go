package auction

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/yuliyu123/nft-auction/crypto"
)

func TestBidLedgerPlaceReplaces(t *testing.T) {
	ledger := NewBidLedger()
	key := testKey(1)
	bidder := crypto.Address{0x0B}

	ledger.Place(key, bidder, decimal.NewFromInt(4))
	ledger.Place(key, bidder, decimal.NewFromInt(19))

	// Raising a bid locks the new total, never the sum.
	require.True(t, ledger.AmountOwed(key, bidder).Equal(decimal.NewFromInt(19)))
	require.True(t, ledger.TotalLocked(key).Equal(decimal.NewFromInt(19)))
}

func TestBidLedgerTotals(t *testing.T) {
	ledger := NewBidLedger()
	key := testKey(1)
	a := crypto.Address{0x0A}
	b := crypto.Address{0x0B}

	require.True(t, ledger.AmountOwed(key, a).IsZero())
	require.True(t, ledger.TotalLocked(key).IsZero())

	ledger.Place(key, a, decimal.NewFromInt(100))
	ledger.Place(key, b, decimal.NewFromInt(19))
	require.True(t, ledger.TotalLocked(key).Equal(decimal.NewFromInt(119)))

	entries := ledger.Entries(key)
	require.Len(t, entries, 2)
	require.True(t, entries[a].Equal(decimal.NewFromInt(100)))

	// Entries is a copy; mutating it does not touch the ledger.
	entries[a] = decimal.NewFromInt(1)
	require.True(t, ledger.AmountOwed(key, a).Equal(decimal.NewFromInt(100)))
}

func TestBidLedgerClear(t *testing.T) {
	ledger := NewBidLedger()
	key := testKey(1)
	a := crypto.Address{0x0A}

	require.True(t, ledger.Clear(key, a).IsZero())

	ledger.Place(key, a, decimal.NewFromInt(200))
	removed := ledger.Clear(key, a)
	require.True(t, removed.Equal(decimal.NewFromInt(200)))
	require.True(t, ledger.AmountOwed(key, a).IsZero())
}

func TestBidLedgerRefundAll(t *testing.T) {
	ledger := NewBidLedger()
	key := testKey(1)
	winner := crypto.Address{0x03}
	a := crypto.Address{0x01}
	b := crypto.Address{0x02}

	ledger.Place(key, a, decimal.NewFromInt(100))
	ledger.Place(key, b, decimal.NewFromInt(19))
	ledger.Place(key, winner, decimal.NewFromInt(200))

	refunds := ledger.RefundAll(key, winner)
	require.Len(t, refunds, 2)
	require.Equal(t, a, refunds[0].Bidder)
	require.Equal(t, b, refunds[1].Bidder)
	require.True(t, refunds[0].Amount.Equal(decimal.NewFromInt(100)))

	// The excluded bidder's entry survives; the rest are gone.
	require.True(t, ledger.AmountOwed(key, winner).Equal(decimal.NewFromInt(200)))
	require.True(t, ledger.AmountOwed(key, a).IsZero())
	require.Empty(t, ledger.RefundAll(key, winner))
}
