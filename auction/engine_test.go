package auction

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/yuliyu123/nft-auction/assets"
	"github.com/yuliyu123/nft-auction/crypto"
	"github.com/yuliyu123/nft-auction/token"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	engine *Engine
	ledger *token.MockLedger
	assets *assets.MockRegistry
	clock  *fakeClock

	medium     crypto.Address
	collection crypto.Address
	seller     crypto.Address
	bob        crypto.Address
	frank      crypto.Address
	tom        crypto.Address
}

func dec(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

// newFixture wires an engine against mock collaborators with the asset 1
// minted to the seller, every bidder funded with 10000, and all approvals in
// place for the engine to pull escrow and custody.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ledger:     token.NewMockLedger(),
		assets:     assets.NewMockRegistry(),
		clock:      &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)},
		medium:     crypto.Address{0xF0},
		collection: crypto.Address{0xC0},
		seller:     crypto.Address{0x01},
		bob:        crypto.Address{0x0B},
		frank:      crypto.Address{0x0F},
		tom:        crypto.Address{0x07},
	}

	ledgers := token.NewRegistry()
	ledgers.Register(f.medium, f.ledger)

	engine, err := NewEngine(EngineConfig{
		Self:      crypto.Address{0xEE},
		Ledgers:   ledgers,
		Custodian: f.assets,
		Clock:     f.clock.Now,
	})
	require.NoError(t, err)
	f.engine = engine

	require.NoError(t, f.assets.Mint(f.seller, f.collection, 1))
	require.NoError(t, f.assets.Approve(f.seller, engine.Address(), f.collection, 1))

	for _, bidder := range []crypto.Address{f.bob, f.frank, f.tom} {
		f.ledger.Mint(bidder, dec(10000))
		require.NoError(t, f.ledger.Approve(bidder, engine.Address(), dec(10000)))
	}
	return f
}

func (f *fixture) list(t *testing.T, minPrice int64, lifetime time.Duration) Record {
	t.Helper()
	rec, err := f.engine.CreateTokenAuction(f.seller, f.collection, 1, f.medium, dec(minPrice), f.clock.Now().Add(lifetime))
	require.NoError(t, err)
	return rec
}

func (f *fixture) bid(t *testing.T, bidder crypto.Address, amount int64) Record {
	t.Helper()
	rec, err := f.engine.Bid(bidder, f.collection, 1, dec(amount))
	require.NoError(t, err)
	return rec
}

func TestCreateTokenAuction(t *testing.T) {
	f := newFixture(t)

	rec := f.list(t, 2, time.Hour)
	require.Equal(t, f.seller, rec.Seller)
	require.True(t, rec.IsActive)

	// The engine takes custody on listing.
	owner, err := f.engine.OwnerOf(f.collection, 1)
	require.NoError(t, err)
	require.Equal(t, f.engine.Address(), owner)

	_, err = f.engine.CreateTokenAuction(f.seller, f.collection, 1, f.medium, dec(2), f.clock.Now().Add(time.Hour))
	require.ErrorIs(t, err, ErrAlreadyListed)
}

func TestCreateTokenAuctionRejections(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateTokenAuction(f.seller, f.collection, 1, f.medium, dec(2), f.clock.Now())
	require.ErrorIs(t, err, ErrInvalidDuration)

	_, err = f.engine.CreateTokenAuction(f.seller, f.collection, 1, crypto.Address{0xAA}, dec(2), f.clock.Now().Add(time.Hour))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.CreateTokenAuction(f.bob, f.collection, 1, f.medium, dec(2), f.clock.Now().Add(time.Hour))
	require.ErrorIs(t, err, ErrNotOwner)

	_, err = f.engine.CreateTokenAuction(f.seller, f.collection, 99, f.medium, dec(2), f.clock.Now().Add(time.Hour))
	require.ErrorIs(t, err, ErrNotFound)

	// Without approval the engine refuses to list rather than strand the record.
	require.NoError(t, f.assets.Mint(f.seller, f.collection, 2))
	_, err = f.engine.CreateTokenAuction(f.seller, f.collection, 2, f.medium, dec(2), f.clock.Now().Add(time.Hour))
	require.ErrorIs(t, err, ErrTransferFailed)
	owner, err := f.assets.OwnerOf(f.collection, 2)
	require.NoError(t, err)
	require.Equal(t, f.seller, owner)
}

func TestBidValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Bid(f.bob, f.collection, 1, dec(5))
	require.ErrorIs(t, err, ErrNotActive)

	f.list(t, 2, time.Hour)

	_, err = f.engine.Bid(f.bob, f.collection, 1, dec(1))
	require.ErrorIs(t, err, ErrBidTooLow)

	f.bid(t, f.bob, 5)

	// Matching the current maximum is not enough.
	_, err = f.engine.Bid(f.frank, f.collection, 1, dec(5))
	require.ErrorIs(t, err, ErrBidTooLow)

	f.clock.Advance(2 * time.Hour)
	_, err = f.engine.Bid(f.frank, f.collection, 1, dec(6))
	require.ErrorIs(t, err, ErrExpired)
}

func TestBidRejectedTransferLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	f.list(t, 2, time.Hour)

	// Frank's allowance is too small for the bid.
	require.NoError(t, f.ledger.Approve(f.frank, f.engine.Address(), dec(1)))
	_, err := f.engine.Bid(f.frank, f.collection, 1, dec(50))
	require.ErrorIs(t, err, ErrTransferFailed)

	require.True(t, f.engine.AmountOwed(f.collection, 1, f.frank).IsZero())
	require.True(t, f.ledger.BalanceOf(f.frank).Equal(dec(10000)))
	rec, err := f.engine.GetAuctionDetails(f.collection, 1)
	require.NoError(t, err)
	require.False(t, rec.HasBid())
}

func TestBidTopUpPullsOnlyDelta(t *testing.T) {
	f := newFixture(t)
	f.list(t, 2, time.Hour)

	f.bid(t, f.bob, 2)
	f.bid(t, f.frank, 3)
	f.bid(t, f.bob, 4)

	// Bob re-bid over his own lock, so only the difference moved.
	require.True(t, f.engine.AmountOwed(f.collection, 1, f.bob).Equal(dec(4)))
	require.True(t, f.ledger.BalanceOf(f.bob).Equal(dec(9996)))
	require.True(t, f.engine.TotalLocked(f.collection, 1).Equal(dec(7)))
	require.True(t, f.ledger.BalanceOf(f.engine.Address()).Equal(dec(7)))
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t)
	f.list(t, 2, time.Hour)
	f.bid(t, f.bob, 5)

	before, err := f.engine.GetAuctionDetails(f.collection, 1)
	require.NoError(t, err)

	_, err = f.engine.StopAuction(f.bob, f.collection, 1)
	require.ErrorIs(t, err, ErrUnauthorized)

	paused, err := f.engine.StopAuction(f.seller, f.collection, 1)
	require.NoError(t, err)
	require.False(t, paused.IsActive)

	_, err = f.engine.Bid(f.frank, f.collection, 1, dec(6))
	require.ErrorIs(t, err, ErrNotActive)
	require.True(t, f.engine.AmountOwed(f.collection, 1, f.bob).Equal(dec(5)))

	resumed, err := f.engine.ResumeAuction(f.seller, f.collection, 1)
	require.NoError(t, err)
	require.Equal(t, before, resumed)

	f.bid(t, f.frank, 6)
}

// TestFinishSaleFullScenario drives a complete auction with three bidders
// raising and re-raising, then checks that settlement pays the seller, hands
// the asset to the winner, and makes every loser whole.
func TestFinishSaleFullScenario(t *testing.T) {
	f := newFixture(t)
	f.list(t, 2, time.Hour)

	bids := []struct {
		bidder crypto.Address
		amount int64
	}{
		{f.bob, 2}, {f.frank, 3}, {f.bob, 4}, {f.tom, 5},
		{f.frank, 19}, {f.bob, 19}, {f.bob, 100}, {f.tom, 200},
	}
	for _, b := range bids {
		if b.bidder == f.bob && b.amount == 19 {
			// Bob matching Frank's 19 is not a raise.
			_, err := f.engine.Bid(f.bob, f.collection, 1, dec(19))
			require.ErrorIs(t, err, ErrBidTooLow)
			continue
		}
		f.bid(t, b.bidder, b.amount)
	}

	require.True(t, f.ledger.BalanceOf(f.bob).Equal(dec(9900)))
	require.True(t, f.ledger.BalanceOf(f.frank).Equal(dec(9981)))
	require.True(t, f.ledger.BalanceOf(f.tom).Equal(dec(9800)))

	// Escrow pool always equals the sum of individual locks.
	require.True(t, f.ledger.BalanceOf(f.engine.Address()).Equal(f.engine.TotalLocked(f.collection, 1)))

	_, err := f.engine.FinishSale(f.bob, f.collection, 1)
	require.ErrorIs(t, err, ErrTooEarly)

	f.clock.Advance(2 * time.Hour)

	// Anyone may settle, not just the seller or a bidder.
	report, err := f.engine.FinishSale(crypto.Address{0x99}, f.collection, 1)
	require.NoError(t, err)
	require.False(t, report.Unsold)
	require.Equal(t, f.tom, report.Winner)
	require.True(t, report.SalePrice.Equal(dec(200)))
	require.Len(t, report.Refunded, 2)
	require.Empty(t, report.Failed)

	require.True(t, f.ledger.BalanceOf(f.seller).Equal(dec(200)))
	require.True(t, f.ledger.BalanceOf(f.bob).Equal(dec(10000)))
	require.True(t, f.ledger.BalanceOf(f.frank).Equal(dec(10000)))
	require.True(t, f.ledger.BalanceOf(f.tom).Equal(dec(9800)))
	require.True(t, f.ledger.BalanceOf(f.engine.Address()).IsZero())

	owner, err := f.engine.OwnerOf(f.collection, 1)
	require.NoError(t, err)
	require.Equal(t, f.tom, owner)

	require.Empty(t, f.engine.EscrowEntries(f.collection, 1))
	rec, err := f.engine.GetAuctionDetails(f.collection, 1)
	require.NoError(t, err)
	require.True(t, rec.IsFinalized)

	_, err = f.engine.FinishSale(f.seller, f.collection, 1)
	require.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestFinishSaleWhilePaused(t *testing.T) {
	f := newFixture(t)
	f.list(t, 2, time.Hour)
	f.bid(t, f.bob, 5)

	_, err := f.engine.StopAuction(f.seller, f.collection, 1)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)

	// Pause must not let the seller strand escrowed funds.
	report, err := f.engine.FinishSale(f.frank, f.collection, 1)
	require.NoError(t, err)
	require.Equal(t, f.bob, report.Winner)
}

func TestFinishSaleUnsold(t *testing.T) {
	f := newFixture(t)
	f.list(t, 2, time.Hour)
	f.clock.Advance(2 * time.Hour)

	report, err := f.engine.FinishSale(f.seller, f.collection, 1)
	require.NoError(t, err)
	require.True(t, report.Unsold)
	require.True(t, report.Winner.IsZero())

	owner, err := f.engine.OwnerOf(f.collection, 1)
	require.NoError(t, err)
	require.Equal(t, f.seller, owner)
}

func TestRelistAfterSettlement(t *testing.T) {
	f := newFixture(t)
	f.list(t, 2, time.Hour)
	f.bid(t, f.tom, 10)
	f.clock.Advance(2 * time.Hour)

	_, err := f.engine.FinishSale(f.tom, f.collection, 1)
	require.NoError(t, err)

	// The winner can turn around and list the asset again.
	require.NoError(t, f.assets.Approve(f.tom, f.engine.Address(), f.collection, 1))
	_, err = f.engine.CreateTokenAuction(f.tom, f.collection, 1, f.medium, dec(20), f.clock.Now().Add(time.Hour))
	require.NoError(t, err)
}

func TestRelistBlockedByOutstandingRefund(t *testing.T) {
	f := newFixture(t)
	f.list(t, 2, time.Hour)
	f.bid(t, f.bob, 5)
	f.bid(t, f.tom, 10)

	f.ledger.FailTransfersTo(f.bob, true)
	f.clock.Advance(2 * time.Hour)
	_, err := f.engine.FinishSale(f.seller, f.collection, 1)
	require.NoError(t, err)

	// Bob is still owed 5; the key cannot carry a new auction until the
	// refund clears.
	require.NoError(t, f.assets.Approve(f.tom, f.engine.Address(), f.collection, 1))
	_, err = f.engine.CreateTokenAuction(f.tom, f.collection, 1, f.medium, dec(2), f.clock.Now().Add(time.Hour))
	require.ErrorIs(t, err, ErrAlreadyListed)

	f.ledger.FailTransfersTo(f.bob, false)
	_, err = f.engine.RetryRefunds(f.collection, 1)
	require.NoError(t, err)

	_, err = f.engine.CreateTokenAuction(f.tom, f.collection, 1, f.medium, dec(2), f.clock.Now().Add(time.Hour))
	require.NoError(t, err)
}

func TestFailedRefundStaysOwedAndRetries(t *testing.T) {
	f := newFixture(t)
	f.list(t, 2, time.Hour)
	f.bid(t, f.bob, 5)
	f.bid(t, f.tom, 10)

	f.ledger.FailTransfersTo(f.bob, true)
	f.clock.Advance(2 * time.Hour)

	report, err := f.engine.FinishSale(f.seller, f.collection, 1)
	require.NoError(t, err)
	require.Equal(t, f.tom, report.Winner)
	require.Len(t, report.Failed, 1)
	require.Equal(t, f.bob, report.Failed[0].Bidder)
	require.True(t, report.Failed[0].Amount.Equal(dec(5)))

	// Settlement committed despite the failed refund; Bob stays owed.
	rec, err := f.engine.GetAuctionDetails(f.collection, 1)
	require.NoError(t, err)
	require.True(t, rec.IsFinalized)
	require.True(t, f.engine.AmountOwed(f.collection, 1, f.bob).Equal(dec(5)))
	require.True(t, f.ledger.BalanceOf(f.engine.Address()).Equal(dec(5)))

	// Retrying while the ledger still rejects changes nothing.
	retry, err := f.engine.RetryRefunds(f.collection, 1)
	require.NoError(t, err)
	require.Len(t, retry.Failed, 1)
	require.True(t, f.engine.AmountOwed(f.collection, 1, f.bob).Equal(dec(5)))

	f.ledger.FailTransfersTo(f.bob, false)
	retry, err = f.engine.RetryRefunds(f.collection, 1)
	require.NoError(t, err)
	require.Empty(t, retry.Failed)
	require.Len(t, retry.Refunded, 1)
	require.True(t, f.ledger.BalanceOf(f.bob).Equal(dec(10000)))
	require.True(t, f.ledger.BalanceOf(f.engine.Address()).IsZero())
}

func TestRetryRefundsBeforeSettlement(t *testing.T) {
	f := newFixture(t)
	f.list(t, 2, time.Hour)

	_, err := f.engine.RetryRefunds(f.collection, 1)
	require.ErrorIs(t, err, ErrTooEarly)

	_, err = f.engine.RetryRefunds(f.collection, 99)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestObserverSeesCommittedEvents(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	var events []Event
	f.engine.SetObserver(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})

	f.list(t, 2, time.Hour)
	f.bid(t, f.bob, 5)
	_, err := f.engine.StopAuction(f.seller, f.collection, 1)
	require.NoError(t, err)
	_, err = f.engine.ResumeAuction(f.seller, f.collection, 1)
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)
	_, err = f.engine.FinishSale(f.seller, f.collection, 1)
	require.NoError(t, err)

	// Rejected operations emit nothing.
	_, err = f.engine.FinishSale(f.seller, f.collection, 1)
	require.ErrorIs(t, err, ErrAlreadyFinalized)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 5)
	require.Equal(t, EventAuctionCreated, events[0].Type)
	require.Equal(t, EventBidPlaced, events[1].Type)
	require.Equal(t, EventAuctionPaused, events[2].Type)
	require.Equal(t, EventAuctionResumed, events[3].Type)
	require.Equal(t, EventAuctionFinalized, events[4].Type)
	require.NotNil(t, events[4].Report)
}

func TestConcurrentBidsStayConsistent(t *testing.T) {
	f := newFixture(t)
	f.list(t, 1, time.Hour)

	var wg sync.WaitGroup
	for i := int64(1); i <= 50; i++ {
		wg.Add(1)
		go func(amount int64) {
			defer wg.Done()
			// Losing the race to a higher bid is expected; inconsistent
			// escrow is not.
			_, _ = f.engine.Bid(f.bob, f.collection, 1, dec(amount))
		}(i)
	}
	wg.Wait()

	rec, err := f.engine.GetAuctionDetails(f.collection, 1)
	require.NoError(t, err)
	require.Equal(t, f.bob, rec.MaxBidUser)
	require.True(t, f.engine.AmountOwed(f.collection, 1, f.bob).Equal(rec.MaxBidAmount))
	require.True(t, f.ledger.BalanceOf(f.bob).Add(rec.MaxBidAmount).Equal(dec(10000)))
	require.True(t, f.ledger.BalanceOf(f.engine.Address()).Equal(rec.MaxBidAmount))
}

func TestRestore(t *testing.T) {
	f := newFixture(t)

	key := Key{Collection: f.collection, AssetID: 7}
	rec := Record{
		Seller:        f.seller,
		PaymentMedium: f.medium,
		MinPrice:      dec(2),
		Deadline:      f.clock.Now().Add(time.Hour),
		MaxBidUser:    f.bob,
		MaxBidAmount:  dec(5),
		IsActive:      true,
		CreatedAt:     f.clock.Now(),
	}
	f.engine.Restore(key, rec, map[crypto.Address]decimal.Decimal{f.bob: dec(5)})

	got, err := f.engine.GetAuctionDetails(f.collection, 7)
	require.NoError(t, err)
	require.Equal(t, rec, got)
	require.True(t, f.engine.AmountOwed(f.collection, 7, f.bob).Equal(dec(5)))
}
