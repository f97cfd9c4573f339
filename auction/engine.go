package auction

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yuliyu123/nft-auction/assets"
	"github.com/yuliyu123/nft-auction/crypto"
	"github.com/yuliyu123/nft-auction/token"
)

// EngineConfig carries the engine's identity and collaborators.
type EngineConfig struct {
	// Self is the engine's own account: the custodian of listed assets and
	// the holder of escrowed funds.
	Self crypto.Address

	// Ledgers resolves payment-medium addresses to token ledgers.
	Ledgers *token.Registry

	// Custodian is the asset-registry collaborator.
	Custodian assets.Custodian

	// Clock returns the current time. Defaults to time.Now; tests and the
	// demo override it to cross the deadline.
	Clock func() time.Time

	// Log is the structured logger. Defaults to slog.Default.
	Log *slog.Logger
}

// Engine orchestrates auction creation, bidding, pause/resume, and
// settlement. All mutating operations on one key are serialized through a
// per-key lock, reproducing run-to-completion semantics; queries read the
// last committed state concurrently.
//
// Internal bookkeeping is ordered so that a failed collaborator call leaves
// no partial state: state is validated first, the single collaborator
// transfer runs next, and registry/ledger updates commit only after it
// succeeds. The one exception is the settlement refund fan-out, which is
// best-effort by design.
type Engine struct {
	self      crypto.Address
	registry  *Registry
	bids      *BidLedger
	ledgers   *token.Registry
	custodian assets.Custodian
	now       func() time.Time
	log       *slog.Logger

	observerMu sync.RWMutex
	observer   Observer

	lockMu   sync.Mutex
	keyLocks map[Key]*sync.Mutex
}

// NewEngine creates an auction engine from the given configuration.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Self.IsZero() {
		return nil, errors.New("engine address cannot be zero")
	}
	if cfg.Ledgers == nil {
		return nil, errors.New("ledger registry cannot be nil")
	}
	if cfg.Custodian == nil {
		return nil, errors.New("custodian cannot be nil")
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		self:      cfg.Self,
		registry:  NewRegistry(),
		bids:      NewBidLedger(),
		ledgers:   cfg.Ledgers,
		custodian: cfg.Custodian,
		now:       now,
		log:       log,
		keyLocks:  make(map[Key]*sync.Mutex),
	}, nil
}

// Address returns the engine's own account address.
func (e *Engine) Address() crypto.Address {
	return e.self
}

// SetObserver installs the committed-event observer.
func (e *Engine) SetObserver(obs Observer) {
	e.observerMu.Lock()
	defer e.observerMu.Unlock()
	e.observer = obs
}

func (e *Engine) emit(ev Event) {
	e.observerMu.RLock()
	obs := e.observer
	e.observerMu.RUnlock()
	if obs != nil {
		obs(ev)
	}
}

// keyLock returns the mutex serializing mutations for one key.
func (e *Engine) keyLock(key Key) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()

	lock, ok := e.keyLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		e.keyLocks[key] = lock
	}
	return lock
}

// CreateTokenAuction lists an asset for sale. The caller must currently own
// the asset and must have authorized the engine to move it; the asset
// transfers into engine custody before the record is inserted, so a live
// listing always implies custody.
func (e *Engine) CreateTokenAuction(caller crypto.Address, collection crypto.Address, assetID uint64,
	paymentMedium crypto.Address, minPrice decimal.Decimal, deadline time.Time) (Record, error) {

	key := Key{Collection: collection, AssetID: assetID}
	lock := e.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	now := e.now()
	if !deadline.After(now) {
		return Record{}, fmt.Errorf("deadline %s is not after %s: %w", deadline, now, ErrInvalidDuration)
	}

	if _, err := e.ledgers.Resolve(paymentMedium); err != nil {
		return Record{}, fmt.Errorf("%v: %w", err, ErrNotFound)
	}

	if existing, err := e.registry.Get(key); err == nil && existing.live() {
		return Record{}, fmt.Errorf("%s: %w", key, ErrAlreadyListed)
	}

	// Outstanding failed refunds from a previous settlement must clear before
	// the key can carry fresh escrow, or the two auctions' locks would mix.
	if !e.bids.TotalLocked(key).IsZero() {
		return Record{}, fmt.Errorf("%s has unsettled refunds: %w", key, ErrAlreadyListed)
	}

	owner, err := e.custodian.OwnerOf(collection, assetID)
	if err != nil {
		return Record{}, fmt.Errorf("%v: %w", err, ErrNotFound)
	}
	if owner != caller {
		return Record{}, fmt.Errorf("%s owned by %s, not %s: %w", key, owner, caller, ErrNotOwner)
	}

	authorized, err := e.custodian.IsAuthorized(e.self, collection, assetID)
	if err != nil {
		return Record{}, fmt.Errorf("%v: %w", err, ErrNotFound)
	}
	if !authorized {
		return Record{}, fmt.Errorf("engine not authorized to take custody of %s: %w", key, ErrTransferFailed)
	}

	if err := e.custodian.TransferFrom(e.self, caller, e.self, collection, assetID); err != nil {
		return Record{}, fmt.Errorf("taking custody of %s: %v: %w", key, err, ErrTransferFailed)
	}

	rec, err := e.registry.Create(key, caller, paymentMedium, minPrice, deadline, now)
	if err != nil {
		return Record{}, err
	}

	e.log.Info("auction created", "key", key.String(), "seller", caller.String(),
		"min_price", minPrice.String(), "deadline", deadline)
	e.emit(Event{Type: EventAuctionCreated, Key: key, Record: rec})
	return rec, nil
}

// Bid places or raises a bid. The new amount must strictly exceed the
// current maximum (or meet the minimum price for the first bid); the engine
// pulls only the difference over the bidder's existing lock, so the bidder
// ends up with exactly the new amount escrowed. The previous leading
// bidder's funds stay locked: they remain a standing bid until settlement.
func (e *Engine) Bid(caller crypto.Address, collection crypto.Address, assetID uint64, amount decimal.Decimal) (Record, error) {
	key := Key{Collection: collection, AssetID: assetID}
	lock := e.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	rec, err := e.registry.Get(key)
	if err != nil {
		return Record{}, fmt.Errorf("%s: %w", key, ErrNotActive)
	}
	if rec.IsFinalized || !rec.IsActive {
		return Record{}, fmt.Errorf("%s: %w", key, ErrNotActive)
	}
	if !e.now().Before(rec.Deadline) {
		return Record{}, fmt.Errorf("%s: %w", key, ErrExpired)
	}

	if rec.HasBid() {
		if amount.Cmp(rec.MaxBidAmount) <= 0 {
			return Record{}, fmt.Errorf("bid %s does not exceed current max %s: %w",
				amount, rec.MaxBidAmount, ErrBidTooLow)
		}
	} else if amount.Cmp(rec.MinPrice) < 0 {
		return Record{}, fmt.Errorf("bid %s below min price %s: %w", amount, rec.MinPrice, ErrBidTooLow)
	}
	if !amount.IsPositive() {
		return Record{}, fmt.Errorf("bid %s is not positive: %w", amount, ErrBidTooLow)
	}

	ledger, err := e.ledgers.Resolve(rec.PaymentMedium)
	if err != nil {
		return Record{}, fmt.Errorf("%v: %w", err, ErrNotFound)
	}

	// Pull only the top-up over the caller's prior lock. One ledger call
	// means a rejection aborts with no state change at all.
	prior := e.bids.AmountOwed(key, caller)
	delta := amount.Sub(prior)
	if err := ledger.TransferFrom(e.self, caller, e.self, delta); err != nil {
		return Record{}, fmt.Errorf("escrowing %s from %s: %v: %w", delta, caller, err, ErrTransferFailed)
	}

	e.bids.Place(key, caller, amount)
	rec, err = e.registry.SetMaxBid(key, caller, amount)
	if err != nil {
		return Record{}, err
	}

	e.log.Info("bid placed", "key", key.String(), "bidder", caller.String(), "amount", amount.String())
	e.emit(Event{Type: EventBidPlaced, Key: key, Record: rec, Bidder: caller, Amount: amount})
	return rec, nil
}

// StopAuction pauses bidding. Seller-only; the record, bids, and deadline
// are otherwise untouched.
func (e *Engine) StopAuction(caller crypto.Address, collection crypto.Address, assetID uint64) (Record, error) {
	return e.setActive(caller, Key{Collection: collection, AssetID: assetID}, false)
}

// ResumeAuction reopens bidding exactly where it left off.
func (e *Engine) ResumeAuction(caller crypto.Address, collection crypto.Address, assetID uint64) (Record, error) {
	return e.setActive(caller, Key{Collection: collection, AssetID: assetID}, true)
}

func (e *Engine) setActive(caller crypto.Address, key Key, active bool) (Record, error) {
	lock := e.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	rec, err := e.registry.SetActive(key, caller, active)
	if err != nil {
		return Record{}, err
	}

	evType := EventAuctionPaused
	if active {
		evType = EventAuctionResumed
	}
	e.log.Info("auction state toggled", "key", key.String(), "active", active)
	e.emit(Event{Type: evType, Key: key, Record: rec})
	return rec, nil
}

// FinishSale settles an auction whose deadline has passed. Anyone may call
// it; settlement is mechanical, and restricting it would let a seller strand
// bidder funds by pausing forever. Pause state does not block settlement.
//
// With no bids the asset returns to the seller. Otherwise the seller is paid
// the winning amount, the winner receives the asset, and every other bidder
// is refunded independently: a rejected refund is reported, keeps that
// bidder owed, and never blocks the rest of the payout.
func (e *Engine) FinishSale(caller crypto.Address, collection crypto.Address, assetID uint64) (*SettlementReport, error) {
	key := Key{Collection: collection, AssetID: assetID}
	lock := e.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	rec, err := e.registry.Get(key)
	if err != nil {
		return nil, err
	}
	if rec.IsFinalized {
		return nil, fmt.Errorf("%s: %w", key, ErrAlreadyFinalized)
	}
	if e.now().Before(rec.Deadline) {
		return nil, fmt.Errorf("%s: deadline %s: %w", key, rec.Deadline, ErrTooEarly)
	}

	report := &SettlementReport{Key: key}

	if !rec.HasBid() {
		if err := e.custodian.TransferFrom(e.self, e.self, rec.Seller, collection, assetID); err != nil {
			return nil, fmt.Errorf("returning %s to seller: %v: %w", key, err, ErrTransferFailed)
		}
		rec, err = e.registry.Finalize(key)
		if err != nil {
			return nil, err
		}

		report.Unsold = true
		e.log.Info("auction finalized unsold", "key", key.String(), "caller", caller.String())
		e.emit(Event{Type: EventAuctionFinalized, Key: key, Record: rec, Report: report})
		return report, nil
	}

	ledger, err := e.ledgers.Resolve(rec.PaymentMedium)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrNotFound)
	}

	winner := rec.MaxBidUser
	price := rec.MaxBidAmount

	if err := ledger.Transfer(e.self, rec.Seller, price); err != nil {
		return nil, fmt.Errorf("paying seller %s: %v: %w", rec.Seller, err, ErrTransferFailed)
	}
	if err := e.custodian.TransferFrom(e.self, e.self, winner, collection, assetID); err != nil {
		return nil, fmt.Errorf("delivering %s to winner: %v: %w", key, err, ErrTransferFailed)
	}

	// Winner and seller are settled; commit before the best-effort fan-out.
	e.bids.Clear(key, winner)
	rec, err = e.registry.Finalize(key)
	if err != nil {
		return nil, err
	}

	report.Winner = winner
	report.SalePrice = price
	e.refund(key, ledger, e.bids.RefundAll(key, winner), report)

	e.log.Info("auction finalized", "key", key.String(), "winner", winner.String(),
		"price", price.String(), "refunds", len(report.Refunded), "failed_refunds", len(report.Failed))
	e.emit(Event{Type: EventAuctionFinalized, Key: key, Record: rec, Report: report})
	return report, nil
}

// refund pays each owed bidder independently. A rejected refund re-enters
// the bid ledger so the bidder stays owed and RetryRefunds can pick it up.
func (e *Engine) refund(key Key, ledger token.Ledger, owed []Refund, report *SettlementReport) {
	for _, r := range owed {
		if err := ledger.Transfer(e.self, r.Bidder, r.Amount); err != nil {
			e.bids.Place(key, r.Bidder, r.Amount)
			report.Failed = append(report.Failed, FailedRefund{
				Bidder: r.Bidder,
				Amount: r.Amount,
				Reason: err.Error(),
			})
			e.log.Warn("refund failed", "key", key.String(), "bidder", r.Bidder.String(),
				"amount", r.Amount.String(), "err", err)
			continue
		}
		report.Refunded = append(report.Refunded, r)
	}
}

// RetryRefunds re-runs the refund fan-out for a finalized auction whose
// settlement left failed refunds behind.
func (e *Engine) RetryRefunds(collection crypto.Address, assetID uint64) (*SettlementReport, error) {
	key := Key{Collection: collection, AssetID: assetID}
	lock := e.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	rec, err := e.registry.Get(key)
	if err != nil {
		return nil, err
	}
	if !rec.IsFinalized {
		return nil, fmt.Errorf("%s not settled yet: %w", key, ErrTooEarly)
	}

	ledger, err := e.ledgers.Resolve(rec.PaymentMedium)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrNotFound)
	}

	report := &SettlementReport{Key: key, Winner: rec.MaxBidUser, SalePrice: rec.MaxBidAmount}
	e.refund(key, ledger, e.bids.RefundAll(key, crypto.Address{}), report)

	e.emit(Event{Type: EventRefundsRetried, Key: key, Record: rec, Report: report})
	return report, nil
}

// OwnerOf returns the asset's current owner per the custodian: the engine
// itself while an auction is live, and the winner (or seller, if unsold)
// after finalization.
func (e *Engine) OwnerOf(collection crypto.Address, assetID uint64) (crypto.Address, error) {
	owner, err := e.custodian.OwnerOf(collection, assetID)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%v: %w", err, ErrNotFound)
	}
	return owner, nil
}

// GetAuctionDetails returns the full auction record for the key.
func (e *Engine) GetAuctionDetails(collection crypto.Address, assetID uint64) (Record, error) {
	return e.registry.Get(Key{Collection: collection, AssetID: assetID})
}

// AmountOwed returns the bidder's currently locked amount for the key.
func (e *Engine) AmountOwed(collection crypto.Address, assetID uint64, bidder crypto.Address) decimal.Decimal {
	return e.bids.AmountOwed(Key{Collection: collection, AssetID: assetID}, bidder)
}

// TotalLocked returns the sum of all locked amounts for the key.
func (e *Engine) TotalLocked(collection crypto.Address, assetID uint64) decimal.Decimal {
	return e.bids.TotalLocked(Key{Collection: collection, AssetID: assetID})
}

// EscrowEntries returns a copy of every (bidder, amount) lock for the key.
func (e *Engine) EscrowEntries(collection crypto.Address, assetID uint64) map[crypto.Address]decimal.Decimal {
	return e.bids.Entries(Key{Collection: collection, AssetID: assetID})
}

// List returns every known auction record.
func (e *Engine) List() []Listing {
	return e.registry.List()
}

// Restore installs a persisted auction and its escrow entries without any
// collaborator calls. Used when reloading state from a store at startup.
func (e *Engine) Restore(key Key, rec Record, escrow map[crypto.Address]decimal.Decimal) {
	lock := e.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	e.registry.Restore(key, rec)
	for bidder, amount := range escrow {
		e.bids.Place(key, bidder, amount)
	}
}
