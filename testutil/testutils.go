package testutil

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yuliyu123/nft-auction/assets"
	"github.com/yuliyu123/nft-auction/auction"
	"github.com/yuliyu123/nft-auction/crypto"
	"github.com/yuliyu123/nft-auction/token"
)

// Account bundles a keypair with its derived address. Tests sign requests
// with the private key and assert against the address.
type Account struct {
	PublicKey  crypto.PublicKey
	PrivateKey crypto.PrivateKey
	Address    crypto.Address
}

// GenerateAccount creates a fresh account with a real keypair.
func GenerateAccount() (*Account, error) {
	pub, priv, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &Account{
		PublicKey:  pub,
		PrivateKey: priv,
		Address:    pub.Address(),
	}, nil
}

// MustGenerateAccount creates an account or panics. Test setup only.
func MustGenerateAccount() *Account {
	acct, err := GenerateAccount()
	if err != nil {
		panic(fmt.Sprintf("generating test account: %v", err))
	}
	return acct
}

// Clock is a controllable time source for deadline tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock fixed at the given instant.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the clock's current instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// EnvOption customizes a test environment.
type EnvOption func(*envConfig)

type envConfig struct {
	startingBalance decimal.Decimal
	bidderCount     int
	start           time.Time
}

// WithStartingBalance sets each bidder's minted balance.
func WithStartingBalance(amount decimal.Decimal) EnvOption {
	return func(cfg *envConfig) {
		cfg.startingBalance = amount
	}
}

// WithBidderCount sets how many funded bidders the environment creates.
func WithBidderCount(count int) EnvOption {
	return func(cfg *envConfig) {
		cfg.bidderCount = count
	}
}

// WithStartTime sets the clock's initial instant.
func WithStartTime(start time.Time) EnvOption {
	return func(cfg *envConfig) {
		cfg.start = start
	}
}

// Env is a fully wired test environment: an engine over mock collaborators,
// a seller holding asset 1 of Collection, and funded bidders who have all
// approved the engine.
type Env struct {
	Engine *auction.Engine
	Ledger *token.MockLedger
	Assets *assets.MockRegistry
	Clock  *Clock

	Medium     crypto.Address
	Collection crypto.Address

	Seller  *Account
	Bidders []*Account
}

// NewEnv builds a test environment. The seller owns asset 1 and has approved
// the engine to take custody of it.
func NewEnv(options ...EnvOption) (*Env, error) {
	cfg := &envConfig{
		startingBalance: decimal.NewFromInt(10000),
		bidderCount:     3,
		start:           time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, option := range options {
		option(cfg)
	}

	env := &Env{
		Ledger:     token.NewMockLedger(),
		Assets:     assets.NewMockRegistry(),
		Clock:      NewClock(cfg.start),
		Medium:     crypto.Address{0xF0},
		Collection: crypto.Address{0xC0},
		Seller:     MustGenerateAccount(),
	}

	ledgers := token.NewRegistry()
	ledgers.Register(env.Medium, env.Ledger)

	engine, err := auction.NewEngine(auction.EngineConfig{
		Self:      crypto.Address{0xEE},
		Ledgers:   ledgers,
		Custodian: env.Assets,
		Clock:     env.Clock.Now,
		Log:       slog.Default(),
	})
	if err != nil {
		return nil, err
	}
	env.Engine = engine

	if err := env.Assets.Mint(env.Seller.Address, env.Collection, 1); err != nil {
		return nil, err
	}
	if err := env.Assets.Approve(env.Seller.Address, engine.Address(), env.Collection, 1); err != nil {
		return nil, err
	}

	for i := 0; i < cfg.bidderCount; i++ {
		bidder := MustGenerateAccount()
		env.Ledger.Mint(bidder.Address, cfg.startingBalance)
		if err := env.Ledger.Approve(bidder.Address, engine.Address(), cfg.startingBalance); err != nil {
			return nil, err
		}
		env.Bidders = append(env.Bidders, bidder)
	}

	return env, nil
}

// ListAsset creates an auction for asset 1 with the given minimum price and
// lifetime, sold by the environment's seller.
func (e *Env) ListAsset(minPrice decimal.Decimal, lifetime time.Duration) (auction.Record, error) {
	return e.Engine.CreateTokenAuction(e.Seller.Address, e.Collection, 1, e.Medium,
		minPrice, e.Clock.Now().Add(lifetime))
}
