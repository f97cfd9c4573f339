package token

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/yuliyu123/nft-auction/crypto"
)

// Ledger is the fungible-token collaborator. Transfers either complete or
// return an error; there is no partial transfer and no cancellation.
//
// TransferFrom moves funds on behalf of another account and requires a prior
// allowance from that account to the spender, mirroring ERC20 semantics.
type Ledger interface {
	// BalanceOf returns the current balance of an account.
	BalanceOf(account crypto.Address) decimal.Decimal

	// Transfer moves amount from one account to another.
	Transfer(from, to crypto.Address, amount decimal.Decimal) error

	// TransferFrom moves amount from `from` to `to`, spending the allowance
	// `from` granted to `spender`.
	TransferFrom(spender, from, to crypto.Address, amount decimal.Decimal) error

	// Approve grants spender the right to move up to amount from owner.
	Approve(owner, spender crypto.Address, amount decimal.Decimal) error

	// Allowance returns how much spender may still move on behalf of owner.
	Allowance(owner, spender crypto.Address) decimal.Decimal
}

// Registry maps payment-medium addresses to their Ledger instances. An
// auction records only the medium's address; the engine resolves the live
// collaborator through the registry at call time.
type Registry struct {
	mu      sync.RWMutex
	ledgers map[crypto.Address]Ledger
}

// NewRegistry creates an empty ledger registry.
func NewRegistry() *Registry {
	return &Registry{ledgers: make(map[crypto.Address]Ledger)}
}

// Register associates a payment-medium address with a ledger, replacing any
// previous association.
func (r *Registry) Register(medium crypto.Address, ledger Ledger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ledgers[medium] = ledger
}

// Resolve returns the ledger for a payment medium.
func (r *Registry) Resolve(medium crypto.Address) (Ledger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ledger, ok := r.ledgers[medium]
	if !ok {
		return nil, fmt.Errorf("unknown payment medium %s", medium)
	}
	return ledger, nil
}
