package token

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/yuliyu123/nft-auction/crypto"
)

// MockLedger implements Ledger with in-memory accounting. Balances and
// allowances are enforced exactly; an overdrawn transfer fails and moves
// nothing. It is used by tests, the demo binary, and single-process
// deployments where the payment medium runs inside the service.
type MockLedger struct {
	mu         sync.RWMutex
	balances   map[crypto.Address]decimal.Decimal
	allowances map[crypto.Address]map[crypto.Address]decimal.Decimal
	failTo     map[crypto.Address]bool
}

// NewMockLedger creates an empty ledger.
func NewMockLedger() *MockLedger {
	return &MockLedger{
		balances:   make(map[crypto.Address]decimal.Decimal),
		allowances: make(map[crypto.Address]map[crypto.Address]decimal.Decimal),
		failTo:     make(map[crypto.Address]bool),
	}
}

// Mint credits an account out of thin air. Test and demo setup only.
func (l *MockLedger) Mint(account crypto.Address, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] = l.balance(account).Add(amount)
}

// FailTransfersTo makes every subsequent transfer crediting the given account
// fail, simulating a collaborator-side rejection during refund fan-out.
func (l *MockLedger) FailTransfersTo(account crypto.Address, fail bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failTo[account] = fail
}

// BalanceOf returns the current balance of an account.
func (l *MockLedger) BalanceOf(account crypto.Address) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balance(account)
}

// Transfer moves amount between accounts.
func (l *MockLedger) Transfer(from, to crypto.Address, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(from, to, amount)
}

// TransferFrom moves amount from `from` to `to`, consuming the allowance
// granted to spender.
func (l *MockLedger) TransferFrom(spender, from, to crypto.Address, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	allowed := l.allowance(from, spender)
	if allowed.LessThan(amount) {
		return fmt.Errorf("allowance of %s for %s is %s, need %s", from, spender, allowed, amount)
	}

	if err := l.move(from, to, amount); err != nil {
		return err
	}

	l.allowances[from][spender] = allowed.Sub(amount)
	return nil
}

// Approve grants spender the right to move up to amount from owner.
func (l *MockLedger) Approve(owner, spender crypto.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("negative allowance %s", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.allowances[owner] == nil {
		l.allowances[owner] = make(map[crypto.Address]decimal.Decimal)
	}
	l.allowances[owner][spender] = amount
	return nil
}

// Allowance returns how much spender may still move on behalf of owner.
func (l *MockLedger) Allowance(owner, spender crypto.Address) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowance(owner, spender)
}

func (l *MockLedger) balance(account crypto.Address) decimal.Decimal {
	if b, ok := l.balances[account]; ok {
		return b
	}
	return decimal.Zero
}

func (l *MockLedger) allowance(owner, spender crypto.Address) decimal.Decimal {
	if m, ok := l.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return a
		}
	}
	return decimal.Zero
}

func (l *MockLedger) move(from, to crypto.Address, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("non-positive transfer amount %s", amount)
	}
	if l.failTo[to] {
		return fmt.Errorf("transfer to %s rejected", to)
	}

	fromBal := l.balance(from)
	if fromBal.LessThan(amount) {
		return fmt.Errorf("balance of %s is %s, need %s", from, fromBal, amount)
	}

	l.balances[from] = fromBal.Sub(amount)
	l.balances[to] = l.balance(to).Add(amount)
	return nil
}
