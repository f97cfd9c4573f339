// Package token defines the fungible-token collaborator interface the
// auction engine settles bids in, along with an in-memory implementation.
//
// The engine never holds token state itself; it issues transfer commands
// against a Ledger and treats every call as one that can fail but not hang.
// MockLedger implements the interface with exact balance and allowance
// accounting so escrow-correctness tests are meaningful, and supports
// injected transfer failures to exercise the settlement refund path.
package token
