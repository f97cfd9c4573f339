// Package auction implements the escrowed-bid auction engine.
//
// The engine custodies one non-fungible asset per auction for the auction's
// lifetime, tracks competing bids from many bidders, and settles ownership
// and payment when the auction ends. Three pieces compose it:
//
//   - Registry: at most one live auction per (collection, asset) key, owning
//     the lifecycle state Active ⇄ Paused → Finalized.
//   - BidLedger: per-auction escrow accounting, recording exactly how much
//     each bidder has locked. The sum of locked amounts always equals what
//     the engine has pulled from bidders; a bidder raising their own bid
//     locks the new total, not the delta.
//   - Engine: orchestration. It is the only caller-facing surface, issues
//     all commands to the token ledger and asset custodian collaborators,
//     and serializes every mutating operation on a given key.
//
// Losing bidders stay escrowed until settlement: any still-standing bid can
// be out-bid again before the deadline, and each bidder can verify their
// locked amount at any time. Settlement pays the seller, delivers the asset,
// and refunds every loser; individual refund failures never block the rest
// of the payout and leave the affected bidder owed for a later retry.
package auction
