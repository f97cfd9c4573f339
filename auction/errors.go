package auction

import "errors"

// Error kinds returned by the engine. Callers classify with errors.Is; the
// wrapped message carries the detail.
var (
	// ErrNotFound indicates no auction (or asset) exists for the key.
	ErrNotFound = errors.New("auction not found")

	// ErrAlreadyListed indicates a live auction already exists for the key.
	ErrAlreadyListed = errors.New("asset already listed")

	// ErrAlreadyFinalized indicates the auction record is terminal.
	ErrAlreadyFinalized = errors.New("auction already finalized")

	// ErrUnauthorized indicates the caller is not the seller of the auction.
	ErrUnauthorized = errors.New("caller is not the seller")

	// ErrNotActive indicates bidding is not possible: the auction is paused,
	// finalized, or does not exist.
	ErrNotActive = errors.New("auction not active")

	// ErrExpired indicates the bidding deadline has passed.
	ErrExpired = errors.New("auction deadline passed")

	// ErrTooEarly indicates settlement was requested before the deadline.
	ErrTooEarly = errors.New("auction deadline not reached")

	// ErrInvalidDuration indicates the requested deadline is not in the future.
	ErrInvalidDuration = errors.New("deadline not in the future")

	// ErrBidTooLow indicates the bid does not meet the minimum price or does
	// not strictly exceed the current maximum bid.
	ErrBidTooLow = errors.New("bid too low")

	// ErrNotOwner indicates the caller does not hold the asset being listed.
	ErrNotOwner = errors.New("caller does not own the asset")

	// ErrTransferFailed indicates a collaborator rejected a transfer command.
	ErrTransferFailed = errors.New("collaborator transfer failed")
)
