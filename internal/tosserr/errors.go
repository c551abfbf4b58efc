// Package tosserr declares the sentinel errors shared across the toss
// engine, correlation layer and chain watcher, following the package-level
// var Err... = errors.New(...) idiom lnwallet uses for WalletController
// errors.
package tosserr

import "github.com/go-errors/errors"

var (
	// ErrNotFound is returned when a toss, wallet or monitored address
	// cannot be located.
	ErrNotFound = errors.New("not found")

	// ErrBadState is returned when an operation is attempted against a
	// toss whose current status forbids it.
	ErrBadState = errors.New("toss is not in a valid state for this operation")

	// ErrDuplicateParticipant is returned when a user who has already
	// joined a toss attempts to join again.
	ErrDuplicateParticipant = errors.New("user has already joined this toss")

	// ErrInvalidOption is returned when a chosen option does not match
	// either of a toss's two outcome labels.
	ErrInvalidOption = errors.New("option does not match either toss outcome")

	// ErrUnpaid is returned when AddParticipant is invoked without proof
	// of payment.
	ErrUnpaid = errors.New("participant has not paid the stake")

	// ErrNotCreator is returned when someone other than the toss's
	// creator attempts to close or force-close it.
	ErrNotCreator = errors.New("only the toss creator may perform this action")

	// ErrNotEnoughPlayers is returned by Close when fewer than two
	// participants have joined.
	ErrNotEnoughPlayers = errors.New("at least two participants are required to close a toss")

	// ErrAmountTooLarge is returned when a stake or transfer amount
	// exceeds the configured per-call maximum.
	ErrAmountTooLarge = errors.New("amount exceeds the maximum allowed per call")

	// ErrInsufficientFunds is returned by WalletProvider.Transfer when
	// the escrow wallet's balance cannot cover the requested amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAddress is returned by WalletProvider.Transfer when the
	// destination address is malformed.
	ErrInvalidAddress = errors.New("invalid destination address")

	// ErrProviderUnavailable is returned when the custodial wallet
	// service cannot be reached.
	ErrProviderUnavailable = errors.New("wallet provider unavailable")

	// ErrUnresolvedOption is returned by the correlation layer when
	// neither metadata nor the amount remainder identify an option.
	ErrUnresolvedOption = errors.New("could not determine the chosen option for this payment")

	// ErrUnverifiedTx is returned when on-chain verification of a
	// referenced transaction does not complete within the retry budget.
	ErrUnverifiedTx = errors.New("transaction could not be verified on-chain")

	// ErrFailedTx is returned when a referenced transaction reverted or
	// otherwise did not succeed on-chain.
	ErrFailedTx = errors.New("transaction did not succeed on-chain")

	// ErrNotForUs is returned (and normally discarded rather than
	// surfaced) when a verified transfer's recipient is not a monitored
	// escrow wallet.
	ErrNotForUs = errors.New("transfer recipient is not a monitored escrow wallet")

	// ErrTransferFailed is returned when a payout or refund transfer
	// could not be completed by the wallet provider.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrActiveTossExists is returned by Create when the target
	// conversation already owns a non-terminal toss.
	ErrActiveTossExists = errors.New("conversation already has an active toss")
)
