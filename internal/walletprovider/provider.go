// Package walletprovider declares the opaque custodial wallet capability
// tossd delegates all key custody and fund movement to, and an HTTP
// adapter for a concrete wallet service.
package walletprovider

import (
	"github.com/tossd/tossd/internal/amount"
)

// Wallet is the record a WalletProvider hands back for a userId.
type Wallet struct {
	Address      string `json:"address"`
	ProviderBlob string `json:"providerBlob"`
}

// TransferResult is the evidence a successful Transfer call returns.
type TransferResult struct {
	Hash string
	Link string
}

// Provider is the opaque custodial wallet capability. The engine never
// inspects private key material; it only ever sees userId, address and
// amount.
type Provider interface {
	// Create provisions (or returns, if already provisioned) the
	// custodial wallet for userId. The engine always calls this with a
	// freshly allocated tossId.
	Create(userId string) (Wallet, error)

	// Load returns the previously created wallet for userId, or
	// tosserr.ErrNotFound.
	Load(userId string) (Wallet, error)

	// Balance returns userId's wallet's stablecoin balance.
	Balance(userId string) (amount.Amount, error)

	// Transfer sends amt from fromUserId's wallet to toAddress.
	// Implementations should return tosserr.ErrAmountTooLarge for amt >
	// amount.MaxStake, tosserr.ErrInsufficientFunds,
	// tosserr.ErrInvalidAddress or tosserr.ErrProviderUnavailable as
	// appropriate; the call need not block for on-chain confirmation.
	Transfer(fromUserId, toAddress string, amt amount.Amount) (TransferResult, error)
}
