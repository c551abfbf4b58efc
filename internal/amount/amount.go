// Package amount implements the stablecoin fixed-point type tossd moves
// around internally, and the remainder-tag codec that recovers a
// participant's chosen option from the minor-unit amount of an on-chain
// transfer.
//
// dcrutil.Amount hardcodes atoms at 1e-8 precision for the Decred native
// coin; the stablecoin here is a six-decimal ERC-20, so Amount implements
// the analogous fixed-point type directly rather than reusing dcrutil's.
package amount

import (
	"fmt"
	"math"
)

// Decimals is the number of fractional digits the stablecoin carries
// on-chain (USDC-style six-decimal ERC-20).
const Decimals = 6

// unit is the number of minor units per whole stablecoin unit.
const unit = 1_000_000

// MaxStake is the largest stake (and largest single WalletProvider
// transfer) tossd will accept, expressed in whole stablecoin units.
const MaxStake = 10.0

// DefaultStake is used when a parsed toss prompt omits an explicit amount.
const DefaultStake = 0.1

// Amount is a quantity of the stablecoin, stored as an integer count of
// minor units (1 minor unit = 10^-6 stablecoin units) to avoid floating
// point drift across repeated additions during payout distribution.
type Amount int64

// FromStake converts a decimal stake (e.g. 1.5) into minor units. The input
// is expected to already be validated against MaxStake by the caller.
func FromStake(stake float64) Amount {
	return Amount(math.Round(stake * unit))
}

// ToStake returns the decimal stablecoin-unit representation of a.
func (a Amount) ToStake() float64 {
	return float64(a) / unit
}

// String renders a as a fixed six-decimal string, e.g. "1.000001".
func (a Amount) String() string {
	whole := int64(a) / unit
	frac := int64(a) % unit
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%06d", whole, frac)
}

// Mul returns a scaled by n (used to compute a pot from a per-participant
// stake).
func (a Amount) Mul(n int) Amount {
	return a * Amount(n)
}

// Div splits a evenly by n, truncating any remainder (used to compute the
// per-winner prize; truncation means the pot may under-distribute by a few
// minor units, which is accepted dust and never recorded as a failure).
func (a Amount) Div(n int) Amount {
	if n <= 0 {
		return 0
	}
	return a / Amount(n)
}
