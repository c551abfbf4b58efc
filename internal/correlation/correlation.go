// Package correlation implements the payment-intent correlation layer: it
// maps a verified on-chain transfer, plus any metadata carried alongside
// it, to the (toss, participant, chosen option) tuple the engine needs to
// record a join.
package correlation

import (
	"strings"
	"time"

	"github.com/decred/slog"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/tossd/tossd/internal/amount"
	"github.com/tossd/tossd/internal/chainclient"
	"github.com/tossd/tossd/internal/metadata"
	"github.com/tossd/tossd/internal/store"
	"github.com/tossd/tossd/internal/tosserr"
)

var log = slog.Disabled

// UseLogger directs package logging to logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// Verifier is the chain access the correlation layer needs: fetching a
// transaction by hash and checking whether it succeeded.
type Verifier interface {
	GetTransactionByHash(hash string) (*chainclient.Transaction, error)
	GetTransactionStatus(hash string) (chainclient.TransactionStatus, error)
}

// RetryInitialDelay, RetryBackoffFactor and RetryMaxAttempts govern the
// exponential backoff used while waiting for a referenced transaction to be
// mined.
const (
	RetryInitialDelay  = 5 * time.Second
	RetryBackoffFactor = 1.5
	RetryMaxAttempts   = 5
)

// Input is a unit of work for the correlation layer: a transaction hash,
// optional metadata extracted from a chat transport message (empty when
// the input came from the chain watcher), and an optional sender identity
// already known from the transport layer.
type Input struct {
	TxHash        string
	Metadata      metadata.Bag
	KnownSenderID string
}

// Result is a resolved payment intent.
type Result struct {
	TossID  string
	Option  int
	Sender  string
}

// TossLookup resolves a tossId to its current option list and status,
// decoupling the correlation layer from the engine's concrete Toss type.
type TossLookup interface {
	// Options returns the toss's two outcome labels.
	Options(tossID string) ([2]string, error)
	// IsTerminal reports whether the toss is COMPLETED or CANCELLED.
	IsTerminal(tossID string) (bool, error)
	// HasParticipant reports whether sender has already joined tossID.
	HasParticipant(tossID, sender string) (bool, error)
}

// Layer is the correlation layer.
type Layer struct {
	store    store.Store
	verifier Verifier
	codec    amount.Codec
	tosses   TossLookup
}

// New returns a correlation Layer.
func New(st store.Store, verifier Verifier, tosses TossLookup) *Layer {
	return &Layer{
		store:    st,
		verifier: verifier,
		codec:    amount.NewCodec(),
		tosses:   tosses,
	}
}

// Correlate runs the full procedure of spec section 4.4 against in,
// returning a resolved Result or a tagged error: tosserr.ErrUnverifiedTx,
// tosserr.ErrFailedTx, tosserr.ErrNotForUs (silently discard upstream),
// tosserr.ErrUnresolvedOption, or tosserr.ErrDuplicateParticipant.
func (l *Layer) Correlate(in Input) (Result, error) {
	status, err := l.waitForVerification(in.TxHash)
	if err != nil {
		return Result{}, tosserr.ErrUnverifiedTx
	}
	if status != chainclient.StatusSuccess {
		return Result{}, tosserr.ErrFailedTx
	}

	tx, err := l.verifier.GetTransactionByHash(in.TxHash)
	if err != nil || tx == nil {
		return Result{}, tosserr.ErrUnverifiedTx
	}

	to, value, ok := chainclient.DecodeERC20Transfer(tx.Input)
	if !ok {
		return Result{}, tosserr.ErrNotForUs
	}

	// The escrow wallet's userId is the toss's own id (spec's resolution
	// of the wallet/toss key-sharing open question), so the wallet
	// record's store key doubles as the toss id directly.
	tossID, _, err := l.store.FindWalletByAddress(to)
	if err != nil {
		return Result{}, tosserr.ErrNotForUs
	}

	terminal, err := l.tosses.IsTerminal(tossID)
	if err != nil {
		return Result{}, tosserr.ErrNotForUs
	}
	if terminal {
		return Result{}, tosserr.ErrNotForUs
	}

	options, err := l.tosses.Options(tossID)
	if err != nil {
		return Result{}, tosserr.ErrNotForUs
	}

	optionIdx, resolved := l.resolveOption(in.Metadata, options, amount.Amount(value))
	if !resolved {
		return Result{}, tosserr.ErrUnresolvedOption
	}

	sender := in.KnownSenderID
	if sender == "" {
		sender = tx.From
	}

	has, err := l.tosses.HasParticipant(tossID, sender)
	if err != nil {
		return Result{}, err
	}
	if has {
		return Result{}, tosserr.ErrDuplicateParticipant
	}

	return Result{TossID: tossID, Option: optionIdx, Sender: sender}, nil
}

// resolveOption implements the fallback ladder of steps 6-7: explicit
// metadata first (authoritative when present), amount-encoded remainder
// second (survives hostile re-serialization).
func (l *Layer) resolveOption(meta metadata.Bag, options [2]string, received amount.Amount) (int, bool) {
	if meta != nil {
		if marker, ok := meta.Option(); ok {
			for i, opt := range options {
				if strings.EqualFold(opt, marker) {
					return i, true
				}
			}
		}
	}
	return l.codec.Decode(received, len(options))
}

// errStillPending is the sentinel juju/retry sees to know the call has not
// yet succeeded and should be retried.
var errStillPending = tosserr.ErrUnverifiedTx

// waitForVerification polls the verifier with exponential backoff (initial
// delay RetryInitialDelay, factor RetryBackoffFactor, up to
// RetryMaxAttempts) until the transaction's status is known, fail-closed on
// exhaustion.
func (l *Layer) waitForVerification(hash string) (chainclient.TransactionStatus, error) {
	var status chainclient.TransactionStatus

	err := retry.Call(retry.CallArgs{
		Attempts: RetryMaxAttempts,
		Delay:    RetryInitialDelay,
		Clock:    clock.WallClock,
		BackoffFunc: func(delay time.Duration, attempt int) time.Duration {
			return time.Duration(float64(delay) * RetryBackoffFactor)
		},
		Func: func() error {
			s, err := l.verifier.GetTransactionStatus(hash)
			if err != nil {
				log.Debugf("correlation: verify %s failed, will retry: %v", hash, err)
				return errStillPending
			}
			if s == chainclient.StatusPending {
				return errStillPending
			}
			status = s
			return nil
		},
	})
	if err != nil {
		return chainclient.StatusPending, tosserr.ErrUnverifiedTx
	}
	return status, nil
}
