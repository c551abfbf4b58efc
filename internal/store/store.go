// Package store defines the durable key/value contract tossd's engine,
// correlation layer and watcher bootstrap rely on: two named collections
// (tosses, wallets) plus a case-insensitive address-to-wallet reverse
// index, following the Store abstraction in the spec this daemon
// implements. Two implementations are provided: jsonstore (flat files,
// the reference/default layout) and mongostore (a pluggable alternative
// backed by MongoDB).
package store

import (
	"github.com/tossd/tossd/internal/tosserr"
)

// Collection names the two namespaces the Store persists.
type Collection string

const (
	// Tosses holds one record per toss, keyed by its decimal id.
	Tosses Collection = "tosses"

	// Wallets holds one record per custodial wallet, keyed by the
	// userId it was created for (for escrow wallets, userId == tossId).
	Wallets Collection = "wallets"
)

// ErrNotFound is returned by Get/FindWalletByAddress when no record
// exists for the requested key.
var ErrNotFound = tosserr.ErrNotFound

// Store is the durable mapping from identifier to record that the toss
// engine commits every lifecycle transition through. Implementations must
// make Put durable before returning, and must serve Get calls that follow a
// successful Put with the written value.
type Store interface {
	// Put overwrites (or creates) the record at collection/id with
	// value, a JSON-encoded payload. It is durable on return.
	Put(collection Collection, id string, value []byte) error

	// Get returns the JSON-encoded record at collection/id, or
	// ErrNotFound.
	Get(collection Collection, id string) ([]byte, error)

	// Delete removes the record at collection/id. Deleting a
	// non-existent record is not an error.
	Delete(collection Collection, id string) error

	// List returns every record currently stored in collection.
	List(collection Collection) ([][]byte, error)

	// FindWalletByAddress looks up a wallet record by its on-chain
	// address, case-insensitive over hex. Returns ErrNotFound if no
	// wallet owns address.
	FindWalletByAddress(address string) (id string, value []byte, err error)

	// Close releases any resources (file handles, database
	// connections) held by the store.
	Close() error
}
