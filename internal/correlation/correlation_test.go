package correlation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/tossd/tossd/internal/chainclient"
	"github.com/tossd/tossd/internal/metadata"
	"github.com/tossd/tossd/internal/store"
	"github.com/tossd/tossd/internal/tosserr"
)

type fakeVerifier struct {
	tx     *chainclient.Transaction
	status chainclient.TransactionStatus
	err    error
}

func (f *fakeVerifier) GetTransactionByHash(hash string) (*chainclient.Transaction, error) {
	return f.tx, f.err
}

func (f *fakeVerifier) GetTransactionStatus(hash string) (chainclient.TransactionStatus, error) {
	return f.status, nil
}

type fakeStore struct {
	addrToID map[string]string
}

func (f *fakeStore) FindWalletByAddress(address string) (string, []byte, error) {
	id, ok := f.addrToID[address]
	if !ok {
		return "", nil, tosserr.ErrNotFound
	}
	return id, nil, nil
}

type fakeTossLookup struct {
	options      [2]string
	terminal     bool
	participants map[string]bool
}

func (f *fakeTossLookup) Options(tossID string) ([2]string, error) { return f.options, nil }
func (f *fakeTossLookup) IsTerminal(tossID string) (bool, error)   { return f.terminal, nil }
func (f *fakeTossLookup) HasParticipant(tossID, sender string) (bool, error) {
	return f.participants[sender], nil
}

// storeAdapter satisfies store.Store minimally by delegating only
// FindWalletByAddress to fakeStore, since that is all the correlation
// layer calls.
type storeAdapter struct{ *fakeStore }

func (storeAdapter) Put(store.Collection, string, []byte) error       { return nil }
func (storeAdapter) Get(store.Collection, string) ([]byte, error)     { return nil, tosserr.ErrNotFound }
func (storeAdapter) Delete(store.Collection, string) error            { return nil }
func (storeAdapter) List(store.Collection) ([][]byte, error)          { return nil, nil }
func (storeAdapter) Close() error                                     { return nil }

func newTestLayer(t *testing.T, verifier Verifier, addrToID map[string]string, lookup TossLookup) *Layer {
	t.Helper()
	st := storeAdapter{&fakeStore{addrToID: addrToID}}
	return New(st, verifier, lookup)
}

func erc20Calldata(to string, value uint64) string {
	toWord := strings.Repeat("0", 24) + strings.TrimPrefix(to, "0x")
	valueWord := fmt.Sprintf("%064x", value)
	return "0x" + chainclient.TransferSelector + toWord + valueWord
}

func TestCorrelateExplicitMetadataWins(t *testing.T) {
	to := "0x1111111111111111111111111111111111111111"
	calldata := erc20Calldata(to, 1_000_005) // remainder 5 would decode to option index 4, out of range
	verifier := &fakeVerifier{
		tx:     &chainclient.Transaction{Hash: "0xabc", From: "0xsender", To: to, Input: calldata},
		status: chainclient.StatusSuccess,
	}

	layer := newTestLayer(t, verifier, map[string]string{to: "42"}, &fakeTossLookup{
		options:      [2]string{"yes", "no"},
		participants: map[string]bool{},
	})

	res, err := layer.Correlate(Input{
		TxHash:   "0xabc",
		Metadata: metadata.Bag{"option": "no"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Option != 1 || res.TossID != "42" || res.Sender != "0xsender" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCorrelateFallsBackToAmount(t *testing.T) {
	to := "0x2222222222222222222222222222222222222222"
	calldata := erc20Calldata(to, 1_000_002) // remainder 2 -> option index 1
	verifier := &fakeVerifier{
		tx:     &chainclient.Transaction{Hash: "0xabc", From: "0xsender", To: to, Input: calldata},
		status: chainclient.StatusSuccess,
	}

	layer := newTestLayer(t, verifier, map[string]string{to: "7"}, &fakeTossLookup{
		options:      [2]string{"yes", "no"},
		participants: map[string]bool{},
	})

	res, err := layer.Correlate(Input{TxHash: "0xabc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Option != 1 {
		t.Fatalf("expected option 1, got %d", res.Option)
	}
}

func TestCorrelateDuplicateIsIdempotent(t *testing.T) {
	to := "0x3333333333333333333333333333333333333333"
	calldata := erc20Calldata(to, 1_000_001)
	verifier := &fakeVerifier{
		tx:     &chainclient.Transaction{Hash: "0xabc", From: "0xsender", To: to, Input: calldata},
		status: chainclient.StatusSuccess,
	}

	layer := newTestLayer(t, verifier, map[string]string{to: "7"}, &fakeTossLookup{
		options:      [2]string{"yes", "no"},
		participants: map[string]bool{"0xsender": true},
	})

	_, err := layer.Correlate(Input{TxHash: "0xabc"})
	if err != tosserr.ErrDuplicateParticipant {
		t.Fatalf("expected ErrDuplicateParticipant, got %v", err)
	}
}

func TestCorrelateUnresolvedOption(t *testing.T) {
	to := "0x4444444444444444444444444444444444444444"
	calldata := erc20Calldata(to, 100_005) // remainder 5, but only two options
	verifier := &fakeVerifier{
		tx:     &chainclient.Transaction{Hash: "0xabc", From: "0xsender", To: to, Input: calldata},
		status: chainclient.StatusSuccess,
	}

	layer := newTestLayer(t, verifier, map[string]string{to: "7"}, &fakeTossLookup{
		options:      [2]string{"a", "b"},
		participants: map[string]bool{},
	})

	_, err := layer.Correlate(Input{TxHash: "0xabc"})
	if err != tosserr.ErrUnresolvedOption {
		t.Fatalf("expected ErrUnresolvedOption, got %v", err)
	}
}
