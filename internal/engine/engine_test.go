package engine

import (
	"sync"
	"testing"

	"github.com/tossd/tossd/internal/amount"
	"github.com/tossd/tossd/internal/store"
	"github.com/tossd/tossd/internal/tosserr"
	"github.com/tossd/tossd/internal/walletprovider"
)

// memStore is a minimal in-memory store.Store for engine tests.
type memStore struct {
	mu   sync.Mutex
	data map[store.Collection]map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: map[store.Collection]map[string][]byte{
		store.Tosses:  {},
		store.Wallets: {},
	}}
}

func (m *memStore) Put(c store.Collection, id string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[c][id] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) Get(c store.Collection, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[c][id]
	if !ok {
		return nil, tosserr.ErrNotFound
	}
	return v, nil
}

func (m *memStore) Delete(c store.Collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[c], id)
	return nil
}

func (m *memStore) List(c store.Collection) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, 0, len(m.data[c]))
	for _, v := range m.data[c] {
		out = append(out, v)
	}
	return out, nil
}

func (m *memStore) FindWalletByAddress(address string) (string, []byte, error) {
	return "", nil, tosserr.ErrNotFound
}

func (m *memStore) Close() error { return nil }

// fakeWallets is an in-memory walletprovider.Provider. Every userId has an
// address of "0xaddr-<userId>"; balances default to zero and are never
// auto-funded by Create, since engine tests fund escrow balances directly
// to simulate observed on-chain deposits.
type fakeWallets struct {
	mu        sync.Mutex
	balances  map[string]amount.Amount
	failOn    map[string]bool
	transfers []fakeTransfer
}

type fakeTransfer struct {
	fromUserId, toAddress string
	amt                   amount.Amount
}

func newFakeWallets() *fakeWallets {
	return &fakeWallets{balances: map[string]amount.Amount{}, failOn: map[string]bool{}}
}

func (f *fakeWallets) Create(userId string) (walletprovider.Wallet, error) {
	return walletprovider.Wallet{Address: addrFor(userId)}, nil
}

func (f *fakeWallets) Load(userId string) (walletprovider.Wallet, error) {
	return walletprovider.Wallet{Address: addrFor(userId)}, nil
}

func (f *fakeWallets) Balance(userId string) (amount.Amount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userId], nil
}

func (f *fakeWallets) Transfer(fromUserId, toAddress string, amt amount.Amount) (walletprovider.TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn[toAddress] {
		return walletprovider.TransferResult{}, tosserr.ErrTransferFailed
	}
	f.transfers = append(f.transfers, fakeTransfer{fromUserId, toAddress, amt})
	return walletprovider.TransferResult{Hash: "0xhash-" + toAddress, Link: "https://explorer/0xhash-" + toAddress}, nil
}

func addrFor(userId string) string { return "0xaddr-" + userId }

// fakeWatcher records AddWallet/RemoveWallet calls without any polling.
type fakeWatcher struct {
	mu      sync.Mutex
	added   map[string]string // address -> tossId
	removed []string
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{added: map[string]string{}}
}

func (f *fakeWatcher) AddWallet(address, tossId string, startBlock uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added[address] = tossId
	return nil
}

func (f *fakeWatcher) RemoveWallet(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.added, address)
	f.removed = append(f.removed, address)
}

func newTestEngine() (*Engine, *fakeWallets, *fakeWatcher) {
	st := newMemStore()
	w := newFakeWallets()
	wt := newFakeWatcher()
	e := New(st, w, wt, "local")
	return e, w, wt
}

func mustCreate(t *testing.T, e *Engine, creator, conv string, options [2]string, stake float64) *Toss {
	t.Helper()
	toss, err := e.Create(creator, ParsedToss{
		Topic:   "test topic",
		Options: options,
		Stake:   amount.FromStake(stake),
	}, conv)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return toss
}

func TestCreateAllocatesMonotoneIds(t *testing.T) {
	e, _, wt := newTestEngine()
	t1 := mustCreate(t, e, "A", "conv1", [2]string{"yes", "no"}, 0.1)
	t2 := mustCreate(t, e, "A", "conv2", [2]string{"yes", "no"}, 0.1)
	if t1.Id == t2.Id {
		t.Fatalf("expected distinct ids, got %s twice", t1.Id)
	}
	if len(wt.added) != 2 {
		t.Fatalf("expected both escrow wallets registered with watcher, got %d", len(wt.added))
	}
}

func TestCreateRejectsStakeAboveMax(t *testing.T) {
	e, _, _ := newTestEngine()
	_, err := e.Create("A", ParsedToss{
		Topic:   "t",
		Options: [2]string{"yes", "no"},
		Stake:   amount.FromStake(11),
	}, "")
	if err != tosserr.ErrAmountTooLarge {
		t.Fatalf("expected ErrAmountTooLarge, got %v", err)
	}
}

func TestCreateRejectsSecondActiveTossInConv(t *testing.T) {
	e, _, _ := newTestEngine()
	mustCreate(t, e, "A", "conv1", [2]string{"yes", "no"}, 0.1)
	_, err := e.Create("A", ParsedToss{
		Topic:   "t2",
		Options: [2]string{"yes", "no"},
		Stake:   amount.FromStake(0.1),
	}, "conv1")
	if err != tosserr.ErrActiveTossExists {
		t.Fatalf("expected ErrActiveTossExists, got %v", err)
	}
}

// TestCreateSerializesConcurrentCreationsInSameConv fires two Create calls
// for the same conv concurrently and asserts exactly one succeeds, per
// scenario 7's single-active-per-conv invariant under concurrent creation.
func TestCreateSerializesConcurrentCreationsInSameConv(t *testing.T) {
	e, _, _ := newTestEngine()

	var wg sync.WaitGroup
	results := make([]error, 2)
	start := make(chan struct{})

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := e.Create("A", ParsedToss{
				Topic:   "t",
				Options: [2]string{"yes", "no"},
				Stake:   amount.FromStake(0.1),
			}, "conv1")
			results[i] = err
		}(i)
	}
	close(start)
	wg.Wait()

	successes := 0
	rejections := 0
	for _, err := range results {
		switch err {
		case nil:
			successes++
		case tosserr.ErrActiveTossExists:
			rejections++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || rejections != 1 {
		t.Fatalf("expected exactly one success and one rejection, got %d successes, %d rejections", successes, rejections)
	}
}

// TestHappyPathCreatorWins implements end-to-end scenario 1: two
// participants, creator wins, one payout of double the stake.
func TestHappyPathCreatorWins(t *testing.T) {
	e, w, _ := newTestEngine()
	toss := mustCreate(t, e, "A", "c1", [2]string{"Lakers", "Celtics"}, 1.0)

	if _, err := e.AddParticipant(toss.Id, "A", "Lakers", true); err != nil {
		t.Fatalf("A join failed: %v", err)
	}
	if _, err := e.AddParticipant(toss.Id, "B", "Celtics", true); err != nil {
		t.Fatalf("B join failed: %v", err)
	}

	result, err := e.Close(toss.Id, "A", "Lakers")
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if result.Status != StatusCompleted || result.Result != "Lakers" || !result.PaymentSuccess {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(w.transfers) != 1 || w.transfers[0].amt != amount.FromStake(2.0) {
		t.Fatalf("expected one payout of 2.0, got %+v", w.transfers)
	}
}

// TestTieSplitsEqually implements end-to-end scenario 2.
func TestTieSplitsEqually(t *testing.T) {
	e, w, _ := newTestEngine()
	toss := mustCreate(t, e, "A", "c1", [2]string{"Lakers", "Celtics"}, 1.0)

	e.AddParticipant(toss.Id, "A", "Lakers", true)
	e.AddParticipant(toss.Id, "B", "Lakers", true)

	result, err := e.Close(toss.Id, "A", "Lakers")
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !result.PaymentSuccess || len(w.transfers) != 2 {
		t.Fatalf("expected two payouts, got %+v", w.transfers)
	}
	for _, tr := range w.transfers {
		if tr.amt != amount.FromStake(1.0) {
			t.Fatalf("expected 1.0 per winner, got %s", tr.amt)
		}
	}
}

// TestNoWinnersAllFundsToOtherSide implements end-to-end scenario 3.
func TestNoWinnersAllFundsToOtherSide(t *testing.T) {
	e, w, _ := newTestEngine()
	toss := mustCreate(t, e, "A", "c1", [2]string{"Lakers", "Celtics"}, 1.0)

	e.AddParticipant(toss.Id, "A", "Lakers", true)
	e.AddParticipant(toss.Id, "B", "Celtics", true)

	result, err := e.Close(toss.Id, "A", "Celtics")
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if result.Result != "Celtics" || result.Status != StatusCompleted {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(w.transfers) != 1 || w.transfers[0].amt != amount.FromStake(2.0) {
		t.Fatalf("expected single 2.0 payout to B, got %+v", w.transfers)
	}
}

// TestForceCloseRefunds implements end-to-end scenario 4.
func TestForceCloseRefunds(t *testing.T) {
	e, w, wt := newTestEngine()
	toss := mustCreate(t, e, "A", "c1", [2]string{"yes", "no"}, 0.1)

	e.AddParticipant(toss.Id, "A", "yes", true)
	e.AddParticipant(toss.Id, "B", "no", true)

	result, err := e.ForceClose(toss.Id, "A")
	if err != nil {
		t.Fatalf("ForceClose failed: %v", err)
	}
	if result.Status != StatusCancelled || result.Result != ResultForceClosed {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(w.transfers) != 2 {
		t.Fatalf("expected two refunds, got %+v", w.transfers)
	}
	for _, tr := range w.transfers {
		if tr.amt != amount.FromStake(0.1) {
			t.Fatalf("expected 0.1 refund, got %s", tr.amt)
		}
	}
	if len(wt.removed) != 1 {
		t.Fatalf("expected escrow wallet removed from watcher, got %v", wt.removed)
	}
}

func TestForceCloseEmptyTossNoTransfers(t *testing.T) {
	e, w, _ := newTestEngine()
	toss := mustCreate(t, e, "A", "c1", [2]string{"yes", "no"}, 0.1)

	result, err := e.ForceClose(toss.Id, "A")
	if err != nil {
		t.Fatalf("ForceClose failed: %v", err)
	}
	if result.Status != StatusCancelled || !result.PaymentSuccess {
		t.Fatalf("expected successful empty force-close, got %+v", result)
	}
	if len(w.transfers) != 0 {
		t.Fatalf("expected no transfers, got %+v", w.transfers)
	}
}

func TestDuplicateParticipantRejected(t *testing.T) {
	e, _, _ := newTestEngine()
	toss := mustCreate(t, e, "A", "c1", [2]string{"yes", "no"}, 0.1)
	if _, err := e.AddParticipant(toss.Id, "A", "yes", true); err != nil {
		t.Fatalf("first join failed: %v", err)
	}
	if _, err := e.AddParticipant(toss.Id, "A", "no", true); err != tosserr.ErrDuplicateParticipant {
		t.Fatalf("expected ErrDuplicateParticipant, got %v", err)
	}
}

func TestCloseRequiresTwoParticipants(t *testing.T) {
	e, _, _ := newTestEngine()
	toss := mustCreate(t, e, "A", "c1", [2]string{"yes", "no"}, 0.1)
	e.AddParticipant(toss.Id, "A", "yes", true)
	if _, err := e.Close(toss.Id, "A", "yes"); err != tosserr.ErrNotEnoughPlayers {
		t.Fatalf("expected ErrNotEnoughPlayers, got %v", err)
	}
}

func TestCloseRequiresCreator(t *testing.T) {
	e, _, _ := newTestEngine()
	toss := mustCreate(t, e, "A", "c1", [2]string{"yes", "no"}, 0.1)
	e.AddParticipant(toss.Id, "A", "yes", true)
	e.AddParticipant(toss.Id, "B", "no", true)
	if _, err := e.Close(toss.Id, "B", "yes"); err != tosserr.ErrNotCreator {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}
}

// TestTerminalStateRejectsFurtherMutation implements testable invariant 7.
func TestTerminalStateRejectsFurtherMutation(t *testing.T) {
	e, _, _ := newTestEngine()
	toss := mustCreate(t, e, "A", "c1", [2]string{"yes", "no"}, 0.1)
	e.AddParticipant(toss.Id, "A", "yes", true)
	e.AddParticipant(toss.Id, "B", "no", true)
	if _, err := e.Close(toss.Id, "A", "yes"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := e.AddParticipant(toss.Id, "C", "yes", true); err != tosserr.ErrBadState {
		t.Fatalf("expected ErrBadState for join after close, got %v", err)
	}
	if _, err := e.Close(toss.Id, "A", "no"); err != tosserr.ErrBadState {
		t.Fatalf("expected ErrBadState for double close, got %v", err)
	}
	if _, err := e.ForceClose(toss.Id, "A"); err != tosserr.ErrBadState {
		t.Fatalf("expected ErrBadState for force-close after close, got %v", err)
	}
}

func TestInvalidOptionRejected(t *testing.T) {
	e, _, _ := newTestEngine()
	toss := mustCreate(t, e, "A", "c1", [2]string{"yes", "no"}, 0.1)
	if _, err := e.AddParticipant(toss.Id, "A", "maybe", true); err != tosserr.ErrInvalidOption {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}
}

// TestRefreshMarksUnknownRatherThanGuessing covers the spec's open-question
// resolution: unrecorded paid-in participants are attributed an UNKNOWN
// option, never a guessed "first option".
func TestRefreshMarksUnknownRatherThanGuessing(t *testing.T) {
	e, w, _ := newTestEngine()
	toss := mustCreate(t, e, "A", "c1", [2]string{"yes", "no"}, 0.1)
	e.AddParticipant(toss.Id, "A", "yes", true)

	// Simulate an unrecorded deposit: balance reflects two stakes though
	// only one participant is on record.
	w.balances[toss.Id] = amount.FromStake(0.2)

	if _, err := e.Refresh(toss.Id); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	updated, err := e.Status(toss.Id)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(updated.Participants) != 2 {
		t.Fatalf("expected refresh to add one unrecorded participant, got %+v", updated.Participants)
	}
	if updated.ParticipantOptions[1].Option != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN option for unrecorded slot, got %q", updated.ParticipantOptions[1].Option)
	}
}

func TestGetActiveForConvOnlyReturnsNonTerminal(t *testing.T) {
	e, _, _ := newTestEngine()
	toss := mustCreate(t, e, "A", "c1", [2]string{"yes", "no"}, 0.1)
	e.AddParticipant(toss.Id, "A", "yes", true)
	e.AddParticipant(toss.Id, "B", "no", true)

	if _, err := e.GetActiveForConv("c1"); err != nil {
		t.Fatalf("expected active toss before close, got err %v", err)
	}

	if _, err := e.Close(toss.Id, "A", "yes"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := e.GetActiveForConv("c1"); err != tosserr.ErrNotFound {
		t.Fatalf("expected no active toss after close, got err %v", err)
	}
}

func TestPotConservationAcrossPayoutsAndFailures(t *testing.T) {
	e, w, _ := newTestEngine()
	toss := mustCreate(t, e, "A", "c1", [2]string{"yes", "no"}, 1.0)
	e.AddParticipant(toss.Id, "A", "yes", true)
	e.AddParticipant(toss.Id, "B", "yes", true)
	w.failOn[addrFor("B")] = true

	result, err := e.Close(toss.Id, "A", "yes")
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if len(result.FailedWinners) != 1 || result.FailedWinners[0] != "B" {
		t.Fatalf("expected B recorded as failed winner, got %+v", result.FailedWinners)
	}
	if !result.PaymentSuccess {
		t.Fatalf("expected partial success to still mark PaymentSuccess true")
	}
}
