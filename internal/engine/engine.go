// Package engine implements the TossEngine: the per-toss state machine
// that coordinates creation, participation, closing and fund distribution,
// enforces single-active-toss-per-conversation, and commits every
// transition to the Store before it is visible to a caller.
//
// Locking follows the map-of-drivers-plus-registry-mutex idiom in
// lnwallet/interface.go's RegisterWallet/RegisteredWallets, generalized
// from one registry mutex guarding a map to a striped per-id mutex map: a
// short-held global mutex only guards allocation of a new id and creation
// of a new per-id lock, while the actual state mutation for toss N holds
// only N's own lock.
package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/tossd/tossd/internal/amount"
	"github.com/tossd/tossd/internal/store"
	"github.com/tossd/tossd/internal/tossmon"
	"github.com/tossd/tossd/internal/tosserr"
	"github.com/tossd/tossd/internal/walletprovider"
)

var metrics *tossmon.Metrics

// UseMetrics directs the engine to record toss lifecycle counters against m.
// Unset by default, so tests that never call it run with no instrumentation.
func UseMetrics(m *tossmon.Metrics) {
	metrics = m
}

// WalletRegistry is the subset of *watcher.Watcher the engine needs:
// registering and deregistering escrow addresses for on-chain monitoring.
// Split out, like watcher.ChainReader and correlation.TossLookup, so
// engine tests can supply a fake instead of a real poller.
type WalletRegistry interface {
	AddWallet(address, tossId string, startBlock uint64) error
	RemoveWallet(address string)
}

var log = slog.Disabled

// UseLogger directs package logging to logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// Status enumerates a toss's position in the lifecycle state machine.
type Status string

const (
	StatusCreated           Status = "CREATED"
	StatusWaitingForPlayer  Status = "WAITING_FOR_PLAYER"
	StatusInProgress        Status = "IN_PROGRESS"
	StatusCompleted         Status = "COMPLETED"
	StatusCancelled         Status = "CANCELLED"
)

// ResultForceClosed marks a toss cancelled through ForceClose rather than
// cancelled for some other reason.
const ResultForceClosed = "FORCE_CLOSED"

// ParticipantOption pairs a participant with their recorded option choice,
// parallel to Toss.Participants in join order.
type ParticipantOption struct {
	UserId string `json:"userId"`
	Option string `json:"option"`
}

// Toss is the central persisted entity: one wagering round.
type Toss struct {
	Id                 string               `json:"id"`
	Creator            string               `json:"creator"`
	ConversationId     string               `json:"conversationId,omitempty"`
	Stake              amount.Amount        `json:"stake"`
	Topic              string               `json:"topic"`
	Options            [2]string            `json:"options"`
	WalletAddress      string               `json:"walletAddress"`
	CreatedAt          int64                `json:"createdAt"`
	Status             Status               `json:"status"`
	Participants       []string             `json:"participants"`
	ParticipantOptions []ParticipantOption  `json:"participantOptions"`
	Result             string               `json:"result,omitempty"`
	PaymentSuccess     bool                 `json:"paymentSuccess"`
	TxHash             string               `json:"txHash,omitempty"`
	TxLink             string               `json:"txLink,omitempty"`
	FailedWinners      []string             `json:"failedWinners,omitempty"`
	FailedRefunds      []string             `json:"failedRefunds,omitempty"`
	Network            string               `json:"network,omitempty"`
}

// isTerminal reports whether s admits no further mutation.
func (s Status) isTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// clone returns a deep copy of t, since callers outside the engine's lock
// must never observe (or mutate) the live record.
func (t *Toss) clone() *Toss {
	cp := *t
	cp.Participants = append([]string(nil), t.Participants...)
	cp.ParticipantOptions = append([]ParticipantOption(nil), t.ParticipantOptions...)
	cp.FailedWinners = append([]string(nil), t.FailedWinners...)
	cp.FailedRefunds = append([]string(nil), t.FailedRefunds...)
	return &cp
}

// hasOption reports whether candidate matches one of t's two outcome
// labels, case-insensitively, returning the canonical spelling.
func (t *Toss) hasOption(candidate string) (string, bool) {
	for _, opt := range t.Options {
		if strings.EqualFold(opt, candidate) {
			return opt, true
		}
	}
	return "", false
}

// hasParticipant reports whether user has already joined t.
func (t *Toss) hasParticipant(user string) bool {
	for _, p := range t.Participants {
		if p == user {
			return true
		}
	}
	return false
}

// Clock is the time source the engine stamps records with, split out so
// tests can supply a deterministic one.
type Clock func() int64

func systemClock() int64 { return time.Now().UnixMilli() }

// ParsedToss is the record AgentFront hands the engine after the opaque
// TossParser has turned free text into structured fields.
type ParsedToss struct {
	Topic   string
	Options [2]string
	Stake   amount.Amount
}

// Engine is the TossEngine. All exported methods are safe for concurrent
// use by multiple callers.
type Engine struct {
	store    store.Store
	wallets  walletprovider.Provider
	watcher  WalletRegistry
	network  string
	now      Clock

	idMtx   sync.Mutex
	nextId  int64
	locks   map[string]*sync.Mutex
	locksMu sync.Mutex

	convLocks   map[string]*sync.Mutex
	convLocksMu sync.Mutex
}

// New returns an Engine persisting to st, moving funds through wallets,
// and registering escrow addresses with w for on-chain monitoring. network
// is stamped on every persisted record and used in the on-disk filename.
func New(st store.Store, wallets walletprovider.Provider, w WalletRegistry, network string) *Engine {
	e := &Engine{
		store:     st,
		wallets:   wallets,
		watcher:   w,
		network:   network,
		now:       systemClock,
		locks:     make(map[string]*sync.Mutex),
		convLocks: make(map[string]*sync.Mutex),
	}
	e.restoreWatcherSet()
	return e
}

// restoreWatcherSet re-registers every non-terminal toss's escrow wallet
// with the ChainWatcher, since the monitored-wallet set is in-memory only
// and must be rebuilt at start-up from durable state.
func (e *Engine) restoreWatcherSet() {
	raws, err := e.store.List(store.Tosses)
	if err != nil {
		log.Errorf("engine: could not list tosses for watcher restore: %v", err)
		return
	}
	var maxId int64
	for _, raw := range raws {
		var t Toss
		if err := json.Unmarshal(raw, &t); err != nil {
			log.Warnf("engine: skipping unreadable toss record: %v", err)
			continue
		}
		if id, err := strconv.ParseInt(t.Id, 10, 64); err == nil && id > maxId {
			maxId = id
		}
		if !t.Status.isTerminal() && e.watcher != nil {
			if err := e.watcher.AddWallet(t.WalletAddress, t.Id, 0); err != nil {
				log.Errorf("engine: could not restore watcher entry for toss %s: %v", t.Id, err)
			}
		}
	}
	e.nextId = maxId
}

// lockFor returns the mutex guarding tossId's record, creating it under a
// short-held global lock if this is the first reference. The returned
// mutex itself is held by the caller for the actual mutation.
func (e *Engine) lockFor(tossId string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	m, ok := e.locks[tossId]
	if !ok {
		m = &sync.Mutex{}
		e.locks[tossId] = m
	}
	return m
}

// lockForConv returns the mutex guarding conv's single-active-toss
// invariant, creating it under a short-held global lock if this is the
// first reference. Held across the check-then-persist window in Create so
// two concurrent creations in the same conversation can't both pass the
// uniqueness check.
func (e *Engine) lockForConv(conv string) *sync.Mutex {
	e.convLocksMu.Lock()
	defer e.convLocksMu.Unlock()
	m, ok := e.convLocks[conv]
	if !ok {
		m = &sync.Mutex{}
		e.convLocks[conv] = m
	}
	return m
}

// allocateId returns the next monotonically increasing decimal toss id.
func (e *Engine) allocateId() string {
	e.idMtx.Lock()
	defer e.idMtx.Unlock()
	e.nextId++
	return strconv.FormatInt(e.nextId, 10)
}

func (e *Engine) load(tossId string) (*Toss, error) {
	raw, err := e.store.Get(store.Tosses, tossId)
	if err != nil {
		return nil, err
	}
	var t Toss
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (e *Engine) persist(t *Toss) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return e.store.Put(store.Tosses, t.Id, raw)
}

// walletIndexRecord is the minimal blob the store's address index is built
// from; the escrow wallet's userId is the toss's own id, so keying this
// record by tossId doubles as the wallet-to-toss mapping the correlation
// layer needs.
type walletIndexRecord struct {
	Address string `json:"address"`
}

func (e *Engine) persistWalletIndex(tossId, address string) error {
	raw, err := json.Marshal(walletIndexRecord{Address: address})
	if err != nil {
		return err
	}
	return e.store.Put(store.Wallets, tossId, raw)
}

// Create allocates a new toss for creator, validates the stake (options
// are stored as given), provisions its escrow wallet, persists it and registers the wallet with
// the ChainWatcher. conv, if non-empty, binds the toss to one conversation
// and must not already own a non-terminal toss.
func (e *Engine) Create(creator string, parsed ParsedToss, conv string) (*Toss, error) {
	if parsed.Stake <= 0 || parsed.Stake.ToStake() > amount.MaxStake {
		return nil, tosserr.ErrAmountTooLarge
	}

	if conv != "" {
		convLock := e.lockForConv(conv)
		convLock.Lock()
		defer convLock.Unlock()

		if existing, err := e.GetActiveForConv(conv); err == nil && existing != nil {
			return nil, tosserr.ErrActiveTossExists
		}
	}

	id := e.allocateId()
	wallet, err := e.wallets.Create(id)
	if err != nil {
		return nil, tosserr.ErrProviderUnavailable
	}

	t := &Toss{
		Id:             id,
		Creator:        creator,
		ConversationId: conv,
		Stake:          parsed.Stake,
		Topic:          parsed.Topic,
		Options:        parsed.Options,
		WalletAddress:  wallet.Address,
		CreatedAt:      e.now(),
		Status:         StatusCreated,
		Network:        e.network,
	}

	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if err := e.persist(t); err != nil {
		return nil, err
	}
	if err := e.persistWalletIndex(id, wallet.Address); err != nil {
		return nil, err
	}

	if e.watcher != nil {
		if err := e.watcher.AddWallet(t.WalletAddress, t.Id, 0); err != nil {
			log.Errorf("engine: could not register escrow wallet %s with watcher: %v", t.WalletAddress, err)
		}
	}

	if metrics != nil {
		metrics.TossesCreated.Inc()
	}

	log.Infof("engine: created toss %s in conv %q stake %s", t.Id, conv, t.Stake)
	return t.clone(), nil
}

// AddParticipant records user's join of tossId with the given option.
// paid must be true; callers only call this after the correlation layer
// has confirmed an on-chain transfer.
func (e *Engine) AddParticipant(tossId, user, option string, paid bool) (*Toss, error) {
	lock := e.lockFor(tossId)
	lock.Lock()
	defer lock.Unlock()

	t, err := e.load(tossId)
	if err != nil {
		return nil, tosserr.ErrNotFound
	}
	if t.Status.isTerminal() || t.Status == StatusInProgress {
		return nil, tosserr.ErrBadState
	}
	if !paid {
		return nil, tosserr.ErrUnpaid
	}
	if t.hasParticipant(user) {
		return nil, tosserr.ErrDuplicateParticipant
	}
	canonical, ok := t.hasOption(option)
	if !ok {
		return nil, tosserr.ErrInvalidOption
	}

	t.Participants = append(t.Participants, user)
	t.ParticipantOptions = append(t.ParticipantOptions, ParticipantOption{UserId: user, Option: canonical})
	t.Status = StatusWaitingForPlayer

	if err := e.persist(t); err != nil {
		return nil, err
	}

	log.Infof("engine: toss %s gained participant %s on %q (now %d players)", tossId, user, canonical, len(t.Participants))
	return t.clone(), nil
}

// payoutRound holds the bookkeeping shared between Close and ForceClose:
// every recipient gets amt transferred from the escrow wallet, with
// failures recorded rather than aborting the round.
type payoutRound struct {
	firstHash    string
	firstLink    string
	successCount int
	failed       []string
}

func (e *Engine) disburse(t *Toss, recipients []string, amt amount.Amount) payoutRound {
	var round payoutRound
	for _, user := range recipients {
		wallet, err := e.wallets.Load(user)
		if err != nil {
			log.Errorf("engine: toss %s could not load wallet for recipient %s: %v", t.Id, user, err)
			round.failed = append(round.failed, user)
			if metrics != nil {
				metrics.PayoutFailures.Inc()
			}
			continue
		}
		res, err := e.wallets.Transfer(t.Id, wallet.Address, amt)
		if err != nil {
			log.Errorf("engine: toss %s transfer to %s failed: %v", t.Id, user, err)
			round.failed = append(round.failed, user)
			if metrics != nil {
				metrics.PayoutFailures.Inc()
			}
			continue
		}
		round.successCount++
		if round.firstHash == "" {
			round.firstHash = res.Hash
			round.firstLink = res.Link
		}
	}
	return round
}

// Close declares winningOption the result of tossId, distributes the pot
// to matching participants, and transitions to COMPLETED. Only the
// creator may close; at least two participants must have joined.
func (e *Engine) Close(tossId, caller, winningOption string) (*Toss, error) {
	lock := e.lockFor(tossId)
	lock.Lock()
	defer lock.Unlock()

	t, err := e.load(tossId)
	if err != nil {
		return nil, tosserr.ErrNotFound
	}
	if t.Creator != caller {
		return nil, tosserr.ErrNotCreator
	}
	if t.Status != StatusWaitingForPlayer {
		return nil, tosserr.ErrBadState
	}
	if len(t.Participants) < 2 {
		return nil, tosserr.ErrNotEnoughPlayers
	}
	canonical, ok := t.hasOption(winningOption)
	if !ok {
		return nil, tosserr.ErrInvalidOption
	}

	t.Status = StatusInProgress
	if err := e.persist(t); err != nil {
		return nil, err
	}

	var winners []string
	for _, po := range t.ParticipantOptions {
		if strings.EqualFold(po.Option, canonical) {
			winners = append(winners, po.UserId)
		}
	}

	t.Result = canonical
	if len(winners) == 0 {
		t.Status = StatusCompleted
		t.PaymentSuccess = true
	} else {
		totalPot := t.Stake.Mul(len(t.Participants))
		prize := totalPot.Div(len(winners))
		round := e.disburse(t, winners, prize)
		t.PaymentSuccess = round.successCount > 0
		t.TxHash = round.firstHash
		t.TxLink = round.firstLink
		t.FailedWinners = round.failed
		t.Status = StatusCompleted
	}

	if err := e.persist(t); err != nil {
		return nil, err
	}
	if e.watcher != nil {
		e.watcher.RemoveWallet(t.WalletAddress)
	}
	if metrics != nil {
		metrics.TossesCompleted.Inc()
	}

	log.Infof("engine: closed toss %s, result=%s paymentSuccess=%v", tossId, t.Result, t.PaymentSuccess)
	return t.clone(), nil
}

// ForceClose cancels tossId and refunds every participant their stake.
// Only the creator may force-close. A toss with zero participants
// terminates immediately with no transfers.
func (e *Engine) ForceClose(tossId, caller string) (*Toss, error) {
	lock := e.lockFor(tossId)
	lock.Lock()
	defer lock.Unlock()

	t, err := e.load(tossId)
	if err != nil {
		return nil, tosserr.ErrNotFound
	}
	if t.Creator != caller {
		return nil, tosserr.ErrNotCreator
	}
	if t.Status.isTerminal() {
		return nil, tosserr.ErrBadState
	}

	t.Result = ResultForceClosed

	if len(t.Participants) == 0 {
		t.Status = StatusCancelled
		t.PaymentSuccess = true
		if err := e.persist(t); err != nil {
			return nil, err
		}
		if e.watcher != nil {
			e.watcher.RemoveWallet(t.WalletAddress)
		}
		if metrics != nil {
			metrics.TossesCancelled.Inc()
		}
		log.Infof("engine: force-closed empty toss %s", tossId)
		return t.clone(), nil
	}

	t.Status = StatusInProgress
	if err := e.persist(t); err != nil {
		return nil, err
	}

	round := e.disburse(t, t.Participants, t.Stake)
	t.PaymentSuccess = round.successCount > 0
	t.TxHash = round.firstHash
	t.TxLink = round.firstLink
	t.FailedRefunds = round.failed
	t.Status = StatusCancelled

	if err := e.persist(t); err != nil {
		return nil, err
	}
	if e.watcher != nil {
		e.watcher.RemoveWallet(t.WalletAddress)
	}
	if metrics != nil {
		metrics.TossesCancelled.Inc()
	}

	log.Infof("engine: force-closed toss %s with %d refunds, %d failed", tossId, round.successCount, len(round.failed))
	return t.clone(), nil
}

// Refresh reconciles tossId's escrow balance with its recorded participant
// count. Any amount paid beyond stake*len(participants) is attributed to
// participants whose join was never observed: each such slot is recorded
// with option UNKNOWN rather than guessed, per the correctness concern
// that a guessed option can silently misattribute a real payment.
func (e *Engine) Refresh(tossId string) (string, error) {
	lock := e.lockFor(tossId)
	lock.Lock()
	defer lock.Unlock()

	t, err := e.load(tossId)
	if err != nil {
		return "", tosserr.ErrNotFound
	}
	if t.Status.isTerminal() {
		return "", tosserr.ErrBadState
	}

	balance, err := e.wallets.Balance(t.Id)
	if err != nil {
		return "", tosserr.ErrProviderUnavailable
	}

	expected := t.Stake.Mul(len(t.Participants))
	if balance > expected && t.Stake > 0 {
		unrecorded := int((balance - expected) / t.Stake)
		for i := 0; i < unrecorded; i++ {
			slot := fmt.Sprintf("unknown-%s-%d", t.Id, len(t.Participants)+1)
			t.Participants = append(t.Participants, slot)
			t.ParticipantOptions = append(t.ParticipantOptions, ParticipantOption{UserId: slot, Option: "UNKNOWN"})
			t.Status = StatusWaitingForPlayer
			if err := e.persist(t); err != nil {
				return "", err
			}
		}
	}

	return fmt.Sprintf("toss %s: %d participant(s), escrow balance %s, stake %s",
		t.Id, len(t.Participants), balance, t.Stake), nil
}

// Status returns a snapshot of tossId.
func (e *Engine) Status(tossId string) (*Toss, error) {
	t, err := e.load(tossId)
	if err != nil {
		return nil, tosserr.ErrNotFound
	}
	return t.clone(), nil
}

// GetActiveForConv returns the non-terminal toss bound to conv, if any.
func (e *Engine) GetActiveForConv(conv string) (*Toss, error) {
	raws, err := e.store.List(store.Tosses)
	if err != nil {
		return nil, err
	}
	for _, raw := range raws {
		var t Toss
		if err := json.Unmarshal(raw, &t); err != nil {
			continue
		}
		if t.ConversationId == conv && !t.Status.isTerminal() {
			return t.clone(), nil
		}
	}
	return nil, tosserr.ErrNotFound
}

// GetByAddress returns the toss whose escrow wallet address is addr.
func (e *Engine) GetByAddress(addr string) (*Toss, error) {
	id, _, err := e.store.FindWalletByAddress(addr)
	if err != nil {
		return nil, tosserr.ErrNotFound
	}
	return e.Status(id)
}

// Options implements correlation.TossLookup.
func (e *Engine) Options(tossID string) ([2]string, error) {
	t, err := e.load(tossID)
	if err != nil {
		return [2]string{}, tosserr.ErrNotFound
	}
	return t.Options, nil
}

// IsTerminal implements correlation.TossLookup.
func (e *Engine) IsTerminal(tossID string) (bool, error) {
	t, err := e.load(tossID)
	if err != nil {
		return false, tosserr.ErrNotFound
	}
	return t.Status.isTerminal(), nil
}

// HasParticipant implements correlation.TossLookup.
func (e *Engine) HasParticipant(tossID, sender string) (bool, error) {
	t, err := e.load(tossID)
	if err != nil {
		return false, tosserr.ErrNotFound
	}
	return t.hasParticipant(sender), nil
}
