// Package watcher implements the ChainWatcher: a long-running poller that
// walks the chain log by block range for each monitored escrow wallet and
// feeds newly observed stablecoin transfers to a callback with
// at-least-once delivery. Modeled as a supervised worker owning its own
// stop signal and poll cadence, following the watchtower server's
// Config-driven construction and dcrlnd's convention that every
// long-running subsystem exposes a Start/Stop pair.
package watcher

import (
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/tossd/tossd/internal/chainclient"
	"github.com/tossd/tossd/internal/tossmon"
)

var log = slog.Disabled

// UseLogger directs package logging to logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

var metrics *tossmon.Metrics

// UseMetrics directs the watcher to record scan latency and error counters
// against m. Unset by default, so tests that never call it run with no
// instrumentation.
func UseMetrics(m *tossmon.Metrics) {
	metrics = m
}

// DefaultPollInterval is used when Start is called with interval <= 0.
const DefaultPollInterval = 30 * time.Second

// lookbackBlocks bounds how far behind head a freshly added wallet starts
// scanning when it has no prior checkpoint.
const lookbackBlocks = 100

// TransactionEvent is a single observed stablecoin transfer targeting a
// monitored wallet.
type TransactionEvent struct {
	TxHash      string
	From        string
	To          string
	Value       uint64
	BlockNumber uint64
}

// MonitoredWallet is the in-memory checkpoint state for one escrow wallet
// under watch; reconstructed from active tosses at process start-up.
type MonitoredWallet struct {
	Address          string
	TossId           string
	LastScannedBlock uint64
}

// Callback is invoked once per observed transfer. Delivery is at-least
// once: the same transfer may be reported more than once across restarts
// or retried scans, and callers must be idempotent (see the correlation
// layer's participant check).
type Callback func(event TransactionEvent, wallet MonitoredWallet)

// ChainReader is the subset of chainclient.Client the watcher needs, split
// out so tests can supply a fake without speaking real JSON-RPC.
type ChainReader interface {
	BlockNumber() (uint64, error)
	GetLogs(stablecoin, toAddress string, fromBlock, toBlock uint64) ([]chainclient.Log, error)
}

// Watcher polls an EVM JSON-RPC endpoint for stablecoin Transfer events
// targeting any monitored address.
type Watcher struct {
	client     ChainReader
	stablecoin string

	mu       sync.Mutex
	wallets  map[string]*MonitoredWallet
	callback Callback

	stop chan struct{}
	done chan struct{}
}

// New returns a Watcher polling client for Transfer events on the given
// stablecoin contract address.
func New(client ChainReader, stablecoinAddress string) *Watcher {
	return &Watcher{
		client:     client,
		stablecoin: stablecoinAddress,
		wallets:    make(map[string]*MonitoredWallet),
	}
}

// OnTransaction registers the single callback invoked for every observed
// transfer. Must be called before Start.
func (w *Watcher) OnTransaction(cb Callback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callback = cb
}

// AddWallet begins monitoring address for toss tossId. If startBlock is
// non-zero it is used as the initial checkpoint (e.g. when restoring a
// previously monitored wallet across a restart); otherwise the watcher
// looks back lookbackBlocks from the current head.
func (w *Watcher) AddWallet(address, tossId string, startBlock uint64) error {
	if startBlock == 0 {
		head, err := w.client.BlockNumber()
		if err != nil {
			return err
		}
		if head > lookbackBlocks {
			startBlock = head - lookbackBlocks
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.wallets[normalize(address)] = &MonitoredWallet{
		Address:          address,
		TossId:           tossId,
		LastScannedBlock: startBlock,
	}
	return nil
}

// RemoveWallet stops monitoring address and discards its checkpoint.
func (w *Watcher) RemoveWallet(address string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.wallets, normalize(address))
}

// Wallets returns a snapshot of every currently monitored wallet, used by
// the admin RPC's /v1/watcher listing.
func (w *Watcher) Wallets() []MonitoredWallet {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]MonitoredWallet, 0, len(w.wallets))
	for _, mw := range w.wallets {
		out = append(out, *mw)
	}
	return out
}

// Start begins the periodic polling loop on the given interval (or
// DefaultPollInterval if interval <= 0). Start must only be called once.
func (w *Watcher) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	w.stop = make(chan struct{})
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				w.tick()
			}
		}
	}()
}

// Stop halts the polling loop and blocks until the current tick finishes,
// returning promptly (within one polling interval).
func (w *Watcher) Stop() {
	if w.stop == nil {
		return
	}
	close(w.stop)
	<-w.done
}

func (w *Watcher) tick() {
	start := time.Now()
	defer func() {
		if metrics != nil {
			metrics.WatcherScanDuration.Observe(time.Since(start).Seconds())
		}
	}()

	head, err := w.client.BlockNumber()
	if err != nil {
		log.Errorf("watcher: could not fetch chain head: %v", err)
		return
	}

	w.mu.Lock()
	snapshot := make([]*MonitoredWallet, 0, len(w.wallets))
	for _, mw := range w.wallets {
		snapshot = append(snapshot, mw)
	}
	cb := w.callback
	w.mu.Unlock()

	for _, mw := range snapshot {
		w.scanWallet(mw, head, cb)
	}
}

func (w *Watcher) scanWallet(mw *MonitoredWallet, head uint64, cb Callback) {
	if head <= mw.LastScannedBlock {
		return
	}
	fromBlock := mw.LastScannedBlock + 1

	logs, err := w.client.GetLogs(w.stablecoin, mw.Address, fromBlock, head)
	if err != nil {
		log.Errorf("watcher: scan of %s [%d,%d] failed, will retry: %v",
			mw.Address, fromBlock, head, err)
		if metrics != nil {
			metrics.WatcherScanErrors.Inc()
		}
		return
	}

	for _, l := range logs {
		event := TransactionEvent{
			TxHash:      l.TransactionHash,
			To:          mw.Address,
			BlockNumber: l.BlockNumber(),
		}
		if len(l.Topics) >= 2 {
			event.From = addressFromTopic(l.Topics[1])
		}
		event.Value = valueFromData(l.Data)

		if cb != nil {
			cb(event, *mw)
		}
	}

	w.mu.Lock()
	mw.LastScannedBlock = head
	w.mu.Unlock()
}

func normalize(address string) string {
	return strings.ToLower(address)
}

// addressFromTopic extracts a 20-byte address from a 32-byte indexed log
// topic.
func addressFromTopic(topic string) string {
	t := strings.TrimPrefix(topic, "0x")
	if len(t) < 64 {
		return ""
	}
	return "0x" + t[24:]
}

// valueFromData extracts the uint256 transfer value from the log's data
// field. Only the low 8 bytes are kept; see chainclient.DecodeERC20Transfer
// for why that is sufficient here.
func valueFromData(data string) uint64 {
	d := strings.TrimPrefix(data, "0x")
	if len(d) < 64 {
		return 0
	}
	raw, err := hex.DecodeString(d[:64])
	if err != nil || len(raw) < 8 {
		return 0
	}
	var v uint64
	for _, b := range raw[len(raw)-8:] {
		v = v<<8 | uint64(b)
	}
	return v
}
