// Package agent implements AgentFront: the translation layer between the
// secure-messaging transport and the toss engine. It holds no back-pointer
// to the transport; the transport is an injected dependency, per the
// no-back-pointer redesign guidance this daemon's specification carries
// forward from its source's cyclic engine/client references.
package agent

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/decred/slog"
	"github.com/tossd/tossd/internal/amount"
	"github.com/tossd/tossd/internal/chainclient"
	"github.com/tossd/tossd/internal/correlation"
	"github.com/tossd/tossd/internal/engine"
	"github.com/tossd/tossd/internal/metadata"
	"github.com/tossd/tossd/internal/tossmon"
	"github.com/tossd/tossd/internal/tosserr"
	"github.com/tossd/tossd/internal/walletprovider"
)

var log = slog.Disabled

// UseLogger directs package logging to logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

var metrics *tossmon.Metrics

// UseMetrics directs AgentFront to record participant-join counters against
// m. Unset by default, so tests that never call it run with no
// instrumentation.
func UseMetrics(m *tossmon.Metrics) {
	metrics = m
}

// ContentType enumerates the secure-messaging transport's payload kinds
// AgentFront cares about.
type ContentType string

const (
	ContentText            ContentType = "text"
	ContentTransactionRef  ContentType = "transaction-reference"
	ContentWalletSendCalls ContentType = "wallet-send-calls"
)

// InboundMessage is the subset of a transport event AgentFront consumes.
type InboundMessage struct {
	ConversationId string
	Sender         string
	IsDM           bool
	ContentType    ContentType
	Text           string
	TxHash         string
	Metadata       metadata.Bag
}

// Call is a single wallet-send-calls payload entry.
type Call struct {
	To       string            `json:"to"`
	Data     string            `json:"data"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is what AgentFront hands the transport to deliver.
type OutboundMessage struct {
	ConversationId string
	ContentType    ContentType
	Text           string
	Calls          []Call
	TxHash         string
}

// ChatTransport is the secure-messaging capability AgentFront sends
// through. Injected at construction so the engine and AgentFront never
// hold a reference back into the transport's own client object.
type ChatTransport interface {
	Send(msg OutboundMessage) error
}

// ParsedToss is a successfully parsed free-text toss prompt.
type ParsedToss struct {
	Topic   string
	Options [2]string
	Stake   amount.Amount
}

// ParseError is a structured failure from the opaque toss-prompt parser,
// replacing the source's bare "return an error string" convention with a
// typed reason a caller can branch on.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return e.Reason }

// TossParser is the opaque natural-language-to-structured-toss capability,
// out of scope for this daemon's own implementation.
type TossParser interface {
	Parse(text string) (*ParsedToss, *ParseError)
}

// stablecoinAddress and chainID are the constants AgentFront needs to
// build a wallet-send-calls payload; injected at construction since they
// come from tossdconf, not hardcoded per network.
type chainParams struct {
	StablecoinAddress string
	ChainID           uint64
}

// Front is AgentFront. Beyond its held dependency references, its only
// state is the in-memory set of conversation ids that have already
// received a welcome message; no toss data is kept outside the engine and
// store.
type Front struct {
	engine      *engine.Engine
	correlation *correlation.Layer
	wallets     walletprovider.Provider
	parser      TossParser
	transport   ChatTransport
	chain       chainParams

	commandPrefix   string
	allowedCommands map[string]bool
	welcomeDM       string
	welcomeGroup    string

	seenMu sync.Mutex
	seen   map[string]bool
}

// New returns a Front dispatching through eng/corr/wallets/parser and
// replying via transport. allowedCommands, when non-empty, restricts
// dispatch of the named commands (help/status/join/close/balance/refresh/
// monitor) to that whitelist; an empty list allows every command.
// welcomeDM/welcomeGroup, when set, are sent once per conversation on its
// first interaction with the agent.
func New(eng *engine.Engine, corr *correlation.Layer, wallets walletprovider.Provider, parser TossParser, transport ChatTransport, commandPrefix, stablecoinAddress string, chainID uint64, allowedCommands []string, welcomeDM, welcomeGroup string) *Front {
	if commandPrefix == "" {
		commandPrefix = "@toss"
	}
	var allowed map[string]bool
	if len(allowedCommands) > 0 {
		allowed = make(map[string]bool, len(allowedCommands))
		for _, c := range allowedCommands {
			allowed[strings.ToLower(c)] = true
		}
	}
	return &Front{
		engine:          eng,
		correlation:     corr,
		wallets:         wallets,
		parser:          parser,
		transport:       transport,
		commandPrefix:   commandPrefix,
		allowedCommands: allowed,
		welcomeDM:       welcomeDM,
		welcomeGroup:    welcomeGroup,
		chain:           chainParams{StablecoinAddress: stablecoinAddress, ChainID: chainID},
		seen:            make(map[string]bool),
	}
}

// commandAllowed reports whether name may be dispatched, per the
// AllowedCommands whitelist. No whitelist configured means every command
// is allowed.
func (f *Front) commandAllowed(name string) bool {
	if f.allowedCommands == nil {
		return true
	}
	return f.allowedCommands[strings.ToLower(name)]
}

// announceFirstInteraction sends the configured welcome message the first
// time msg's conversation is seen, before the message is otherwise
// processed.
func (f *Front) announceFirstInteraction(msg InboundMessage) {
	f.seenMu.Lock()
	alreadySeen := f.seen[msg.ConversationId]
	f.seen[msg.ConversationId] = true
	f.seenMu.Unlock()
	if alreadySeen {
		return
	}

	welcome := f.welcomeGroup
	if isDM(msg) {
		welcome = f.welcomeDM
	}
	if welcome != "" {
		f.reply(msg.ConversationId, welcome)
	}
}

// isDM and hasActiveToss are kept as separate predicates per the
// specification's guidance: the source mixed "DM-only" and "no active
// toss" into one guard, which made the two failure reasons
// indistinguishable to the user.
func isDM(msg InboundMessage) bool {
	return msg.IsDM
}

func (f *Front) hasActiveToss(conv string) (*engine.Toss, bool) {
	t, err := f.engine.GetActiveForConv(conv)
	if err != nil {
		return nil, false
	}
	return t, true
}

// Handle processes one inbound transport event, replying through the
// transport as needed. It never returns an error to the caller: all
// failures are either turned into a user-visible reply or logged.
func (f *Front) Handle(msg InboundMessage) {
	if msg.ContentType == ContentTransactionRef {
		f.handleTransactionRef(msg)
		return
	}

	if !strings.HasPrefix(strings.TrimSpace(msg.Text), f.commandPrefix) {
		return
	}

	f.announceFirstInteraction(msg)

	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(msg.Text), f.commandPrefix))
	fields := strings.Fields(rest)

	if len(fields) == 0 {
		f.handleFreeTextCreate(msg, "")
		return
	}

	name := strings.ToLower(fields[0])
	switch name {
	case "help", "status", "join", "close", "balance", "refresh", "monitor":
		if !f.commandAllowed(name) {
			f.reply(msg.ConversationId, fmt.Sprintf("the %q command is not enabled on this agent", name))
			return
		}
	}

	switch name {
	case "help":
		f.reply(msg.ConversationId, helpText)
	case "status":
		f.handleStatus(msg)
	case "join":
		f.handleJoin(msg)
	case "close":
		f.handleClose(msg, fields[1:])
	case "balance":
		f.handleBalance(msg)
	case "refresh":
		f.handleRefresh(msg)
	case "monitor":
		f.handleMonitor(msg)
	default:
		f.handleFreeTextCreate(msg, rest)
	}
}

const helpText = "commands: help, status, join, close [option], balance (DM), refresh, monitor (DM). " +
	"Or just describe a wager in a group chat to start a new toss."

func (f *Front) reply(conv, text string) {
	if err := f.transport.Send(OutboundMessage{ConversationId: conv, ContentType: ContentText, Text: text}); err != nil {
		log.Errorf("agent: reply to %s failed: %v", conv, err)
	}
}

func (f *Front) handleStatus(msg InboundMessage) {
	if isDM(msg) {
		f.reply(msg.ConversationId, "status is only available in a group with an active toss")
		return
	}
	t, ok := f.hasActiveToss(msg.ConversationId)
	if !ok {
		f.reply(msg.ConversationId, "no active toss in this conversation")
		return
	}
	f.reply(msg.ConversationId, formatStatus(t))
}

func formatStatus(t *engine.Toss) string {
	return fmt.Sprintf("toss %s: %q (%s vs %s), stake %s, status %s, %d participant(s)",
		t.Id, t.Topic, t.Options[0], t.Options[1], t.Stake, t.Status, len(t.Participants))
}

func (f *Front) handleJoin(msg InboundMessage) {
	if isDM(msg) {
		f.reply(msg.ConversationId, "join is only available in a group with an active toss")
		return
	}
	t, ok := f.hasActiveToss(msg.ConversationId)
	if !ok {
		f.reply(msg.ConversationId, "no active toss in this conversation")
		return
	}
	f.sendPaymentIntents(msg.ConversationId, t)
}

func (f *Front) handleClose(msg InboundMessage, args []string) {
	if isDM(msg) {
		f.reply(msg.ConversationId, "close is only available in a group with an active toss")
		return
	}
	t, ok := f.hasActiveToss(msg.ConversationId)
	if !ok {
		f.reply(msg.ConversationId, "no active toss in this conversation")
		return
	}

	if len(args) == 0 {
		result, err := f.engine.ForceClose(t.Id, msg.Sender)
		if err != nil {
			f.reply(msg.ConversationId, userMessageFor(err))
			return
		}
		f.reply(msg.ConversationId, fmt.Sprintf("toss %s force-closed; refunds issued where possible", result.Id))
		return
	}

	winning := strings.Join(args, " ")
	result, err := f.engine.Close(t.Id, msg.Sender, winning)
	if err != nil {
		f.reply(msg.ConversationId, userMessageFor(err))
		return
	}
	f.reply(msg.ConversationId, fmt.Sprintf("toss %s closed: %q wins, payout success=%v", result.Id, result.Result, result.PaymentSuccess))
}

func (f *Front) handleBalance(msg InboundMessage) {
	if !isDM(msg) {
		f.reply(msg.ConversationId, "balance is only available in a direct message")
		return
	}
	bal, err := f.wallets.Balance(msg.Sender)
	if err != nil {
		f.reply(msg.ConversationId, userMessageFor(err))
		return
	}
	f.reply(msg.ConversationId, fmt.Sprintf("your balance: %s", bal))
}

func (f *Front) handleRefresh(msg InboundMessage) {
	if isDM(msg) {
		f.reply(msg.ConversationId, "refresh is only available in a group with an active toss")
		return
	}
	t, ok := f.hasActiveToss(msg.ConversationId)
	if !ok {
		f.reply(msg.ConversationId, "no active toss in this conversation")
		return
	}
	summary, err := f.engine.Refresh(t.Id)
	if err != nil {
		f.reply(msg.ConversationId, userMessageFor(err))
		return
	}
	f.reply(msg.ConversationId, summary)
}

func (f *Front) handleMonitor(msg InboundMessage) {
	if !isDM(msg) {
		f.reply(msg.ConversationId, "monitor is only available in a direct message")
		return
	}
	// The watcher's monitored set is reachable only through the engine's
	// own watcher reference in this build; AgentFront has no direct
	// watcher dependency, so monitor reports engine-visible state only.
	f.reply(msg.ConversationId, "monitor: see tossctl watcher list for the live monitored-address set")
}

func (f *Front) handleFreeTextCreate(msg InboundMessage, text string) {
	if isDM(msg) {
		f.reply(msg.ConversationId, "tosses can only be created in a group chat")
		return
	}
	if existing, ok := f.hasActiveToss(msg.ConversationId); ok {
		f.reply(msg.ConversationId, fmt.Sprintf("this conversation already has an active toss (%s); close it before starting another", existing.Id))
		return
	}
	if text == "" {
		return
	}

	parsed, perr := f.parser.Parse(text)
	if perr != nil {
		f.reply(msg.ConversationId, "could not understand that wager: "+perr.Reason)
		return
	}

	t, err := f.engine.Create(msg.Sender, engine.ParsedToss{
		Topic:   parsed.Topic,
		Options: parsed.Options,
		Stake:   parsed.Stake,
	}, msg.ConversationId)
	if err != nil {
		if err == tosserr.ErrActiveTossExists {
			if existing, ok := f.hasActiveToss(msg.ConversationId); ok {
				f.reply(msg.ConversationId, fmt.Sprintf("this conversation already has an active toss (%s); close it before starting another", existing.Id))
				return
			}
		}
		f.reply(msg.ConversationId, userMessageFor(err))
		return
	}

	f.reply(msg.ConversationId, fmt.Sprintf("toss %s created: %q, %s vs %s, stake %s", t.Id, t.Topic, t.Options[0], t.Options[1], t.Stake))
	f.sendPaymentIntents(msg.ConversationId, t)
}

// sendPaymentIntents emits one wallet-send-calls button per option,
// encoding the option index into the transfer amount's remainder per the
// amount codec.
func (f *Front) sendPaymentIntents(conv string, t *engine.Toss) {
	codec := amount.NewCodec()
	for i, opt := range t.Options {
		amt := codec.Encode(i, t.Stake)
		data := erc20TransferCalldata(t.WalletAddress, amt)
		err := f.transport.Send(OutboundMessage{
			ConversationId: conv,
			ContentType:    ContentWalletSendCalls,
			Text:           fmt.Sprintf("join %s on %q", opt, t.Topic),
			Calls: []Call{{
				To:       f.chain.StablecoinAddress,
				Data:     data,
				Metadata: map[string]string{"option": opt, "tossId": t.Id},
			}},
		})
		if err != nil {
			log.Errorf("agent: could not send payment intent for toss %s option %d: %v", t.Id, i, err)
		}
	}
}

// erc20TransferCalldata builds the calldata for transfer(address,uint256).
func erc20TransferCalldata(to string, amt amount.Amount) string {
	toHex := strings.TrimPrefix(strings.ToLower(to), "0x")
	for len(toHex) < 40 {
		toHex = "0" + toHex
	}
	value := strconv.FormatInt(int64(amt), 16)
	for len(value) < 64 {
		value = "0" + value
	}
	toWord := strings.Repeat("0", 24) + toHex
	return "0x" + chainclient.TransferSelector + toWord + value
}

// handleTransactionRef routes an incoming transaction-reference message
// through the correlation layer and, on success, records the join.
func (f *Front) handleTransactionRef(msg InboundMessage) {
	meta := metadata.New().Merge(msg.Metadata)

	result, err := f.correlation.Correlate(correlation.Input{
		TxHash:        msg.TxHash,
		Metadata:      meta,
		KnownSenderID: msg.Sender,
	})
	if err != nil {
		f.reportCorrelationFailure(msg, err)
		return
	}

	options, err := f.engine.Options(result.TossID)
	if err != nil {
		f.reply(msg.ConversationId, userMessageFor(err))
		return
	}

	t, err := f.engine.AddParticipant(result.TossID, result.Sender, optionLabelAt(options, result.Option), true)
	if err != nil {
		f.reply(msg.ConversationId, userMessageFor(err))
		return
	}
	if metrics != nil {
		metrics.ParticipantsJoined.Inc()
	}

	f.transport.Send(OutboundMessage{
		ConversationId: msg.ConversationId,
		ContentType:    ContentTransactionRef,
		Text:           fmt.Sprintf("payment confirmed, you're in on toss %s", t.Id),
		TxHash:         msg.TxHash,
	})
}

func optionLabelAt(options [2]string, idx int) string {
	if idx < 0 || idx >= len(options) {
		return ""
	}
	return options[idx]
}

func (f *Front) reportCorrelationFailure(msg InboundMessage, err error) {
	switch err {
	case tosserr.ErrNotForUs:
		// Not an error from the user's perspective; silently discard.
		return
	case tosserr.ErrUnresolvedOption:
		f.reply(msg.ConversationId, "could not tell which option that payment was for, please resend with the option specified")
	case tosserr.ErrDuplicateParticipant:
		// Idempotent no-op; the user already joined.
		return
	default:
		f.reply(msg.ConversationId, userMessageFor(err))
	}
}

// userMessageFor renders an engine/correlation sentinel error as a
// human-readable reply.
func userMessageFor(err error) string {
	switch err {
	case tosserr.ErrNotFound:
		return "no such toss"
	case tosserr.ErrBadState:
		return "that toss is not in a state where this is allowed"
	case tosserr.ErrDuplicateParticipant:
		return "you've already joined this toss"
	case tosserr.ErrInvalidOption:
		return "that option doesn't match either outcome for this toss"
	case tosserr.ErrUnpaid:
		return "no payment found for that join"
	case tosserr.ErrNotCreator:
		return "only the toss creator can do that"
	case tosserr.ErrNotEnoughPlayers:
		return "at least two participants are required to close"
	case tosserr.ErrAmountTooLarge:
		return "that stake exceeds the maximum allowed"
	case tosserr.ErrProviderUnavailable:
		return "the wallet service is temporarily unavailable, please try again"
	case tosserr.ErrActiveTossExists:
		return "this conversation already has an active toss"
	default:
		return "something went wrong: " + err.Error()
	}
}
