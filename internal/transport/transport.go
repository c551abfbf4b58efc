// Package transport supervises the secure-messaging connection AgentFront
// receives inbound events from. The messaging network itself (client
// creation, encryption, conversation sync) is an opaque capability with no
// concrete implementation here; this package only owns the reconnect
// supervisor, following the same goroutine-plus-stop-channel worker shape
// the chain watcher uses.
package transport

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/decred/slog"
	"github.com/tossd/tossd/internal/agent"
)

var log = slog.Disabled

// UseLogger directs package logging to logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

const (
	baseBackoff        = 2 * time.Second
	backoffFactor      = 1.5
	maxBackoff         = 60 * time.Second
	maxConsecutiveFail = 6
	maxJitterFraction  = 0.3
)

// Streamer is the opaque secure-messaging network capability: connecting
// and yielding a channel of inbound events for as long as the connection
// holds, and sending outbound replies. Creating a fresh client (the
// network dial, key exchange, conversation sync) is entirely out of scope
// here.
type Streamer interface {
	agent.ChatTransport
	Stream(ctx context.Context) (<-chan agent.InboundMessage, error)
}

// Worker supervises a Streamer connection, redelivering every inbound
// event to handle, and reconnecting with exponential backoff when the
// stream ends or fails to establish.
type Worker struct {
	streamer Streamer
	handle   func(agent.InboundMessage)

	stop chan struct{}
	done chan struct{}
}

// New returns a Worker feeding every inbound event from streamer to handle.
func New(streamer Streamer, handle func(agent.InboundMessage)) *Worker {
	return &Worker{streamer: streamer, handle: handle}
}

// Start begins the supervised connect/stream/reconnect loop in the
// background. Start must only be called once.
func (w *Worker) Start() {
	w.stop = make(chan struct{})
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		w.run()
	}()
}

// Stop requests the loop to exit and blocks until it does.
func (w *Worker) Stop() {
	if w.stop == nil {
		return
	}
	close(w.stop)
	<-w.done
}

func (w *Worker) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-w.stop
		cancel()
	}()

	consecutiveFailures := 0
	for {
		select {
		case <-w.stop:
			return
		default:
		}

		events, err := w.streamer.Stream(ctx)
		if err != nil {
			consecutiveFailures++
			log.Errorf("transport: connect failed (%d consecutive): %v", consecutiveFailures, err)
			if !w.sleepBackoff(consecutiveFailures) {
				return
			}
			continue
		}

		consecutiveFailures = 0
		w.drain(events)

		select {
		case <-w.stop:
			return
		default:
			log.Warnf("transport: stream ended, reconnecting")
		}
	}
}

// drain forwards events to handle until the channel closes or a stop is
// requested.
func (w *Worker) drain(events <-chan agent.InboundMessage) {
	for {
		select {
		case <-w.stop:
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			w.handle(msg)
		}
	}
}

// sleepBackoff waits the exponential backoff delay for attempt, plus 0-30%
// jitter, capped at maxBackoff, and returns false if the worker should give
// up (after maxConsecutiveFail straight failures a fresh client is expected
// to be recreated by the caller on the next Start).
func (w *Worker) sleepBackoff(attempt int) bool {
	if attempt >= maxConsecutiveFail {
		log.Errorf("transport: %d consecutive connect failures, giving up until restarted", attempt)
		return false
	}

	delay := time.Duration(float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt-1)))
	if delay > maxBackoff {
		delay = maxBackoff
	}
	delay += time.Duration(rand.Float64() * maxJitterFraction * float64(delay))

	select {
	case <-w.stop:
		return false
	case <-time.After(delay):
		return true
	}
}
