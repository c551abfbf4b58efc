package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tossd/tossd/internal/agent"
)

type fakeStreamer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeStreamer) Send(msg agent.OutboundMessage) error { return nil }

// Stream returns a live channel on the first call, then blocks until ctx is
// cancelled on every later call, simulating a connection that never comes
// back once the stream ends.
func (f *fakeStreamer) Stream(ctx context.Context) (<-chan agent.InboundMessage, error) {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.mu.Unlock()

	if first {
		ch := make(chan agent.InboundMessage, 2)
		ch <- agent.InboundMessage{ConversationId: "a", Text: "one"}
		ch <- agent.InboundMessage{ConversationId: "a", Text: "two"}
		close(ch)
		return ch, nil
	}

	<-ctx.Done()
	return nil, ctx.Err()
}

func TestWorkerDeliversThenStopsOnReconnectBlock(t *testing.T) {
	var mu sync.Mutex
	var received []string

	streamer := &fakeStreamer{}
	w := New(streamer, func(msg agent.InboundMessage) {
		mu.Lock()
		received = append(received, msg.Text)
		mu.Unlock()
	})

	w.Start()

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for both messages to be delivered")
		case <-time.After(10 * time.Millisecond):
		}
	}

	w.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"one", "two"}, received)
}

func TestStopBeforeStartIsSafe(t *testing.T) {
	w := New(&fakeStreamer{}, func(agent.InboundMessage) {})
	w.Stop()
}

func TestSleepBackoffGivesUpAfterMaxConsecutiveFailures(t *testing.T) {
	w := &Worker{stop: make(chan struct{})}
	if w.sleepBackoff(maxConsecutiveFail) {
		t.Fatal("expected sleepBackoff to give up at the consecutive-failure cap")
	}
}

func TestSleepBackoffStopsImmediatelyWhenRequested(t *testing.T) {
	w := &Worker{stop: make(chan struct{})}
	close(w.stop)
	if w.sleepBackoff(1) {
		t.Fatal("expected sleepBackoff to return false once stop is closed")
	}
}
