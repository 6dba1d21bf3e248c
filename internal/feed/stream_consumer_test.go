package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/surebetbot/internal/domain"
)

// scriptedBus serves a fixed sequence of StreamRead results, then blocks
// until the context is cancelled.
type scriptedBus struct {
	mu      sync.Mutex
	batches [][]domain.StreamMessage
	errs    []error
	lastIDs []string
}

func (b *scriptedBus) StreamRead(ctx context.Context, _ string, lastID string, _ int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	b.lastIDs = append(b.lastIDs, lastID)
	if len(b.batches) == 0 {
		b.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	batch := b.batches[0]
	b.batches = b.batches[1:]
	var err error
	if len(b.errs) > 0 {
		err = b.errs[0]
		b.errs = b.errs[1:]
	}
	b.mu.Unlock()
	return batch, err
}

func (b *scriptedBus) Publish(context.Context, string, []byte) error { return nil }
func (b *scriptedBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}
func (b *scriptedBus) StreamAppend(context.Context, string, []byte) error { return nil }

type collectSink struct {
	mu     sync.Mutex
	quotes []domain.PriceQuote
	done   chan struct{} // closed once want quotes arrived
	want   int
}

func newCollectSink(want int) *collectSink {
	return &collectSink{done: make(chan struct{}), want: want}
}

func (s *collectSink) Submit(_ context.Context, q domain.PriceQuote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes = append(s.quotes, q)
	if len(s.quotes) == s.want {
		close(s.done)
	}
	return nil
}

func quoteMessage(t *testing.T, id, source, eventID string) domain.StreamMessage {
	t.Helper()
	q := domain.PriceQuote{
		Source:        source,
		SourceEventID: eventID,
		OutcomeA:      "Arsenal",
		OutcomeB:      "Chelsea",
		PriceA:        2.10,
		PriceB:        2.20,
		ObservedAt:    time.Now().UTC(),
	}
	payload, err := json.Marshal(q)
	if err != nil {
		t.Fatalf("marshal quote: %v", err)
	}
	return domain.StreamMessage{ID: id, Payload: payload}
}

func TestStreamConsumerFeedsQuotes(t *testing.T) {
	bus := &scriptedBus{batches: [][]domain.StreamMessage{
		{quoteMessage(t, "1-0", "alpha", "ev-1"), quoteMessage(t, "2-0", "beta", "ev-2")},
		{quoteMessage(t, "3-0", "alpha", "ev-3")},
	}}
	sink := newCollectSink(3)
	c := NewStreamConsumer(bus, sink, "stream:quotes", slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	select {
	case <-sink.done:
	case <-time.After(2 * time.Second):
		t.Fatal("quotes not delivered")
	}
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.quotes) != 3 {
		t.Fatalf("delivered %d quotes, want 3", len(sink.quotes))
	}
	if sink.quotes[2].SourceEventID != "ev-3" {
		t.Errorf("quotes out of order: %+v", sink.quotes)
	}
}

func TestStreamConsumerAdvancesCursor(t *testing.T) {
	bus := &scriptedBus{batches: [][]domain.StreamMessage{
		{quoteMessage(t, "7-0", "alpha", "ev-1")},
		{}, // empty read after the batch
	}}
	sink := newCollectSink(1)
	c := NewStreamConsumer(bus, sink, "stream:quotes", slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	select {
	case <-sink.done:
	case <-time.After(2 * time.Second):
		t.Fatal("quote not delivered")
	}
	// Give the loop a moment to issue the follow-up read.
	deadline := time.Now().Add(2 * time.Second)
	for {
		bus.mu.Lock()
		n := len(bus.lastIDs)
		bus.mu.Unlock()
		if n >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if len(bus.lastIDs) < 2 {
		t.Fatalf("only %d reads issued", len(bus.lastIDs))
	}
	if bus.lastIDs[0] != "$" {
		t.Errorf("first read cursor = %q, want $ (tail)", bus.lastIDs[0])
	}
	if bus.lastIDs[1] != "7-0" {
		t.Errorf("second read cursor = %q, want 7-0", bus.lastIDs[1])
	}
}

func TestStreamConsumerSkipsMalformedEntries(t *testing.T) {
	bad := domain.StreamMessage{ID: "1-0", Payload: []byte("not json")}
	bus := &scriptedBus{batches: [][]domain.StreamMessage{
		{bad, quoteMessage(t, "2-0", "alpha", "ev-1")},
	}}
	sink := newCollectSink(1)
	c := NewStreamConsumer(bus, sink, "stream:quotes", slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	select {
	case <-sink.done:
	case <-time.After(2 * time.Second):
		t.Fatal("valid quote after the malformed entry was not delivered")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.quotes) != 1 || sink.quotes[0].SourceEventID != "ev-1" {
		t.Errorf("quotes = %+v", sink.quotes)
	}
}

func TestStreamConsumerRecoversFromReadErrors(t *testing.T) {
	bus := &scriptedBus{
		batches: [][]domain.StreamMessage{
			nil, // paired with the scripted error
			{quoteMessage(t, "5-0", "alpha", "ev-9")},
		},
		errs: []error{fmt.Errorf("redis: stream read: connection refused")},
	}
	sink := newCollectSink(1)
	c := NewStreamConsumer(bus, sink, "stream:quotes", slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	// The consumer backs off one second after the scripted error, then reads
	// the next batch.
	select {
	case <-sink.done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not recover after a read error")
	}
}
