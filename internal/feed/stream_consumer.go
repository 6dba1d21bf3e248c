package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/surebetbot/internal/domain"
)

const (
	// readCount bounds how many stream entries one XREAD returns.
	readCount = 128

	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// QuoteSink receives decoded quotes. Implemented by the engine.
type QuoteSink interface {
	Submit(ctx context.Context, q domain.PriceQuote) error
}

// StreamConsumer reads normalized quotes from a Redis stream and feeds them
// into the engine. Source pollers append one JSON-encoded PriceQuote per
// stream entry; the consumer decodes, submits, and advances its cursor.
//
// The consumer starts at the stream tail: a quote that lands while it is
// reconnecting is superseded by the source's next update anyway, and startup
// recovery is the snapshot's job, not a stream replay.
type StreamConsumer struct {
	bus    domain.SignalBus
	sink   QuoteSink
	stream string
	lastID string
	logger *slog.Logger
}

// NewStreamConsumer creates a StreamConsumer reading from the given stream.
func NewStreamConsumer(bus domain.SignalBus, sink QuoteSink, stream string, logger *slog.Logger) *StreamConsumer {
	return &StreamConsumer{
		bus:    bus,
		sink:   sink,
		stream: stream,
		lastID: "$", // tail: only entries appended after startup
		logger: logger.With(slog.String("component", "stream_consumer")),
	}
}

// Run reads the stream until the context is cancelled. Read errors back off
// exponentially up to maxBackoff; a successful read resets the backoff.
func (c *StreamConsumer) Run(ctx context.Context) error {
	c.logger.Info("stream consumer started", slog.String("stream", c.stream))
	defer c.logger.Info("stream consumer stopped")

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := c.bus.StreamRead(ctx, c.stream, c.lastID, readCount)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("stream read failed, backing off",
				slog.String("stream", c.stream),
				slog.Duration("backoff", backoff),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = initialBackoff

		for _, msg := range msgs {
			c.lastID = msg.ID
			c.handleMessage(ctx, msg)
		}
	}
}

// handleMessage decodes one stream entry and submits it. Malformed or
// invalid entries are logged and skipped; the consumer never stops for a bad
// quote. Only engine shutdown ends processing early.
func (c *StreamConsumer) handleMessage(ctx context.Context, msg domain.StreamMessage) {
	var q domain.PriceQuote
	if err := json.Unmarshal(msg.Payload, &q); err != nil {
		c.logger.Debug("stream entry is not a quote",
			slog.String("id", msg.ID),
			slog.Int("payload_len", len(msg.Payload)),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := c.sink.Submit(ctx, q); err != nil {
		if errors.Is(err, domain.ErrShutdown) || errors.Is(err, context.Canceled) {
			return
		}
		c.logger.Debug("quote rejected",
			slog.String("id", msg.ID),
			slog.String("source", q.Source),
			slog.String("error", err.Error()),
		)
	}
}
