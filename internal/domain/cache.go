package domain

import (
	"context"
	"time"
)

// BestPriceCache mirrors the engine's derived best-price view for external
// readers. The engine only ever writes through it; decisions are always made
// from the in-memory group store, never from the mirror.
type BestPriceCache interface {
	SetBest(ctx context.Context, best BestPrices) error
	GetBest(ctx context.Context, key EventKey) (BestPrices, error)
	Invalidate(ctx context.Context, key EventKey) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
