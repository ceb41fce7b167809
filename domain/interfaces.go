package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// SnapshotAPI fetches a one-shot, depth-limited order book state from the
// upstream REST interface. Retries are the supervisor's responsibility.
type SnapshotAPI interface {
	OrderBookSnapshot(ctx context.Context, symbol *MarketSymbol, limit int) (*OrderBookSnapshot, error)
}

// DiffStreamAPI produces an unbounded sequence of diff events for one symbol
// over one logical connection. On transport failure the stream channel is
// closed rather than retried internally.
type DiffStreamAPI interface {
	DepthDiffStream(symbol *MarketSymbol) (*Subscription[*DiffEvent], error)
}

// ViewAggregator derives a bounded, optionally tick-bucketed view from a
// point-in-time book view without mutating it.
type ViewAggregator interface {
	Aggregate(view *BookView, depthLimit int, tick decimal.Decimal) *BookView
}
