package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	promclient "depthbridge/infrastructure/prometheus"
)

var hubLogger = logrus.WithField("component", "broadcast-hub")

const (
	MessageTypeOrderBookUpdate = "orderbook_update"
	MessageTypeSymbolFailed    = "symbol_failed"
)

type BookLevel struct {
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

// BookUpdateMessage is the wire-shaped update a subscriber receives.
type BookUpdateMessage struct {
	Type         string      `json:"type"`
	Symbol       string      `json:"symbol"`
	Bids         []BookLevel `json:"bids"`
	Asks         []BookLevel `json:"asks"`
	Timestamp    int64       `json:"timestamp"`
	FullSnapshot bool        `json:"isFullSnapshot"`
	Error        string      `json:"error,omitempty"`
}

// SubscriberHandle identifies one downstream consumer of a symbol's book.
// Updates is closed on unsubscribe.
type SubscriberHandle struct {
	ID     uuid.UUID
	Symbol *MarketSymbol
	// DepthLimit bounds full-snapshot and aggregated deliveries; deltas for
	// non-aggregating subscribers pass through unlimited.
	DepthLimit int
	// AggregationTick re-buckets prices to a coarser tick; zero disables
	// aggregation and the subscriber receives raw deltas.
	AggregationTick decimal.Decimal
	Updates         chan *BookUpdateMessage
}

func (h *SubscriberHandle) Aggregated() bool {
	return !h.AggregationTick.IsZero()
}

// BroadcastHub fans every accepted mutation out to all subscribers of a
// symbol. Delivery is non-blocking for the publisher: each subscriber owns a
// bounded queue, and a slow subscriber loses its oldest queued message in
// exchange for a fresh full snapshot instead of silently desynchronizing.
type BroadcastHub struct {
	queueSize  int
	aggregator ViewAggregator

	mu          sync.Mutex
	subscribers map[string]map[uuid.UUID]*SubscriberHandle
}

func NewBroadcastHub(queueSize int, aggregator ViewAggregator) *BroadcastHub {
	return &BroadcastHub{
		queueSize:   queueSize,
		aggregator:  aggregator,
		subscribers: make(map[string]map[uuid.UUID]*SubscriberHandle),
	}
}

func (h *BroadcastHub) Subscribe(symbol *MarketSymbol, depthLimit int, aggregationTick decimal.Decimal) *SubscriberHandle {
	handle := &SubscriberHandle{
		ID:              uuid.New(),
		Symbol:          symbol,
		DepthLimit:      depthLimit,
		AggregationTick: aggregationTick,
		Updates:         make(chan *BookUpdateMessage, h.queueSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	key := symbol.String()
	if _, ok := h.subscribers[key]; !ok {
		h.subscribers[key] = make(map[uuid.UUID]*SubscriberHandle)
	}
	h.subscribers[key][handle.ID] = handle
	promclient.LiveSubscribersGauge.Inc()

	return handle
}

// Unsubscribe removes the handle and closes its queue. It reports whether
// the handle was still registered, so a double unsubscribe stays harmless.
func (h *BroadcastHub) Unsubscribe(handle *SubscriberHandle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := handle.Symbol.String()
	subs, ok := h.subscribers[key]
	if !ok {
		return false
	}
	if _, ok := subs[handle.ID]; !ok {
		return false
	}

	delete(subs, handle.ID)
	if len(subs) == 0 {
		delete(h.subscribers, key)
	}
	close(handle.Updates)
	promclient.LiveSubscribersGauge.Dec()
	return true
}

func (h *BroadcastHub) SubscriberCount(symbol *MarketSymbol) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[symbol.String()])
}

// Publish delivers a mutation to every subscriber of its symbol, in apply
// order. view supplies point-in-time book views for aggregated subscribers
// and overflow recovery. Called only by the symbol's maintainer, from its
// single apply goroutine.
func (h *BroadcastHub) Publish(mutation *BookMutation, view func(depth int) *BookView) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subscribers[mutation.Symbol.String()] {
		h.deliver(sub, h.buildMessage(sub, mutation, view), view)
	}
}

// PublishFailure notifies subscribers that the symbol terminally failed.
func (h *BroadcastHub) PublishFailure(symbol *MarketSymbol, err error) {
	msg := &BookUpdateMessage{
		Type:      MessageTypeSymbolFailed,
		Symbol:    symbol.String(),
		Timestamp: time.Now().UnixMilli(),
	}
	if err != nil {
		msg.Error = err.Error()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subscribers[symbol.String()] {
		h.deliver(sub, msg, nil)
	}
}

func (h *BroadcastHub) buildMessage(sub *SubscriberHandle, mutation *BookMutation, view func(depth int) *BookView) *BookUpdateMessage {
	msg := &BookUpdateMessage{
		Type:         MessageTypeOrderBookUpdate,
		Symbol:       mutation.Symbol.String(),
		Timestamp:    mutation.Time.UnixMilli(),
		FullSnapshot: mutation.FullSnapshot,
	}

	if sub.Aggregated() && view != nil {
		// Aggregated views are always recomputed from the raw replica,
		// never cached across a resync.
		aggregated := h.aggregator.Aggregate(view(0), sub.DepthLimit, sub.AggregationTick)
		msg.Bids = toBookLevels(aggregated.Bids)
		msg.Asks = toBookLevels(aggregated.Asks)
		return msg
	}

	bids, asks := mutation.Bids, mutation.Asks
	if mutation.FullSnapshot && sub.DepthLimit > 0 {
		if len(bids) > sub.DepthLimit {
			bids = bids[:sub.DepthLimit]
		}
		if len(asks) > sub.DepthLimit {
			asks = asks[:sub.DepthLimit]
		}
	}
	msg.Bids = toBookLevels(bids)
	msg.Asks = toBookLevels(asks)
	return msg
}

// deliver enqueues without ever blocking the publisher. On a full queue the
// subscriber's oldest message is dropped and replaced by a fresh full
// snapshot, so the subscriber always learns it fell behind.
func (h *BroadcastHub) deliver(sub *SubscriberHandle, msg *BookUpdateMessage, view func(depth int) *BookView) {
	select {
	case sub.Updates <- msg:
		return
	default:
	}

	select {
	case <-sub.Updates:
	default:
	}

	if view != nil {
		msg = h.buildMessage(sub, NewSnapshotMutation(view(0)), view)
	}
	promclient.SubscriberOverflowsTotal.WithLabelValues(sub.Symbol.String()).Inc()
	hubLogger.WithField("symbol", sub.Symbol.String()).
		Debugf("subscriber %s overflowed, resending full snapshot", sub.ID)

	select {
	case sub.Updates <- msg:
	default:
	}
}

func toBookLevels(levels []PriceLevel) []BookLevel {
	result := make([]BookLevel, len(levels))
	for i, level := range levels {
		result[i] = BookLevel{
			Price:  level.Price.String(),
			Amount: level.Quantity.String(),
		}
	}
	return result
}
