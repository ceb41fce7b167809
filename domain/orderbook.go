package domain

import (
	"sort"
	"sync"
	"time"
)

// OrderBookSnapshot is a full point-in-time book state fetched from the
// upstream REST interface, tagged with the last update id it covers.
type OrderBookSnapshot struct {
	Symbol       *MarketSymbol
	LastUpdateID int64
	Bids         []PriceLevel
	Asks         []PriceLevel
	Time         time.Time
}

// BookView is an immutable, sorted, optionally depth-limited copy of the
// replica. Bids are descending by price, asks ascending.
type BookView struct {
	Symbol       *MarketSymbol
	LastUpdateID int64
	Bids         []PriceLevel
	Asks         []PriceLevel
	Time         time.Time
}

// OrderBook is the local replica of the exchange's book for one symbol.
// The maintainer is its single writer; everything else reads point-in-time
// views via View.
type OrderBook struct {
	Symbol *MarketSymbol

	mu           sync.RWMutex
	bids         map[string]PriceLevel
	asks         map[string]PriceLevel
	lastUpdateID int64
	snapshotTime time.Time
}

func NewOrderBook(symbol *MarketSymbol) *OrderBook {
	return &OrderBook{
		Symbol: symbol,
		bids:   make(map[string]PriceLevel),
		asks:   make(map[string]PriceLevel),
	}
}

// Reset discards the replica and reloads it from a fresh snapshot.
// Zero-quantity rows are never persisted.
func (ob *OrderBook) Reset(snapshot *OrderBookSnapshot) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.bids = make(map[string]PriceLevel, len(snapshot.Bids))
	ob.asks = make(map[string]PriceLevel, len(snapshot.Asks))

	for _, level := range snapshot.Bids {
		if !level.IsRemoval() {
			ob.bids[level.Price.String()] = level
		}
	}
	for _, level := range snapshot.Asks {
		if !level.IsRemoval() {
			ob.asks[level.Price.String()] = level
		}
	}

	ob.lastUpdateID = snapshot.LastUpdateID
	ob.snapshotTime = snapshot.Time
}

func (ob *OrderBook) LastUpdateID() int64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.lastUpdateID
}

// ApplyDiff merges a diff event into the replica and advances lastUpdateID
// to the event's final id. Continuity checking is the maintainer's job;
// ApplyDiff assumes the event has already passed it.
func (ob *OrderBook) ApplyDiff(event *DiffEvent) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	applyLevels(ob.bids, event.Bids)
	applyLevels(ob.asks, event.Asks)

	ob.lastUpdateID = event.FinalUpdateID
}

func applyLevels(side map[string]PriceLevel, changes []PriceLevel) {
	for _, level := range changes {
		key := level.Price.String()
		if level.IsRemoval() {
			delete(side, key)
		} else {
			side[key] = level
		}
	}
}

// View returns a sorted copy of the replica. A non-positive depth returns
// every level.
func (ob *OrderBook) View(depth int) *BookView {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	bids := sortSide(ob.bids, true)
	asks := sortSide(ob.asks, false)

	if depth > 0 && len(bids) > depth {
		bids = bids[:depth]
	}
	if depth > 0 && len(asks) > depth {
		asks = asks[:depth]
	}

	return &BookView{
		Symbol:       ob.Symbol,
		LastUpdateID: ob.lastUpdateID,
		Bids:         bids,
		Asks:         asks,
		Time:         ob.snapshotTime,
	}
}

func sortSide(side map[string]PriceLevel, descending bool) []PriceLevel {
	levels := make([]PriceLevel, 0, len(side))
	for _, level := range side {
		levels = append(levels, level)
	}

	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})

	return levels
}
