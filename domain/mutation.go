package domain

import "time"

// BookMutation is one accepted change to the replica, published to the hub.
// Delta mutations carry exactly the price-level changes applied (removals
// included, with zero quantity). Full-snapshot mutations carry the whole
// book, so subscribers never have to distinguish "first view" from
// "incremental update" themselves.
type BookMutation struct {
	Symbol       *MarketSymbol
	Bids         []PriceLevel
	Asks         []PriceLevel
	LastUpdateID int64
	Time         time.Time
	FullSnapshot bool
}

func NewDeltaMutation(event *DiffEvent) *BookMutation {
	return &BookMutation{
		Symbol:       event.Symbol,
		Bids:         event.Bids,
		Asks:         event.Asks,
		LastUpdateID: event.FinalUpdateID,
		Time:         event.EventTime,
		FullSnapshot: false,
	}
}

func NewSnapshotMutation(view *BookView) *BookMutation {
	return &BookMutation{
		Symbol:       view.Symbol,
		Bids:         view.Bids,
		Asks:         view.Asks,
		LastUpdateID: view.LastUpdateID,
		Time:         time.Now(),
		FullSnapshot: true,
	}
}
