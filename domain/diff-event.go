package domain

import "time"

// DiffEvent is one incremental depth update covering the update-id range
// [FirstUpdateID, FinalUpdateID]. Futures-style streams additionally carry
// PrevFinalUpdateID (the final id of the previous event); spot streams leave
// it at zero.
type DiffEvent struct {
	Symbol            *MarketSymbol
	FirstUpdateID     int64
	FinalUpdateID     int64
	PrevFinalUpdateID int64
	EventTime         time.Time
	Bids              []PriceLevel
	Asks              []PriceLevel
}

func (e *DiffEvent) HasPrevFinalID() bool {
	return e.PrevFinalUpdateID > 0
}
