package aggregation

import (
	"sort"

	"github.com/shopspring/decimal"

	"depthbridge/domain"
)

// Aggregator derives bounded, tick-bucketed views from a raw book view.
// It is stateless: the same view and parameters always produce the same
// output, with an explicit sort so map iteration order never leaks through.
type Aggregator struct{}

func New() *Aggregator {
	return &Aggregator{}
}

// Aggregate buckets the view's prices to the given tick (bids floored, asks
// ceiled, so the spread never narrows artificially), sums quantities within
// each bucket and returns the top depthLimit levels per side. A zero tick
// skips bucketing; a non-positive depthLimit keeps every level.
func (a *Aggregator) Aggregate(view *domain.BookView, depthLimit int, tick decimal.Decimal) *domain.BookView {
	bids := view.Bids
	asks := view.Asks

	if !tick.IsZero() {
		bids = bucket(bids, tick, roundDown)
		asks = bucket(asks, tick, roundUp)
	}

	if depthLimit > 0 && len(bids) > depthLimit {
		bids = bids[:depthLimit]
	}
	if depthLimit > 0 && len(asks) > depthLimit {
		asks = asks[:depthLimit]
	}

	return &domain.BookView{
		Symbol:       view.Symbol,
		LastUpdateID: view.LastUpdateID,
		Bids:         bids,
		Asks:         asks,
		Time:         view.Time,
	}
}

type rounding int

const (
	roundDown rounding = iota
	roundUp
)

func bucket(levels []domain.PriceLevel, tick decimal.Decimal, mode rounding) []domain.PriceLevel {
	buckets := make(map[string]domain.PriceLevel, len(levels))

	for _, level := range levels {
		price := roundToTick(level.Price, tick, mode)
		key := price.String()

		if existing, ok := buckets[key]; ok {
			buckets[key] = domain.PriceLevel{
				Price:    price,
				Quantity: existing.Quantity.Add(level.Quantity),
			}
		} else {
			buckets[key] = domain.PriceLevel{
				Price:    price,
				Quantity: level.Quantity,
			}
		}
	}

	aggregated := make([]domain.PriceLevel, 0, len(buckets))
	for _, level := range buckets {
		aggregated = append(aggregated, level)
	}

	sort.Slice(aggregated, func(i, j int) bool {
		if mode == roundDown {
			return aggregated[i].Price.GreaterThan(aggregated[j].Price)
		}
		return aggregated[i].Price.LessThan(aggregated[j].Price)
	})

	return aggregated
}

func roundToTick(price, tick decimal.Decimal, mode rounding) decimal.Decimal {
	divided := price.Div(tick)
	if mode == roundDown {
		return divided.Floor().Mul(tick)
	}
	return divided.Ceil().Mul(tick)
}
