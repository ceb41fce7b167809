package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceLevel is one price row of an order book side. A zero quantity means
// "remove this price from the book".
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

func (l PriceLevel) IsRemoval() bool {
	return l.Quantity.IsZero()
}

// ParsePriceLevels decodes the exchange's [["price","qty"], ...] pairs.
// Prices and quantities stay decimal end to end; parsing into floats would
// accumulate rounding drift over thousands of incremental merges.
func ParsePriceLevels(raw [][]string) ([]PriceLevel, error) {
	levels := make([]PriceLevel, len(raw))
	for i, pair := range raw {
		if len(pair) != 2 {
			return nil, fmt.Errorf("price level must be a [price, quantity] pair, got %d elements", len(pair))
		}
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", pair[0], err)
		}
		quantity, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, fmt.Errorf("invalid quantity %q: %w", pair[1], err)
		}
		levels[i] = PriceLevel{Price: price, Quantity: quantity}
	}
	return levels, nil
}

func SerializePriceLevels(levels []PriceLevel) [][]string {
	result := make([][]string, len(levels))
	for i, level := range levels {
		result[i] = []string{level.Price.String(), level.Quantity.String()}
	}
	return result
}
