package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"depthbridge/domain"
)

func TestNewMarketSymbol(t *testing.T) {
	tests := []struct {
		name        string
		base, quote string
		expectError bool
	}{
		{"ValidSymbol", "BTC", "USDT", false},
		{"EqualBaseQuote", "ETH", "ETH", true},
		{"EmptyBase", "", "USDT", true},
		{"EmptyQuote", "BTC", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.NewMarketSymbol(tt.base, tt.quote)

			if tt.expectError {
				assert.Error(t, err, "NewMarketSymbol() should return an error")
			} else {
				assert.NoError(t, err, "NewMarketSymbol() should not return an error")
			}
		})
	}
}

func TestNewSymbolFromString(t *testing.T) {
	tests := []struct {
		name        string
		symbol      string
		expectError bool
	}{
		{"ValidString", "BTC_USDT", false},
		{"InvalidString", "ETH-USD", true},
		{"EmptyString", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.NewMarketSymbolFromString(tt.symbol)

			if tt.expectError {
				assert.Error(t, err, "NewSymbolFromString() should return an error")
			} else {
				assert.NoError(t, err, "NewSymbolFromString() should not return an error")
			}
		})
	}
}

func TestMarketSymbol_Join(t *testing.T) {
	ms := domain.MarketSymbol{BaseAsset: "btc", QuoteAsset: "usdt"}

	assert.Equal(t, "btc_usdt", ms.Join("_"))
	assert.Equal(t, "btcusdt", ms.Join(""))
}

func TestMarketSymbol_Exchange(t *testing.T) {
	ms, err := domain.NewMarketSymbol("btc", "usdt")
	assert.NoError(t, err)

	assert.Equal(t, "BTCUSDT", ms.Exchange())
}

func TestMarketSymbol_Equal(t *testing.T) {
	ms1 := domain.MarketSymbol{BaseAsset: "btc", QuoteAsset: "usdt"}
	ms2 := domain.MarketSymbol{BaseAsset: "btc", QuoteAsset: "usdt"}
	ms3 := domain.MarketSymbol{BaseAsset: "eth", QuoteAsset: "usdt"}

	assert.True(t, ms1.Equal(&ms2), "Equal() should return true for equal symbols")
	assert.False(t, ms1.Equal(&ms3), "Equal() should return false for different symbols")
}

func TestMarketSymbol_LowercaseConversion(t *testing.T) {
	ms, err := domain.NewMarketSymbol("BTC", "USDT")
	if err != nil {
		t.Errorf("NewMarketSymbol() should not return an error")
	}

	assert.Equal(t, "btc_usdt", ms.String())
}
