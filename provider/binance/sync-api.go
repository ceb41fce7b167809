package binance

import (
	"context"
	"fmt"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"

	"depthbridge/domain"
)

type Market string

const (
	MarketSpot    Market = "spot"
	MarketFutures Market = "futures"
)

// SyncAPI fetches one-shot depth snapshots over REST. Retries belong to the
// supervisor, not here.
type SyncAPI struct {
	market  Market
	spot    *gobinance.Client
	futures *futures.Client
}

func NewSyncAPI(market Market) *SyncAPI {
	api := &SyncAPI{market: market}
	if market == MarketFutures {
		api.futures = futures.NewClient("", "")
	} else {
		api.spot = gobinance.NewClient("", "")
	}
	return api
}

func (api *SyncAPI) OrderBookSnapshot(ctx context.Context, symbol *domain.MarketSymbol, limit int) (*domain.OrderBookSnapshot, error) {
	if api.market == MarketFutures {
		return api.futuresSnapshot(ctx, symbol, limit)
	}
	return api.spotSnapshot(ctx, symbol, limit)
}

func (api *SyncAPI) spotSnapshot(ctx context.Context, symbol *domain.MarketSymbol, limit int) (*domain.OrderBookSnapshot, error) {
	res, err := api.spot.NewDepthService().Symbol(symbol.Exchange()).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("spot depth snapshot for %s: %w", symbol.Exchange(), err)
	}

	bids := make([][]string, len(res.Bids))
	for i, bid := range res.Bids {
		bids[i] = []string{bid.Price, bid.Quantity}
	}
	asks := make([][]string, len(res.Asks))
	for i, ask := range res.Asks {
		asks[i] = []string{ask.Price, ask.Quantity}
	}

	return buildSnapshot(symbol, res.LastUpdateID, bids, asks)
}

func (api *SyncAPI) futuresSnapshot(ctx context.Context, symbol *domain.MarketSymbol, limit int) (*domain.OrderBookSnapshot, error) {
	res, err := api.futures.NewDepthService().Symbol(symbol.Exchange()).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("futures depth snapshot for %s: %w", symbol.Exchange(), err)
	}

	bids := make([][]string, len(res.Bids))
	for i, bid := range res.Bids {
		bids[i] = []string{bid.Price, bid.Quantity}
	}
	asks := make([][]string, len(res.Asks))
	for i, ask := range res.Asks {
		asks[i] = []string{ask.Price, ask.Quantity}
	}

	return buildSnapshot(symbol, res.LastUpdateID, bids, asks)
}

func buildSnapshot(symbol *domain.MarketSymbol, lastUpdateID int64, rawBids, rawAsks [][]string) (*domain.OrderBookSnapshot, error) {
	bids, err := domain.ParsePriceLevels(rawBids)
	if err != nil {
		return nil, fmt.Errorf("snapshot bids: %w", err)
	}
	asks, err := domain.ParsePriceLevels(rawAsks)
	if err != nil {
		return nil, fmt.Errorf("snapshot asks: %w", err)
	}

	return &domain.OrderBookSnapshot{
		Symbol:       symbol,
		LastUpdateID: lastUpdateID,
		Bids:         bids,
		Asks:         asks,
		Time:         time.Now(),
	}, nil
}
