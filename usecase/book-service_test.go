package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depthbridge/config"
	"depthbridge/domain"
)

type stubSyncAPI struct {
	mu       sync.Mutex
	snapshot *domain.OrderBookSnapshot
	err      error
}

func (s *stubSyncAPI) OrderBookSnapshot(ctx context.Context, symbol *domain.MarketSymbol, limit int) (*domain.OrderBookSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.snapshot, nil
}

type stubStreamAPI struct {
	mu     sync.Mutex
	events chan *domain.DiffEvent
}

func (s *stubStreamAPI) DepthDiffStream(symbol *domain.MarketSymbol) (*domain.Subscription[*domain.DiffEvent], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &domain.Subscription[*domain.DiffEvent]{
		Stream:      s.events,
		Unsubscribe: func() {},
		Topic:       symbol.Join("") + "@depth@100ms",
	}, nil
}

func testConfig() *config.Config {
	cfg := config.Load()
	cfg.Book.SnapshotDepth = 100
	cfg.Book.DiffBufferLimit = 100
	cfg.Book.SubscriberQueueSize = 16
	cfg.Book.MaxResyncAttempts = 2
	cfg.Book.BackoffMin = time.Millisecond
	cfg.Book.BackoffMax = 5 * time.Millisecond
	return cfg
}

func serviceSymbol(t *testing.T) *domain.MarketSymbol {
	t.Helper()
	symbol, err := domain.NewMarketSymbol("btc", "usdt")
	require.NoError(t, err)
	return symbol
}

func snapshotAt(t *testing.T, symbol *domain.MarketSymbol, lastUpdateID int64, bids [][]string) *domain.OrderBookSnapshot {
	t.Helper()
	levels, err := domain.ParsePriceLevels(bids)
	require.NoError(t, err)
	return &domain.OrderBookSnapshot{
		Symbol:       symbol,
		LastUpdateID: lastUpdateID,
		Bids:         levels,
		Time:         time.Now(),
	}
}

func diffAt(t *testing.T, symbol *domain.MarketSymbol, firstID, finalID int64, bids [][]string) *domain.DiffEvent {
	t.Helper()
	levels, err := domain.ParsePriceLevels(bids)
	require.NoError(t, err)
	return &domain.DiffEvent{
		Symbol:        symbol,
		FirstUpdateID: firstID,
		FinalUpdateID: finalID,
		EventTime:     time.Now(),
		Bids:          levels,
	}
}

func TestBookStreamService_SharesOneSyncTaskPerSymbol(t *testing.T) {
	symbol := serviceSymbol(t)
	events := make(chan *domain.DiffEvent, 16)
	defer close(events)

	syncAPI := &stubSyncAPI{snapshot: snapshotAt(t, symbol, 100, [][]string{{"50000", "1"}})}
	service := NewBookStreamService(testConfig(), syncAPI, &stubStreamAPI{events: events})

	h1 := service.Subscribe(symbol, 0, decimal.Zero)
	h2 := service.Subscribe(symbol, 0, decimal.Zero)
	assert.Equal(t, 1, service.registry.Len())
	assert.Equal(t, 2, service.hub.SubscriberCount(symbol))

	service.Unsubscribe(h1)
	assert.Equal(t, 1, service.registry.Len(), "book must survive while a subscriber remains")

	service.Unsubscribe(h2)
	assert.Equal(t, 0, service.registry.Len(), "last unsubscribe tears the book down")

	// double unsubscribe must not disturb the registry
	service.Unsubscribe(h2)
	assert.Equal(t, 0, service.registry.Len())
}

func TestBookStreamService_GetCurrentView(t *testing.T) {
	symbol := serviceSymbol(t)
	events := make(chan *domain.DiffEvent, 16)
	defer close(events)

	syncAPI := &stubSyncAPI{snapshot: snapshotAt(t, symbol, 100, [][]string{{"50000", "1"}})}
	service := NewBookStreamService(testConfig(), syncAPI, &stubStreamAPI{events: events})

	_, err := service.GetCurrentView(symbol, 10)
	assert.ErrorIs(t, err, domain.ErrBookNotFound)

	handle := service.Subscribe(symbol, 0, decimal.Zero)
	defer service.Unsubscribe(handle)

	// no aligning diff has arrived yet, the book cannot be live
	_, err = service.GetCurrentView(symbol, 10)
	assert.ErrorIs(t, err, domain.ErrBookNotReady)

	events <- diffAt(t, symbol, 101, 105, [][]string{{"50000", "1.5"}})

	require.Eventually(t, func() bool {
		_, err := service.GetCurrentView(symbol, 10)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	view, err := service.GetCurrentView(symbol, 10)
	require.NoError(t, err)
	require.Len(t, view.Bids, 1)
	assert.Equal(t, [][]string{{"50000", "1.5"}}, domain.SerializePriceLevels(view.Bids))
}

func TestBookStreamService_SubscriberReceivesLiveSnapshot(t *testing.T) {
	symbol := serviceSymbol(t)
	events := make(chan *domain.DiffEvent, 16)
	defer close(events)

	syncAPI := &stubSyncAPI{snapshot: snapshotAt(t, symbol, 100, [][]string{{"50000", "1"}})}
	service := NewBookStreamService(testConfig(), syncAPI, &stubStreamAPI{events: events})

	handle := service.Subscribe(symbol, 0, decimal.Zero)
	defer service.Unsubscribe(handle)

	events <- diffAt(t, symbol, 101, 105, [][]string{{"50000", "1.5"}})

	select {
	case msg := <-handle.Updates:
		assert.Equal(t, domain.MessageTypeOrderBookUpdate, msg.Type)
		assert.True(t, msg.FullSnapshot)
		require.Len(t, msg.Bids, 1)
		assert.Equal(t, domain.BookLevel{Price: "50000", Amount: "1.5"}, msg.Bids[0])
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivery within deadline")
	}
}
