package usecase

import (
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"depthbridge/aggregation"
	"depthbridge/config"
	"depthbridge/domain"
)

var logger = logrus.WithField("component", "book-service")

// BookStreamService is the core-facing surface for downstream consumers:
// one upstream stream per symbol regardless of how many subscribers attach.
type BookStreamService struct {
	cfg        *config.Config
	syncAPI    domain.SnapshotAPI
	streamAPI  domain.DiffStreamAPI
	hub        *domain.BroadcastHub
	registry   *domain.BookRegistry
	aggregator domain.ViewAggregator
}

func NewBookStreamService(cfg *config.Config, syncAPI domain.SnapshotAPI, streamAPI domain.DiffStreamAPI) *BookStreamService {
	aggregator := aggregation.New()
	return &BookStreamService{
		cfg:        cfg,
		syncAPI:    syncAPI,
		streamAPI:  streamAPI,
		hub:        domain.NewBroadcastHub(cfg.Book.SubscriberQueueSize, aggregator),
		registry:   domain.NewBookRegistry(),
		aggregator: aggregator,
	}
}

// Subscribe attaches a consumer to a symbol's book. The first subscriber of
// a symbol starts its sync task; a subscriber arriving after a terminal
// failure restarts it.
func (s *BookStreamService) Subscribe(symbol *domain.MarketSymbol, depthLimit int, aggregationTick decimal.Decimal) *domain.SubscriberHandle {
	handle := s.hub.Subscribe(symbol, depthLimit, aggregationTick)

	maintainer, supervisor, first := s.registry.Acquire(symbol, func() (*domain.OrderbookMaintainer, *domain.BookSupervisor) {
		m := domain.NewOrderbookMaintainer(symbol, s.syncAPI, s.streamAPI, s.hub, domain.MaintainerConfig{
			SnapshotDepth:   s.cfg.Book.SnapshotDepth,
			DiffBufferLimit: s.cfg.Book.DiffBufferLimit,
		})
		sup := domain.NewBookSupervisor(m, s.hub, domain.SupervisorConfig{
			BackoffMin:        s.cfg.Book.BackoffMin,
			BackoffMax:        s.cfg.Book.BackoffMax,
			MaxResyncAttempts: s.cfg.Book.MaxResyncAttempts,
		})
		return m, sup
	})

	if first {
		logger.Infof("first subscriber for %s, starting sync", symbol.String())
		supervisor.Start()
	} else if maintainer.State() == domain.SyncStateFailed {
		logger.Infof("restarting failed book for %s on new demand", symbol.String())
		supervisor.Start()
	}

	return handle
}

// Unsubscribe detaches a consumer. The last subscriber of a symbol tears
// down its stream, cache state and any pending reconnect backoff.
func (s *BookStreamService) Unsubscribe(handle *domain.SubscriberHandle) {
	if !s.hub.Unsubscribe(handle) {
		return
	}

	if supervisor, last := s.registry.Release(handle.Symbol); last {
		supervisor.Stop()
		logger.Infof("last subscriber for %s left, sync stopped", handle.Symbol.String())
	}
}

// GetCurrentView reads the latest aggregated top-N view synchronously.
func (s *BookStreamService) GetCurrentView(symbol *domain.MarketSymbol, depthLimit int) (*domain.BookView, error) {
	maintainer, ok := s.registry.Lookup(symbol)
	if !ok {
		return nil, domain.ErrBookNotFound
	}
	if maintainer.State() != domain.SyncStateLive {
		return nil, domain.ErrBookNotReady
	}

	return s.aggregator.Aggregate(maintainer.Book().View(0), depthLimit, decimal.Zero), nil
}
