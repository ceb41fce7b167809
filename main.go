package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"depthbridge/config"
	"depthbridge/domain"
	"depthbridge/helpers"
	promclient "depthbridge/infrastructure/prometheus"
	"depthbridge/provider"
	"depthbridge/provider/binance"
	"depthbridge/usecase"
)

const demoDepth = 5

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logrus.SetLevel(level)
	}

	go promclient.StartPromClientServer(cfg.Metrics.Addr)

	connManager := provider.NewConnectionManager(cfg)
	connManager.Init()
	defer connManager.Close()

	market := binance.Market(cfg.Market)
	service := usecase.NewBookStreamService(cfg, connManager.SyncAPI(market), connManager.StreamAPI(market))

	var handles []*domain.SubscriberHandle
	for _, raw := range cfg.Symbols {
		symbol, err := domain.NewMarketSymbolFromString(raw)
		if err != nil {
			logrus.Fatalf("invalid symbol %q: %v", raw, err)
		}

		handle := service.Subscribe(symbol, demoDepth, decimal.Zero)
		handles = append(handles, handle)
		go consume(handle)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	for _, handle := range handles {
		service.Unsubscribe(handle)
	}
}

func consume(handle *domain.SubscriberHandle) {
	for msg := range handle.Updates {
		switch {
		case msg.Type == domain.MessageTypeSymbolFailed:
			logrus.Errorf("book for %s terminally failed: %s", msg.Symbol, msg.Error)
		case msg.FullSnapshot:
			logrus.Infof("%s synced, top of book: %s", msg.Symbol, helpers.ToJsonString(topOfBook(msg)))
		default:
			logrus.Debugf("%s update: %s", msg.Symbol, helpers.ToJsonString(msg))
		}
	}
}

func topOfBook(msg *domain.BookUpdateMessage) map[string]domain.BookLevel {
	top := make(map[string]domain.BookLevel, 2)
	if len(msg.Bids) > 0 {
		top["bid"] = msg.Bids[0]
	}
	if len(msg.Asks) > 0 {
		top["ask"] = msg.Asks[0]
	}
	return top
}
