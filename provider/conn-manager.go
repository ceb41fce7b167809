package provider

import (
	"sync"

	"github.com/sirupsen/logrus"

	"depthbridge/config"
	"depthbridge/domain"
	"depthbridge/provider/binance"
)

var logger = logrus.WithField("component", "conn-manager")

// ConnectionManager owns the shared upstream clients: one multiplexed
// stream connection per market plus the matching REST snapshot client.
// Per-symbol lifecycle lives in the supervisors; this only resolves APIs.
type ConnectionManager struct {
	spotStreamClient *binance.StreamClient
	spotStreamAPI    *binance.StreamAPI
	spotSyncAPI      *binance.SyncAPI

	futuresStreamClient *binance.StreamClient
	futuresStreamAPI    *binance.StreamAPI
	futuresSyncAPI      *binance.SyncAPI
}

func NewConnectionManager(cfg *config.Config) *ConnectionManager {
	spotStreamClient := binance.NewStreamClient(cfg.Binance.SpotStreamEndpoint)
	futuresStreamClient := binance.NewStreamClient(cfg.Binance.FuturesStreamEndpoint)

	return &ConnectionManager{
		spotStreamClient: spotStreamClient,
		spotStreamAPI:    binance.NewStreamAPI(spotStreamClient),
		spotSyncAPI:      binance.NewSyncAPI(binance.MarketSpot),

		futuresStreamClient: futuresStreamClient,
		futuresStreamAPI:    binance.NewStreamAPI(futuresStreamClient),
		futuresSyncAPI:      binance.NewSyncAPI(binance.MarketFutures),
	}
}

// Init dials both markets up front. A failed dial is not fatal: Subscribe
// redials on demand once the supervisor retries.
func (cm *ConnectionManager) Init() {
	wg := &sync.WaitGroup{}
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := cm.spotStreamClient.Connect(); err != nil {
			logger.Warnf("failed to connect to spot stream: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := cm.futuresStreamClient.Connect(); err != nil {
			logger.Warnf("failed to connect to futures stream: %v", err)
		}
	}()

	wg.Wait()
}

func (cm *ConnectionManager) StreamAPI(market binance.Market) domain.DiffStreamAPI {
	if market == binance.MarketFutures {
		return cm.futuresStreamAPI
	}
	return cm.spotStreamAPI
}

func (cm *ConnectionManager) SyncAPI(market binance.Market) domain.SnapshotAPI {
	if market == binance.MarketFutures {
		return cm.futuresSyncAPI
	}
	return cm.spotSyncAPI
}

func (cm *ConnectionManager) Close() {
	_ = cm.spotStreamClient.Close()
	_ = cm.futuresStreamClient.Close()
}
