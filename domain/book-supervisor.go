package domain

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/sirupsen/logrus"

	promclient "depthbridge/infrastructure/prometheus"
)

var supervisorLogger = logrus.WithField("component", "book-supervisor")

type SupervisorConfig struct {
	BackoffMin time.Duration
	BackoffMax time.Duration
	// MaxResyncAttempts is the number of consecutive failed sync cycles
	// tolerated before the symbol is marked Failed.
	MaxResyncAttempts int
}

// BookSupervisor owns the lifecycle of one symbol's sync task: it reruns
// the maintainer after every gap, overflow or transport failure with
// jittered exponential backoff, and surfaces a terminal failure once the
// resync ceiling is exceeded. Stopping the supervisor cancels any pending
// backoff timer immediately.
type BookSupervisor struct {
	symbol     *MarketSymbol
	maintainer *OrderbookMaintainer
	hub        *BroadcastHub
	cfg        SupervisorConfig

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewBookSupervisor(maintainer *OrderbookMaintainer, hub *BroadcastHub, cfg SupervisorConfig) *BookSupervisor {
	return &BookSupervisor{
		symbol:     maintainer.Symbol(),
		maintainer: maintainer,
		hub:        hub,
		cfg:        cfg,
	}
}

// Start launches the sync loop. Starting an already running supervisor is a
// no-op; starting after a terminal failure clears it and tries again.
func (s *BookSupervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.run(ctx, s.done)
}

// Stop cancels the sync loop, including any pending backoff timer, and
// waits for it to exit.
func (s *BookSupervisor) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *BookSupervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *BookSupervisor) run(ctx context.Context, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(done)
	}()

	bo := &backoff.Backoff{
		Min:    s.cfg.BackoffMin,
		Max:    s.cfg.BackoffMax,
		Jitter: true,
	}
	attempts := 0

	for {
		reachedLive, err := s.maintainer.Run(ctx)
		if ctx.Err() != nil {
			s.maintainer.setState(SyncStateIdle)
			return
		}

		if reachedLive {
			attempts = 0
			bo.Reset()
		}
		attempts++

		promclient.ResyncTotal.WithLabelValues(s.symbol.String()).Inc()
		supervisorLogger.WithField("symbol", s.symbol.String()).
			Warnf("book desynchronized (attempt %d/%d): %v", attempts, s.cfg.MaxResyncAttempts, err)

		if attempts > s.cfg.MaxResyncAttempts {
			s.maintainer.Fail()
			if s.hub != nil {
				s.hub.PublishFailure(s.symbol, err)
			}
			supervisorLogger.WithField("symbol", s.symbol.String()).
				Errorf("resync ceiling exceeded, book marked failed: %v", err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(bo.Duration()):
		}
	}
}
