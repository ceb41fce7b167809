package domain

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/deque"
	"github.com/sirupsen/logrus"
)

var maintainerLogger = logrus.WithField("component", "orderbook-maintainer")

type MaintainerConfig struct {
	// SnapshotDepth is the depth requested from the REST snapshot endpoint.
	SnapshotDepth int
	// DiffBufferLimit bounds the number of diff events buffered while the
	// snapshot is in flight; exceeding it forces a resync.
	DiffBufferLimit int
}

// OrderbookMaintainer keeps one symbol's replica consistent with the
// upstream book. It buffers diff events while the snapshot is fetched,
// aligns the first event against the snapshot's lastUpdateId, and applies
// every following event under a strict continuity check. No diff is ever
// applied against a book that cannot prove contiguity with the last
// applied update.
type OrderbookMaintainer struct {
	symbol    *MarketSymbol
	book      *OrderBook
	syncAPI   SnapshotAPI
	streamAPI DiffStreamAPI
	hub       *BroadcastHub
	cfg       MaintainerConfig

	mu       sync.Mutex
	queue    deque.Deque[*DiffEvent]
	overflow bool
	state    SyncState
}

func NewOrderbookMaintainer(
	symbol *MarketSymbol,
	syncAPI SnapshotAPI,
	streamAPI DiffStreamAPI,
	hub *BroadcastHub,
	cfg MaintainerConfig,
) *OrderbookMaintainer {
	return &OrderbookMaintainer{
		symbol:    symbol,
		book:      NewOrderBook(symbol),
		syncAPI:   syncAPI,
		streamAPI: streamAPI,
		hub:       hub,
		cfg:       cfg,
		state:     SyncStateIdle,
	}
}

func (m *OrderbookMaintainer) Symbol() *MarketSymbol { return m.symbol }

func (m *OrderbookMaintainer) Book() *OrderBook { return m.book }

func (m *OrderbookMaintainer) State() SyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *OrderbookMaintainer) setState(state SyncState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// Fail marks the symbol terminally failed until a demand-triggered restart.
func (m *OrderbookMaintainer) Fail() {
	m.setState(SyncStateFailed)
}

// Run performs one full synchronization cycle: subscribe to the diff
// stream, fetch a snapshot, align, then apply diffs until the stream ends,
// continuity breaks, or ctx is cancelled. It reports whether the book
// reached the Live state during this cycle. A nil error means ctx was
// cancelled; any other termination is a reason to resync.
func (m *OrderbookMaintainer) Run(ctx context.Context) (reachedLive bool, err error) {
	m.setState(SyncStateSnapshotting)
	m.resetQueue()

	sub, err := m.streamAPI.DepthDiffStream(m.symbol)
	if err != nil {
		m.setState(SyncStateResyncing)
		return false, fmt.Errorf("subscribe to depth diff stream: %w", err)
	}
	defer sub.Unsubscribe()

	kick := make(chan struct{}, 1)
	streamDone := make(chan struct{})
	go m.collect(sub, kick, streamDone)

	snapshot, err := m.syncAPI.OrderBookSnapshot(ctx, m.symbol, m.cfg.SnapshotDepth)
	if err != nil {
		m.setState(SyncStateResyncing)
		return false, fmt.Errorf("fetch order book snapshot: %w", err)
	}

	m.book.Reset(snapshot)
	m.setState(SyncStateSyncing)

	aligned := false
	for {
		event, overflowed := m.popEvent()
		if overflowed {
			m.setState(SyncStateResyncing)
			return reachedLive, ErrBufferOverflow
		}

		if event == nil {
			select {
			case <-ctx.Done():
				m.setState(SyncStateIdle)
				return reachedLive, nil
			case <-kick:
				continue
			case <-streamDone:
				if m.queueLen() == 0 {
					m.setState(SyncStateResyncing)
					return reachedLive, ErrStreamClosed
				}
				continue
			}
		}

		if err := m.processEvent(event, &aligned, &reachedLive); err != nil {
			m.setState(SyncStateResyncing)
			return reachedLive, err
		}
	}
}

// collect drains the provider stream into the bounded buffer. It runs until
// the provider closes the stream, which happens on transport failure or
// unsubscribe.
func (m *OrderbookMaintainer) collect(sub *Subscription[*DiffEvent], kick chan struct{}, streamDone chan struct{}) {
	defer close(streamDone)

	for event := range sub.Stream {
		m.mu.Lock()
		if m.queue.Len() >= m.cfg.DiffBufferLimit {
			m.overflow = true
		} else {
			m.queue.PushBack(event)
		}
		m.mu.Unlock()

		select {
		case kick <- struct{}{}:
		default:
		}
	}
}

func (m *OrderbookMaintainer) processEvent(event *DiffEvent, aligned *bool, reachedLive *bool) error {
	lastID := m.book.LastUpdateID()

	// Anything fully covered by the snapshot (or a duplicate delivery of an
	// already applied event) is stale and skipped.
	if event.FinalUpdateID <= lastID {
		return nil
	}

	if !*aligned {
		// The first applied event must straddle the snapshot:
		// U <= lastUpdateId+1 <= u. An event starting past lastUpdateId+1
		// means the alignment point can never arrive.
		if event.FirstUpdateID > lastID+1 {
			return fmt.Errorf("%w: alignment event starts at %d, snapshot ends at %d",
				ErrSequenceGap, event.FirstUpdateID, lastID)
		}

		m.book.ApplyDiff(event)
		*aligned = true
		*reachedLive = true
		m.setState(SyncStateLive)
		maintainerLogger.WithField("symbol", m.symbol.String()).
			Infof("book is live at update id %d", event.FinalUpdateID)

		m.publishFullSnapshot()
		return nil
	}

	if event.HasPrevFinalID() {
		if event.PrevFinalUpdateID != lastID {
			return fmt.Errorf("%w: prev final id %d does not continue %d",
				ErrSequenceGap, event.PrevFinalUpdateID, lastID)
		}
	} else if event.FirstUpdateID != lastID+1 {
		return fmt.Errorf("%w: first id %d does not continue %d",
			ErrSequenceGap, event.FirstUpdateID, lastID)
	}

	m.book.ApplyDiff(event)
	if m.hub != nil {
		m.hub.Publish(NewDeltaMutation(event), m.book.View)
	}
	return nil
}

// publishFullSnapshot emits the whole replica as a mutation, so subscribers
// resynchronize without distinguishing first view from re-sync.
func (m *OrderbookMaintainer) publishFullSnapshot() {
	if m.hub == nil {
		return
	}
	m.hub.Publish(NewSnapshotMutation(m.book.View(0)), m.book.View)
}

func (m *OrderbookMaintainer) resetQueue() {
	m.mu.Lock()
	m.queue = deque.Deque[*DiffEvent]{}
	m.overflow = false
	m.mu.Unlock()
}

func (m *OrderbookMaintainer) popEvent() (*DiffEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.overflow {
		return nil, true
	}
	if m.queue.Len() == 0 {
		return nil, false
	}
	return m.queue.PopFront(), false
}

func (m *OrderbookMaintainer) queueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Len()
}
