package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depthbridge/aggregation"
	"depthbridge/domain"
)

func TestSupervisor_MarksBookFailedAfterResyncCeiling(t *testing.T) {
	symbol := testSymbol(t)
	hub := domain.NewBroadcastHub(16, aggregation.New())
	sub := hub.Subscribe(symbol, 0, decimal.Zero)

	events := make(chan *domain.DiffEvent)
	close(events)
	syncAPI := &fakeSyncAPI{err: errors.New("rest endpoint down")}
	m := newMaintainer(symbol, syncAPI, &fakeStreamAPI{events: events}, hub)

	supervisor := domain.NewBookSupervisor(m, hub, domain.SupervisorConfig{
		BackoffMin:        time.Millisecond,
		BackoffMax:        5 * time.Millisecond,
		MaxResyncAttempts: 2,
	})
	supervisor.Start()

	select {
	case msg := <-sub.Updates:
		assert.Equal(t, domain.MessageTypeSymbolFailed, msg.Type)
		assert.NotEmpty(t, msg.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("no terminal failure message within deadline")
	}

	assert.Equal(t, domain.SyncStateFailed, m.State())
	require.Eventually(t, func() bool {
		return !supervisor.Running()
	}, 2*time.Second, 5*time.Millisecond)
	// ceiling of 2 means three cycles: the initial sync plus two retries
	assert.Equal(t, 3, syncAPI.callCount())
}

func TestSupervisor_StopCancelsPendingBackoff(t *testing.T) {
	symbol := testSymbol(t)

	events := make(chan *domain.DiffEvent)
	close(events)
	syncAPI := &fakeSyncAPI{err: errors.New("rest endpoint down")}
	m := newMaintainer(symbol, syncAPI, &fakeStreamAPI{events: events}, nil)

	supervisor := domain.NewBookSupervisor(m, nil, domain.SupervisorConfig{
		BackoffMin:        time.Hour,
		BackoffMax:        time.Hour,
		MaxResyncAttempts: 10,
	})
	supervisor.Start()

	require.Eventually(t, func() bool {
		return syncAPI.callCount() >= 1
	}, 2*time.Second, time.Millisecond)

	start := time.Now()
	supervisor.Stop()
	assert.Less(t, time.Since(start), time.Second, "Stop must not wait out the backoff timer")
	assert.False(t, supervisor.Running())
}

func TestSupervisor_StartIsIdempotentAndRestartable(t *testing.T) {
	symbol := testSymbol(t)

	events := make(chan *domain.DiffEvent)
	close(events)
	syncAPI := &fakeSyncAPI{err: errors.New("rest endpoint down")}
	m := newMaintainer(symbol, syncAPI, &fakeStreamAPI{events: events}, nil)

	supervisor := domain.NewBookSupervisor(m, nil, domain.SupervisorConfig{
		BackoffMin:        time.Hour,
		BackoffMax:        time.Hour,
		MaxResyncAttempts: 10,
	})

	supervisor.Start()
	supervisor.Start()
	assert.True(t, supervisor.Running())

	supervisor.Stop()
	assert.False(t, supervisor.Running())

	supervisor.Start()
	assert.True(t, supervisor.Running())
	supervisor.Stop()
}
