package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 8)

	var (
		mu  sync.Mutex
		got []EventType
	)
	done := make(chan struct{}, 2)
	sub := bus.SubscribeFunc(func(_ context.Context, e Event) error {
		mu.Lock()
		got = append(got, e.Type())
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, TxConfirmed, TxFailed)

	require.NoError(t, bus.Publish(TxConfirmedEvent{BaseEvent: NewBase(TxConfirmed), Operation: "open", Signature: "sig"}))
	require.NoError(t, bus.Publish(TxFailedEvent{BaseEvent: NewBase(TxFailed), Operation: "open"}))
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("event was not delivered")
		}
	}
	mu.Lock()
	assert.ElementsMatch(t, []EventType{TxConfirmed, TxFailed}, got)
	mu.Unlock()

	assert.Equal(t, 1, bus.Stats().HandlersPerType[TxConfirmed])
	sub.Unsubscribe()
	assert.Zero(t, bus.Stats().EventTypes)

	require.NoError(t, bus.Shutdown(context.Background()))
	assert.ErrorIs(t, bus.Publish(TxConfirmedEvent{BaseEvent: NewBase(TxConfirmed)}), ErrBusClosed)
}

func TestPublishSyncJoinsHandlerErrors(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 1)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	boom := errors.New("boom")
	bus.SubscribeFunc(func(context.Context, Event) error { return boom }, TxAttempt)
	bus.SubscribeFunc(func(context.Context, Event) error { return nil }, TxAttempt)

	err := bus.PublishSync(context.Background(), TxAttemptEvent{BaseEvent: NewBase(TxAttempt)})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, bus.PublishSync(context.Background(), SummaryComputedEvent{BaseEvent: NewBase(SummaryComputed)}))
}

func TestLogHandler(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := NewLogHandler(zap.New(core))

	require.NoError(t, h.Handle(context.Background(), TxAttemptEvent{
		BaseEvent: NewBase(TxAttempt),
		Operation: "open",
		Attempt:   1,
		Error:     errors.New("blockhash not found"),
	}))
	require.NoError(t, h.Handle(context.Background(), SummaryComputedEvent{
		BaseEvent:   NewBase(SummaryComputed),
		Signature:   "sig",
		Transfers:   3,
		USDNetDelta: decimal.RequireFromString("-1.25"),
	}))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "-1.25", entries[1].ContextMap()["usd_net_delta"])
}

func TestLogHandlerSubscribesToAllTypes(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 4)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	bus.Subscribe(NewLogHandler(zaptest.NewLogger(t)), AllTypes()...)
	stats := bus.Stats()
	assert.Equal(t, len(AllTypes()), stats.EventTypes)
	for _, typ := range AllTypes() {
		assert.Equal(t, 1, stats.HandlersPerType[typ], typ)
	}
}
