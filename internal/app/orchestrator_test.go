package app

import (
	"context"
	"testing"
	"time"

	"quantgate/internal/bracket"
	"quantgate/internal/config"
	"quantgate/internal/monitor"
	"quantgate/internal/store"
)

type fakeState struct {
	position   bracket.PositionSnapshot
	openOrders []bracket.OpenOrderState
}

func (f *fakeState) FetchOpenOrders(ctx context.Context, symbol string) ([]bracket.OpenOrderState, error) {
	return f.openOrders, nil
}

func (f *fakeState) FetchPosition(ctx context.Context, symbol string) (bracket.PositionSnapshot, error) {
	return f.position, nil
}

type fakeFills struct {
	events []bracket.FillEvent
}

func (f *fakeFills) Drain() []bracket.FillEvent {
	events := f.events
	f.events = nil
	return events
}

func newTestOrchestrator(t *testing.T, state stateSource, fills fillSource) *orchestrator {
	t.Helper()

	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	monitorSvc, err := monitor.NewService(st, nil)
	if err != nil {
		t.Fatalf("create monitor: %v", err)
	}

	return &orchestrator{
		symbols: []string{"BTCUSDT"},
		state:   state,
		fills:   fills,
		manager: bracket.NewManager("s1", 0, nil),
		monitor: monitorSvc,
		bracketCfg: config.BracketConfig{
			StrategyID:    "s1",
			TakeProfitPct: 2,
			StopLossPct:   1,
		},
		loopInterval: time.Minute,
	}
}

func TestReconcileRecordsPlanForOpenPosition(t *testing.T) {
	state := &fakeState{
		position: bracket.PositionSnapshot{Symbol: "BTCUSDT", Quantity: 1.0, EntryPrice: 50000},
	}
	orch := newTestOrchestrator(t, state, &fakeFills{})
	ctx := context.Background()

	if err := orch.reconcile(ctx, "BTC/USDT:USDT", 1690000000, nil); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	events, err := orch.monitor.ListEvents(ctx, monitor.EventReconcile, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 reconcile event, got %d", len(events))
	}
}

func TestReconcileFiltersFillsBySymbol(t *testing.T) {
	state := &fakeState{
		position: bracket.PositionSnapshot{Symbol: "BTCUSDT", Quantity: 1.0, EntryPrice: 50000},
		openOrders: []bracket.OpenOrderState{
			{ClientOrderID: "s1:BTCUSDT:1690000000:sl:sell", Side: bracket.TradeSideSell, ReduceOnly: true},
		},
	}
	orch := newTestOrchestrator(t, state, &fakeFills{})
	ctx := context.Background()

	fills := []bracket.FillEvent{
		{Symbol: "ETHUSDT", Qty: 1, ClientOrderID: "s1:ETHUSDT:1690000000:tp:sell"},
		{Symbol: "BTC/USDT:USDT", Qty: 1, ClientOrderID: "s1:BTCUSDT:1690000000:tp:sell"},
	}
	if err := orch.reconcile(ctx, "BTCUSDT", 1690000000, fills); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	events, err := orch.monitor.ListEvents(ctx, monitor.EventReconcile, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected reconcile event with cancels, got %d events", len(events))
	}
}

func TestTelemetryObserverJournalsDegradedWindow(t *testing.T) {
	orch := newTestOrchestrator(t, &fakeState{}, &fakeFills{})
	ctx := context.Background()

	observer := telemetryObserver{monitor: orch.monitor}
	observer.ObserveDegraded(0.2)
	observer.ObserveDegraded(0.6)

	events, err := orch.monitor.ListEvents(ctx, monitor.EventDegraded, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	// 仅越过阈值的窗口落事件，健康窗口只更新指标。
	if len(events) != 1 {
		t.Fatalf("expected 1 degradation event, got %d", len(events))
	}
}

func TestStaticExitSpecLong(t *testing.T) {
	cfg := config.BracketConfig{TakeProfitPct: 2, StopLossPct: 1}
	position := bracket.PositionSnapshot{Quantity: 1, EntryPrice: 100}

	spec := staticExitSpec(cfg, position)
	if spec == nil {
		t.Fatalf("expected spec for open position")
	}
	if spec.TakeProfit == nil || *spec.TakeProfit.TriggerPrice != 102 {
		t.Errorf("unexpected tp trigger: %+v", spec.TakeProfit)
	}
	if spec.StopLoss == nil || *spec.StopLoss.TriggerPrice != 99 {
		t.Errorf("unexpected sl trigger: %+v", spec.StopLoss)
	}
}

func TestStaticExitSpecShortMirrorsOffsets(t *testing.T) {
	cfg := config.BracketConfig{TakeProfitPct: 2, StopLossPct: 1}
	position := bracket.PositionSnapshot{Quantity: -1, EntryPrice: 100}

	spec := staticExitSpec(cfg, position)
	if spec == nil {
		t.Fatalf("expected spec for open position")
	}
	if *spec.TakeProfit.TriggerPrice != 98 {
		t.Errorf("short tp trigger should be below entry, got %v", *spec.TakeProfit.TriggerPrice)
	}
	if *spec.StopLoss.TriggerPrice != 101 {
		t.Errorf("short sl trigger should be above entry, got %v", *spec.StopLoss.TriggerPrice)
	}
}

func TestStaticExitSpecNilCases(t *testing.T) {
	if spec := staticExitSpec(config.BracketConfig{}, bracket.PositionSnapshot{Quantity: 1, EntryPrice: 100}); spec != nil {
		t.Errorf("no offsets configured should yield nil spec")
	}
	cfg := config.BracketConfig{TakeProfitPct: 2}
	if spec := staticExitSpec(cfg, bracket.PositionSnapshot{Quantity: 0, EntryPrice: 100}); spec != nil {
		t.Errorf("flat position should yield nil spec")
	}
	if spec := staticExitSpec(cfg, bracket.PositionSnapshot{Quantity: 1}); spec != nil {
		t.Errorf("missing entry price should yield nil spec")
	}
}
