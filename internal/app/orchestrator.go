package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"quantgate/internal/bracket"
	"quantgate/internal/config"
	"quantgate/internal/exchange"
	"quantgate/internal/marketdata"
	"quantgate/internal/metrics"
	"quantgate/internal/monitor"
	"quantgate/internal/ratelimit"
	"quantgate/internal/store"
)

// stateSource 提供对账所需的挂单与持仓快照。
type stateSource interface {
	FetchOpenOrders(ctx context.Context, symbol string) ([]bracket.OpenOrderState, error)
	FetchPosition(ctx context.Context, symbol string) (bracket.PositionSnapshot, error)
}

// fillSource 提供自上个周期以来积压的成交事件。
type fillSource interface {
	Drain() []bracket.FillEvent
}

// telemetryObserver 把行情观测同时送入指标与监控流水：
// 指标始终更新，降级窗口越过阈值时额外落一条监控事件。
type telemetryObserver struct {
	metrics metrics.Observer
	monitor *monitor.Service
}

func (t telemetryObserver) ObserveFetch(interval string, source marketdata.Source) {
	t.metrics.ObserveFetch(interval, source)
}

func (t telemetryObserver) ObserveDegraded(ratio float64) {
	t.metrics.ObserveDegraded(ratio)
	if ratio > marketdata.DegradedThreshold && t.monitor != nil {
		t.monitor.RecordDegraded(context.Background(), ratio)
	}
}

type orchestrator struct {
	symbols []string
	market  *marketdata.Client
	state   stateSource
	fills   fillSource
	manager *bracket.Manager
	monitor *monitor.Service
	logger  *zap.Logger

	bracketCfg   config.BracketConfig
	loopInterval time.Duration
}

func (o *orchestrator) Monitor() *monitor.Service {
	return o.monitor
}

type orchestratorConfig struct {
	app        config.AppConfig
	marketData config.MarketDataConfig
	rateLimit  config.RateLimitConfig
	secondary  config.SecondaryConfig
	bracketCfg config.BracketConfig
	scheduler  config.SchedulerConfig
}

func newOrchestrator(cfg orchestratorConfig, logger *zap.Logger, store *store.Store, fills fillSource) (*orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	monitorSvc, err := monitor.NewService(store, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化监控服务失败: %w", err)
	}

	limiter := ratelimit.NewLimiter(cfg.rateLimit, logger)
	limiter.SetTimeoutHook(metrics.IncRateLimitTimeout)

	var secondary marketdata.SecondaryProvider
	var state stateSource
	if cfg.secondary.Enabled {
		exClient, err := exchange.NewClient(cfg.secondary, logger)
		if err != nil {
			return nil, fmt.Errorf("初始化备用交易所客户端失败: %w", err)
		}
		secondary = exClient
		state = exClient
	}

	market := marketdata.NewClient(cfg.marketData, limiter, secondary, logger)
	market.SetObserver(telemetryObserver{metrics: metrics.Observer{}, monitor: monitorSvc})

	manager := bracket.NewManager(cfg.bracketCfg.StrategyID, cfg.bracketCfg.QuantityPrecision, logger)

	loopInterval := cfg.scheduler.LoopInterval
	if loopInterval <= 0 {
		loopInterval = time.Minute
	}

	return &orchestrator{
		symbols:      cfg.app.Symbols,
		market:       market,
		state:        state,
		fills:        fills,
		manager:      manager,
		monitor:      monitorSvc,
		logger:       logger,
		bracketCfg:   cfg.bracketCfg,
		loopInterval: loopInterval,
	}, nil
}

// Tick 执行一个调度周期：拉取结构化行情、记录遥测、对账离场委托。
func (o *orchestrator) Tick(ctx context.Context) error {
	now := time.Now().UTC()
	cycleTS := now.Truncate(o.loopInterval).Unix()

	var fills []bracket.FillEvent
	if o.fills != nil {
		fills = o.fills.Drain()
	}

	for _, symbol := range o.symbols {
		if err := ctx.Err(); err != nil {
			return err
		}

		blocks, err := o.market.GetStructuralBlocks(ctx, symbol, true)
		if err != nil {
			o.monitor.RecordError(ctx, "拉取结构化行情失败", err, map[string]interface{}{"symbol": symbol})
			return err
		}
		o.recordBlocks(ctx, symbol, blocks)

		if o.state == nil {
			continue
		}

		if err := o.reconcile(ctx, symbol, cycleTS, fills); err != nil {
			o.monitor.RecordError(ctx, "离场对账失败", err, map[string]interface{}{"symbol": symbol})
			return err
		}
	}

	return nil
}

func (o *orchestrator) recordBlocks(ctx context.Context, symbol string, blocks marketdata.StructuralBlocks) {
	record := func(block marketdata.IntervalBlock) {
		o.monitor.RecordMarketFetch(ctx, monitor.MarketFetchPayload{
			Symbol:   symbol,
			Interval: block.Interval,
			Source:   string(block.Source),
			Candles:  len(block.Candles),
			Coverage: block.Coverage,
		})
	}
	record(blocks.OneMinute)
	record(blocks.FifteenMin)
	if blocks.Hourly != nil {
		record(*blocks.Hourly)
	}
}

func (o *orchestrator) reconcile(ctx context.Context, symbol string, cycleTS int64, allFills []bracket.FillEvent) error {
	position, err := o.state.FetchPosition(ctx, symbol)
	if err != nil {
		return err
	}

	openOrders, err := o.state.FetchOpenOrders(ctx, symbol)
	if err != nil {
		return err
	}

	normalized := marketdata.NormalizeSymbol(symbol)
	fills := make([]bracket.FillEvent, 0, len(allFills))
	for _, fill := range allFills {
		if marketdata.NormalizeSymbol(fill.Symbol) == normalized {
			fills = append(fills, fill)
		}
	}

	exits := staticExitSpec(o.bracketCfg, position)
	plan := o.manager.BuildExitPlan(cycleTS, position, exits, openOrders, fills)

	for _, order := range plan.Create {
		metrics.IncReconcileCreate(order.Purpose)
	}
	for range plan.Cancel {
		metrics.IncReconcileCancel()
	}

	if len(plan.Create) > 0 || len(plan.Cancel) > 0 {
		o.logger.Info("生成离场对账计划",
			zap.String("symbol", normalized),
			zap.Int64("cycle_ts", cycleTS),
			zap.Int("create", len(plan.Create)),
			zap.Int("cancel", len(plan.Cancel)),
		)
		o.monitor.RecordReconcile(ctx, normalized, cycleTS, plan)
	}

	return nil
}

// staticExitSpec 根据配置的静态偏移围绕开仓价构造离场规格。
// 未配置偏移或无持仓入场价时返回 nil，对账退化为清理残留委托。
func staticExitSpec(cfg config.BracketConfig, position bracket.PositionSnapshot) *bracket.ExitOrdersSpec {
	if cfg.TakeProfitPct <= 0 && cfg.StopLossPct <= 0 {
		return nil
	}
	if position.EntryPrice <= 0 || position.Quantity == 0 {
		return nil
	}

	long := position.Quantity > 0
	spec := &bracket.ExitOrdersSpec{}

	if cfg.TakeProfitPct > 0 {
		offset := position.EntryPrice * cfg.TakeProfitPct / 100
		trigger := position.EntryPrice + offset
		if !long {
			trigger = position.EntryPrice - offset
		}
		spec.TakeProfit = &bracket.ExitLegSpec{
			Type:         "TAKE_PROFIT_MARKET",
			TriggerPrice: &trigger,
			QtyMode:      bracket.QtyModeClosePosition,
		}
	}

	if cfg.StopLossPct > 0 {
		offset := position.EntryPrice * cfg.StopLossPct / 100
		trigger := position.EntryPrice - offset
		if !long {
			trigger = position.EntryPrice + offset
		}
		spec.StopLoss = &bracket.ExitLegSpec{
			Type:         "STOP_MARKET",
			TriggerPrice: &trigger,
			QtyMode:      bracket.QtyModeClosePosition,
		}
	}

	return spec
}
