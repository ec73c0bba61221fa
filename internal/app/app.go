package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quantgate/internal/config"
	"quantgate/internal/store"
	"quantgate/internal/userstream"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 启动监控服务、成交回报流与主调度循环，直到收到退出信号。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("行情韧性核心已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.Strings("symbols", a.cfg.App.Symbols),
	)

	group, ctx := errgroup.WithContext(ctx)

	var stream *userstream.Stream
	if a.cfg.UserStream.Enabled {
		stream = userstream.NewStream(a.cfg.UserStream, a.logger)
		group.Go(func() error {
			err := stream.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("用户流异常退出: %w", err)
			}
			return nil
		})
	}

	var fills fillSource
	if stream != nil {
		fills = stream
	}

	orch, err := newOrchestrator(orchestratorConfig{
		app:        a.cfg.App,
		marketData: a.cfg.MarketData,
		rateLimit:  a.cfg.RateLimit,
		secondary:  a.cfg.Secondary,
		bracketCfg: a.cfg.Bracket,
		scheduler:  a.cfg.Scheduler,
	}, a.logger, a.store, fills)
	if err != nil {
		return err
	}

	if err := startMonitorServer(ctx, orch.Monitor(), a.cfg.Monitor.Port, a.logger); err != nil {
		return err
	}

	group.Go(func() error {
		return a.runLoop(ctx, orch)
	})

	return group.Wait()
}

func (a *App) runLoop(ctx context.Context, orch *orchestrator) error {
	loopInterval := a.cfg.Scheduler.LoopInterval
	if loopInterval <= 0 {
		loopInterval = time.Minute
	}

	if err := orch.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("首次执行失败", zap.Error(err))
	}

	ticker := time.NewTicker(loopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("系统异常退出: %w", err)
			}
			a.logger.Info("系统收到退出信号，正在停止")
			return nil
		case <-ticker.C:
			if err := orch.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("执行调度失败", zap.Error(err))
			}
		}
	}
}
