package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"quantgate/internal/config"
	"quantgate/internal/ratelimit"
)

const maxKlineLimit = 1500

const (
	layerPrimary   = "primary"
	layerSecondary = "secondary"
)

// SecondaryProvider 为注入的备用行情能力。未注入时以
// ErrSecondaryUnavailable 表达能力缺失，而不是散落的 nil 判断。
type SecondaryProvider interface {
	LoadMarkets(ctx context.Context) (map[string]SecondaryMarket, error)
	FetchOHLCV(ctx context.Context, symbol, interval string, since int64, limit int) ([]Candle, error)
}

// Client 为带降级链路的行情客户端：主REST -> 备用源 -> 重采样 -> missing。
// K线路径永远返回结果，失败只会降级，不会让调用方中断。
type Client struct {
	cfg        config.MarketDataConfig
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	secondary  SecondaryProvider
	tracker    *FailureTracker
	stats      *degradationStats
	observer   StatsObserver
	logger     *zap.Logger

	infoMu        sync.Mutex
	infoFetchedAt time.Time
	infoPayload   json.RawMessage
}

// NewClient 构造行情客户端，secondary 可以为 nil。
func NewClient(cfg config.MarketDataConfig, limiter *ratelimit.Limiter, secondary SecondaryProvider, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    limiter,
		secondary:  secondary,
		tracker:    NewFailureTracker(cfg.CooldownWindow),
		stats:      newDegradationStats(),
		logger:     logger,
	}
}

// SetObserver 注册指标观测器，nil 表示不上报。
func (c *Client) SetObserver(observer StatsObserver) {
	c.observer = observer
}

// NormalizeSymbol 把交易对归一化为上游使用的形式，如 "xrp/usdt" -> "XRPUSDT"。
func NormalizeSymbol(symbol string) string {
	upper := strings.ToUpper(symbol)
	if idx := strings.Index(upper, ":"); idx >= 0 {
		upper = upper[:idx]
	}
	normalized := strings.ReplaceAll(upper, "/", "")
	if strings.HasSuffix(normalized, "USDTUSDT") {
		normalized = normalized[:len(normalized)-4]
	}
	return normalized
}

// GetCandles 依次尝试主数据源、备用数据源与基于1分钟K线的重采样，
// 全部失败时返回 missing 区块。start/end 传 0 表示不限制。
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, limit int, start, end int64, allowResample bool) IntervalBlock {
	normSymbol := NormalizeSymbol(symbol)
	started := time.Now()
	reason := ""

	if !c.tracker.ShouldSkip(normSymbol, interval, layerPrimary, c.cfg.CooldownFailures) {
		candles, err := c.fetchPrimaryKlines(ctx, normSymbol, interval, limit, start, end)
		if err == nil {
			block := c.buildBlock(interval, candles, SourcePrimary, nil)
			c.logFetch(normSymbol, interval, SourcePrimary, len(block.Candles), started, reason)
			c.updateStats(interval, SourcePrimary)
			return block
		}
		reason = fmt.Sprintf("primary_failed:%v", err)
		c.tracker.Record(normSymbol, interval, layerPrimary)
	}

	if !c.tracker.ShouldSkip(normSymbol, interval, layerSecondary, c.cfg.CooldownFailures) {
		candles, err := c.fetchSecondaryKlines(ctx, normSymbol, interval, start, limit)
		if err == nil {
			block := c.buildBlock(interval, candles, SourceSecondary, nil)
			c.logFetch(normSymbol, interval, SourceSecondary, len(block.Candles), started, reason)
			c.updateStats(interval, SourceSecondary)
			return block
		}
		reason = fmt.Sprintf("secondary_failed:%v", err)
		c.tracker.Record(normSymbol, interval, layerSecondary)
	}

	if allowResample {
		if minutes, err := IntervalMinutes(interval); err == nil && minutes > 1 {
			// 两阶段降级：先以 allow_resample=false 拉取基础周期，再聚合，
			// 避免嵌套重采样。
			base := c.GetCandles(ctx, normSymbol, "1m", limit*minutes, start, end, false)
			resampled, coverage, resampleErr := ResampleFromBase(base.Candles, interval, 1, c.cfg.CoverageThreshold)
			if resampleErr == nil {
				resampled = TailCandles(resampled, limit)
				block := c.buildBlock(interval, resampled, SourceResampled, &coverage)
				c.logFetch(normSymbol, interval, SourceResampled, len(block.Candles), started, reason)
				c.updateStats(interval, SourceResampled)
				return block
			}
			reason = fmt.Sprintf("resample_failed:%v", resampleErr)
		}
	}

	block := IntervalBlock{Interval: interval, Source: SourceMissing, Missing: true, Coverage: 0}
	c.logFetch(normSymbol, interval, SourceMissing, 0, started, reason)
	c.updateStats(interval, SourceMissing)
	return block
}

func (c *Client) fetchSecondaryKlines(ctx context.Context, symbol, interval string, since int64, limit int) ([]Candle, error) {
	if c.secondary == nil {
		return nil, ErrSecondaryUnavailable
	}

	markets, err := c.secondary.LoadMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("marketdata: 加载备用市场目录失败: %w", err)
	}

	market, err := resolveSecondaryMarket(markets, symbol)
	if err != nil {
		return nil, err
	}

	candles, err := c.secondary.FetchOHLCV(ctx, market.Symbol, interval, since, limit)
	if err != nil {
		return nil, fmt.Errorf("marketdata: 备用源拉取K线失败: %w", err)
	}
	return candles, nil
}

// resolveSecondaryMarket 在市场目录中寻找归一化后匹配的线性合约。
// 同一交易对通常同时存在现货与永续条目，遍历顺序不可依赖，
// 必须收集全部匹配后优先选带结算后缀的合约形态。
func resolveSecondaryMarket(markets map[string]SecondaryMarket, normSymbol string) (SecondaryMarket, error) {
	var (
		matched   bool
		best      SecondaryMarket
		bestScore = -1
	)
	for key, market := range markets {
		candidate := market.Symbol
		if candidate == "" {
			candidate = key
		}
		if NormalizeSymbol(candidate) != normSymbol {
			continue
		}
		matched = true
		if market.Type != "future" || !market.Linear {
			continue
		}
		score := 0
		if strings.Contains(candidate, ":") {
			score = 1
		}
		if score > bestScore {
			best = SecondaryMarket{Symbol: candidate, Type: market.Type, Linear: market.Linear}
			bestScore = score
		}
	}
	if bestScore >= 0 {
		return best, nil
	}
	if matched {
		return SecondaryMarket{}, fmt.Errorf("%w: %s 无匹配的线性合约条目", ErrMarketTypeMismatch, normSymbol)
	}
	return SecondaryMarket{}, fmt.Errorf("%w: %s", ErrMarketNotFound, normSymbol)
}

func (c *Client) buildBlock(interval string, candles []Candle, source Source, coverage *float64) IntervalBlock {
	missing := len(candles) < c.cfg.ExpectedWindows[interval]

	resolved := 0.0
	if coverage != nil {
		resolved = *coverage
	} else if len(candles) > 0 {
		resolved = 1.0
	}
	if resolved < c.cfg.CoverageThreshold {
		missing = true
	}

	return IntervalBlock{
		Interval: interval,
		Candles:  candles,
		Source:   source,
		Missing:  missing,
		Coverage: resolved,
	}
}

func (c *Client) logFetch(symbol, interval string, source Source, count int, started time.Time, reason string) {
	c.logger.Info("行情拉取完成",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.String("source", string(source)),
		zap.Int("candles", count),
		zap.Duration("duration", time.Since(started)),
		zap.String("reason", reason),
	)
}

func (c *Client) updateStats(interval string, source Source) {
	if c.observer != nil {
		c.observer.ObserveFetch(interval, source)
	}

	ratio, full := c.stats.observe(source)
	if !full {
		return
	}
	if c.observer != nil {
		c.observer.ObserveDegraded(ratio)
	}
	if ratio > DegradedThreshold {
		c.logger.Warn("降级数据占比过高", zap.Float64("ratio", ratio))
	}
}

// GetExchangeInfo 以TTL读穿缓存返回交易所元数据，刷新失败时回退到
// 已有缓存，两个并发刷新只是重复劳动，不构成正确性问题。
func (c *Client) GetExchangeInfo(ctx context.Context, forceRefresh bool) (json.RawMessage, error) {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()

	if !forceRefresh && c.infoPayload != nil && time.Since(c.infoFetchedAt) < c.cfg.ExchangeInfoTTL {
		return c.infoPayload, nil
	}

	body, err := c.request(ctx, "/fapi/v1/exchangeInfo", nil)
	if err != nil {
		if c.infoPayload != nil {
			c.logger.Warn("刷新交易所元数据失败，返回过期缓存", zap.Error(err))
			return c.infoPayload, nil
		}
		return nil, err
	}

	c.infoPayload = json.RawMessage(body)
	c.infoFetchedAt = time.Now()
	return c.infoPayload, nil
}

// ClearExchangeInfoCache 清空交易所元数据缓存。
func (c *Client) ClearExchangeInfoCache() {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()
	c.infoPayload = nil
	c.infoFetchedAt = time.Time{}
}

// ResetFailures 清空失败冷却与降级统计。
func (c *Client) ResetFailures() {
	c.tracker.Reset()
	c.stats.reset()
}

// GetServerTime 返回上游服务器时间（毫秒）。
func (c *Client) GetServerTime(ctx context.Context) (int64, error) {
	body, err := c.request(ctx, "/fapi/v1/time", nil)
	if err != nil {
		return 0, err
	}

	var payload struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("marketdata: 解析服务器时间失败: %w", err)
	}
	return payload.ServerTime, nil
}

// GetMicro 拉取最优买卖价并计算微观结构指标与成本底线。
func (c *Client) GetMicro(ctx context.Context, symbol string) (MarketMicro, error) {
	normSymbol := NormalizeSymbol(symbol)

	params := url.Values{}
	params.Set("symbol", normSymbol)

	body, err := c.request(ctx, "/fapi/v1/ticker/bookTicker", params)
	if err != nil {
		return MarketMicro{}, err
	}

	var payload struct {
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return MarketMicro{}, fmt.Errorf("marketdata: 解析盘口响应失败: %w", err)
	}

	bid, err := strconv.ParseFloat(payload.BidPrice, 64)
	if err != nil {
		return MarketMicro{}, fmt.Errorf("marketdata: 解析买价失败: %w", err)
	}
	ask, err := strconv.ParseFloat(payload.AskPrice, 64)
	if err != nil {
		return MarketMicro{}, fmt.Errorf("marketdata: 解析卖价失败: %w", err)
	}

	mid := (bid + ask) / 2
	spreadBps := 0.0
	if mid != 0 {
		spreadBps = (ask - bid) / mid * 1e4
	}

	feeBps := c.cfg.TakerFeeBps
	slippageBps := spreadBps
	if c.cfg.SlippageFloorBps > slippageBps {
		slippageBps = c.cfg.SlippageFloorBps
	}
	edgeFloorBps := (2*feeBps + spreadBps + slippageBps) * c.cfg.EdgeMult

	return MarketMicro{
		Bid:                  bid,
		Ask:                  ask,
		Mid:                  mid,
		SpreadBps:            spreadBps,
		EstimatedFeeBps:      feeBps,
		EstimatedSlippageBps: slippageBps,
		EdgeFloorBps:         edgeFloorBps,
	}, nil
}

// GetFunding 返回资金费率快照，失败时记录日志并返回 nil。
func (c *Client) GetFunding(ctx context.Context, symbol string) *Funding {
	normSymbol := NormalizeSymbol(symbol)

	params := url.Values{}
	params.Set("symbol", normSymbol)

	body, err := c.request(ctx, "/fapi/v1/premiumIndex", params)
	if err != nil {
		c.logger.Warn("拉取资金费率失败", zap.String("symbol", normSymbol), zap.Error(err))
		return nil
	}

	var payload struct {
		MarkPrice       string `json:"markPrice"`
		LastFundingRate string `json:"lastFundingRate"`
		NextFundingTime int64  `json:"nextFundingTime"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Warn("解析资金费率失败", zap.String("symbol", normSymbol), zap.Error(err))
		return nil
	}

	markPrice, _ := strconv.ParseFloat(payload.MarkPrice, 64)
	fundingRate, _ := strconv.ParseFloat(payload.LastFundingRate, 64)

	return &Funding{
		MarkPrice:       markPrice,
		FundingRate:     fundingRate,
		NextFundingTime: payload.NextFundingTime,
	}
}

// GetOpenInterest 返回未平仓量，失败时记录日志并返回 nil。
func (c *Client) GetOpenInterest(ctx context.Context, symbol string) *float64 {
	normSymbol := NormalizeSymbol(symbol)

	params := url.Values{}
	params.Set("symbol", normSymbol)

	body, err := c.request(ctx, "/fapi/v1/openInterest", params)
	if err != nil {
		c.logger.Warn("拉取未平仓量失败", zap.String("symbol", normSymbol), zap.Error(err))
		return nil
	}

	var payload struct {
		OpenInterest string `json:"openInterest"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Warn("解析未平仓量失败", zap.String("symbol", normSymbol), zap.Error(err))
		return nil
	}

	value, err := strconv.ParseFloat(payload.OpenInterest, 64)
	if err != nil {
		c.logger.Warn("解析未平仓量数值失败", zap.String("symbol", normSymbol), zap.Error(err))
		return nil
	}
	return &value
}
