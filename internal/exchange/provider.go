package exchange

import (
	"context"
	"fmt"

	ccxt "github.com/ccxt/ccxt/go/v4"

	"quantgate/internal/marketdata"
)

// LoadMarkets 返回备用源的市场目录，键为 ccxt 统一符号。
// 目录在进程内只加载一次。
func (c *Client) LoadMarkets(ctx context.Context) (map[string]marketdata.SecondaryMarket, error) {
	raw, err := c.ensureMarkets(ctx)
	if err != nil {
		return nil, err
	}

	markets := make(map[string]marketdata.SecondaryMarket, len(raw))
	for key, market := range raw {
		symbol := derefString(market.Symbol)
		if symbol == "" {
			symbol = key
		}
		markets[key] = marketdata.SecondaryMarket{
			Symbol: symbol,
			Type:   derefString(market.Type),
			Linear: derefBool(market.Linear),
		}
	}
	return markets, nil
}

// FetchOHLCV 从备用源拉取K线。
func (c *Client) FetchOHLCV(ctx context.Context, symbol, interval string, since int64, limit int) ([]marketdata.Candle, error) {
	if limit <= 0 {
		limit = 1
	}

	var raw []ccxt.OHLCV
	err := c.callWithRetry(ctx, fmt.Sprintf("fetch_ohlcv_%s", interval), func() error {
		opts := []ccxt.FetchOHLCVOptions{
			ccxt.WithFetchOHLCVTimeframe(interval),
			ccxt.WithFetchOHLCVLimit(int64(limit)),
		}
		if since > 0 {
			opts = append(opts, ccxt.WithFetchOHLCVSince(since))
		}

		result, err := c.exchange.FetchOHLCV(symbol, opts...)
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	candles := make([]marketdata.Candle, 0, len(raw))
	for _, item := range raw {
		candles = append(candles, marketdata.Candle{
			TS:     item.Timestamp,
			Open:   item.Open,
			High:   item.High,
			Low:    item.Low,
			Close:  item.Close,
			Volume: item.Volume,
		})
	}
	return candles, nil
}
