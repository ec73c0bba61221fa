package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// request 执行一次带预算的主数据源GET请求：每次尝试先过本地限流；
// 429 按 Retry-After 原地等待且不消耗重试预算；5xx 与网络错误按指数退避
// 重试；其余4xx立即判为致命。
func (c *Client) request(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	attempt := 0

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if err := c.limiter.Acquire(ctx, path.Base(endpoint), 1); err != nil {
			return nil, fmt.Errorf("marketdata: 获取令牌失败: %w", err)
		}

		reqURL := c.baseURL + endpoint
		if len(params) > 0 {
			reqURL += "?" + params.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("marketdata: 构造请求失败: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.cfg.Retries && IsRetryable(err) {
				if sleepErr := sleepContext(ctx, backoffDelay(c.cfg.RetryBackoff, attempt)); sleepErr != nil {
					return nil, sleepErr
				}
				attempt++
				continue
			}
			return nil, fmt.Errorf("marketdata: 请求 %s 失败: %w", endpoint, err)
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			wait := parseRetryAfter(resp.Header.Get("Retry-After"))
			c.logger.Warn("命中上游限流，按 Retry-After 等待后原地重试",
				zap.String("endpoint", endpoint),
				zap.Duration("wait", wait),
			)
			if sleepErr := sleepContext(ctx, wait); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		case resp.StatusCode >= 500:
			if attempt < c.cfg.Retries {
				if sleepErr := sleepContext(ctx, backoffDelay(c.cfg.RetryBackoff, attempt)); sleepErr != nil {
					return nil, sleepErr
				}
				attempt++
				continue
			}
			return nil, &UpstreamError{Endpoint: endpoint, Status: resp.StatusCode}
		case resp.StatusCode >= 400:
			return nil, &UpstreamError{Endpoint: endpoint, Status: resp.StatusCode}
		}

		if readErr != nil {
			if attempt < c.cfg.Retries {
				if sleepErr := sleepContext(ctx, backoffDelay(c.cfg.RetryBackoff, attempt)); sleepErr != nil {
					return nil, sleepErr
				}
				attempt++
				continue
			}
			return nil, fmt.Errorf("marketdata: 读取响应失败: %w", readErr)
		}

		return body, nil
	}
}

func (c *Client) fetchPrimaryKlines(ctx context.Context, symbol, interval string, limit int, start, end int64) ([]Candle, error) {
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))
	if start > 0 {
		params.Set("startTime", strconv.FormatInt(start, 10))
	}
	if end > 0 {
		params.Set("endTime", strconv.FormatInt(end, 10))
	}

	body, err := c.request(ctx, "/fapi/v1/klines", params)
	if err != nil {
		return nil, err
	}

	return parseKlineRows(body)
}

func parseKlineRows(body []byte) ([]Candle, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("marketdata: 解析K线响应失败: %w", err)
	}

	candles := make([]Candle, 0, len(rows))
	for _, row := range rows {
		candle, ok := parseKlineRow(row)
		if !ok {
			continue
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func parseKlineRow(row []json.RawMessage) (Candle, bool) {
	if len(row) < 6 {
		return Candle{}, false
	}

	values := make([]float64, 6)
	for i := 0; i < 6; i++ {
		value, ok := rawToFloat(row[i])
		if !ok {
			return Candle{}, false
		}
		values[i] = value
	}

	candle := Candle{
		TS:     int64(values[0]),
		Open:   values[1],
		High:   values[2],
		Low:    values[3],
		Close:  values[4],
		Volume: values[5],
	}

	if len(row) > 8 {
		if trades, ok := rawToFloat(row[8]); ok {
			candle.Trades = &trades
		}
	}
	if len(row) > 9 {
		if base, ok := rawToFloat(row[9]); ok {
			candle.TakerBuyBase = &base
		}
	}
	if len(row) > 10 {
		if quote, ok := rawToFloat(row[10]); ok {
			candle.TakerBuyQuote = &quote
		}
	}
	return candle, true
}

// rawToFloat 兼容上游把数值编码为字符串或数字两种形式。
func rawToFloat(raw json.RawMessage) (float64, bool) {
	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber, true
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err != nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(asString, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func parseRetryAfter(header string) time.Duration {
	seconds, err := strconv.ParseFloat(header, 64)
	if err != nil || seconds <= 0 {
		return time.Second
	}
	return time.Duration(seconds * float64(time.Second))
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<attempt)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
