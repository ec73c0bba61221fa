package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrMarketTypeMismatch 表示备用数据源解析出的市场不是线性永续合约。
	ErrMarketTypeMismatch = errors.New("marketdata: 备用市场类型不匹配")
	// ErrSecondaryUnavailable 表示未注入备用数据源能力。
	ErrSecondaryUnavailable = errors.New("marketdata: 备用数据源不可用")
	// ErrUnsupportedInterval 表示K线周期单位无法解析。
	ErrUnsupportedInterval = errors.New("marketdata: 不支持的K线周期")
	// ErrMarketNotFound 表示备用数据源目录中没有匹配的市场。
	ErrMarketNotFound = errors.New("marketdata: 备用市场目录中无匹配条目")
)

// UpstreamError 携带上游HTTP状态码，用于区分限流、服务端与客户端错误。
type UpstreamError struct {
	Endpoint string
	Status   int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("marketdata: 上游 %s 返回状态码 %d", e.Endpoint, e.Status)
}

// Retryable 仅对服务端错误返回 true，其余4xx视为致命。
func (e *UpstreamError) Retryable() bool {
	return e.Status >= 500
}

// IsRetryable 判断一次请求失败是否值得按退避策略重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Retryable()
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
