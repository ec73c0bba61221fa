package monitor

import (
	"time"

	"quantgate/internal/bracket"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventMarketFetch EventType = "market_fetch"
	EventDegraded    EventType = "degradation"
	EventReconcile   EventType = "reconcile"
	EventError       EventType = "error"
)

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// MarketFetchPayload 记录一次行情拉取的来源与质量。
type MarketFetchPayload struct {
	Symbol   string  `json:"symbol"`
	Interval string  `json:"interval"`
	Source   string  `json:"source"`
	Candles  int     `json:"candles"`
	Coverage float64 `json:"coverage"`
}

// DegradedPayload 记录滚动窗口内的降级比例。
// 降级窗口跨品种统计，因此不携带 symbol。
type DegradedPayload struct {
	Ratio float64 `json:"ratio"`
}

// ReconcilePayload 记录一次离场对账计划。
type ReconcilePayload struct {
	Symbol  string                    `json:"symbol"`
	CycleTS int64                     `json:"cycle_ts"`
	Plan    bracket.ExitReconcilePlan `json:"plan"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
