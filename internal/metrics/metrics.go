// Package metrics 暴露 Prometheus 指标：
//
//   - quantgate_md_fetch_total{interval,source}     行情拉取按来源计数
//   - quantgate_md_degraded_ratio                   滚动窗口内的降级比例
//   - quantgate_reconcile_orders_total{action,purpose} 对账计划产生的委托动作
//   - quantgate_ratelimit_timeouts_total{endpoint}  限流器等待超时次数
//
// 指标在 init() 中注册，由 monitor 服务的 /metrics 端点输出。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"quantgate/internal/marketdata"
)

var (
	mdFetch = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantgate_md_fetch_total",
			Help: "Market data fetches by interval and source",
		},
		[]string{"interval", "source"},
	)

	mdDegradedRatio = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantgate_md_degraded_ratio",
			Help: "Share of degraded fetches in the rolling window",
		},
	)

	reconcileOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantgate_reconcile_orders_total",
			Help: "Reconcile plan actions by type and purpose",
		},
		[]string{"action", "purpose"},
	)

	ratelimitTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantgate_ratelimit_timeouts_total",
			Help: "Rate limiter acquire timeouts by endpoint",
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(mdFetch, mdDegradedRatio)
	prometheus.MustRegister(reconcileOrders, ratelimitTimeouts)
}

// Observer 把行情客户端的统计回调接到 Prometheus 指标上。
type Observer struct{}

func (Observer) ObserveFetch(interval string, source marketdata.Source) {
	mdFetch.WithLabelValues(interval, string(source)).Inc()
}

func (Observer) ObserveDegraded(ratio float64) {
	mdDegradedRatio.Set(ratio)
}

// IncReconcileCreate 记录一次计划内的创建动作。
func IncReconcileCreate(purpose string) {
	reconcileOrders.WithLabelValues("create", purpose).Inc()
}

// IncReconcileCancel 记录一次计划内的撤销动作。
func IncReconcileCancel() {
	reconcileOrders.WithLabelValues("cancel", "any").Inc()
}

// IncRateLimitTimeout 记录一次限流等待超时。
func IncRateLimitTimeout(endpoint string) {
	ratelimitTimeouts.WithLabelValues(endpoint).Inc()
}
