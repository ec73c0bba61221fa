package marketdata

import (
	"sync"
	"time"
)

type failureKey struct {
	symbol   string
	interval string
	layer    string
}

// FailureTracker 按 (symbol, interval, layer) 维护滑动窗口内的失败时间戳，
// 达到阈值后让客户端在窗口内跳过对应数据层。
type FailureTracker struct {
	mu       sync.Mutex
	window   time.Duration
	failures map[failureKey][]time.Time
}

// NewFailureTracker 创建失败冷却追踪器。
func NewFailureTracker(window time.Duration) *FailureTracker {
	if window <= 0 {
		window = 60 * time.Second
	}
	return &FailureTracker{
		window:   window,
		failures: make(map[failureKey][]time.Time),
	}
}

// Record 记录一次失败并裁剪过期条目。
func (t *FailureTracker) Record(symbol, interval, layer string) {
	key := failureKey{symbol: symbol, interval: interval, layer: layer}
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	history := append(t.failures[key], now)
	t.failures[key] = t.prune(history, now)
}

// ShouldSkip 在窗口内失败次数达到阈值时返回 true，旧失败过期后自动恢复。
func (t *FailureTracker) ShouldSkip(symbol, interval, layer string, threshold int) bool {
	key := failureKey{symbol: symbol, interval: interval, layer: layer}
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	history := t.prune(t.failures[key], now)
	t.failures[key] = history
	return len(history) >= threshold
}

// Reset 清空全部失败记录。
func (t *FailureTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = make(map[failureKey][]time.Time)
}

func (t *FailureTracker) prune(history []time.Time, now time.Time) []time.Time {
	kept := history[:0]
	for _, ts := range history {
		if now.Sub(ts) <= t.window {
			kept = append(kept, ts)
		}
	}
	return kept
}
