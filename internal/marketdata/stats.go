package marketdata

import "sync"

const statsWindow = 10

// DegradedThreshold 为滚动窗口内降级来源占比的告警阈值，
// 超过该值的窗口会触发告警日志与监控事件。
const DegradedThreshold = 0.4

// StatsObserver 接收行情拉取的观测回调，供指标上报使用。
type StatsObserver interface {
	ObserveFetch(interval string, source Source)
	ObserveDegraded(ratio float64)
}

// degradationStats 统计最近一轮调用中降级来源的占比。
// 这是给运维的告警信号，不参与任何功能分支。
type degradationStats struct {
	mu     sync.Mutex
	counts map[Source]int
}

func newDegradationStats() *degradationStats {
	return &degradationStats{counts: make(map[Source]int)}
}

// observe 记录一次来源，窗口写满时返回降级占比并重置计数。
func (s *degradationStats) observe(source Source) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts[source]++

	total := 0
	for _, count := range s.counts {
		total += count
	}
	if total < statsWindow {
		return 0, false
	}

	degraded := float64(s.counts[SourceResampled]+s.counts[SourceMissing]) / float64(total)
	s.counts = make(map[Source]int)
	return degraded, true
}

func (s *degradationStats) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[Source]int)
}
