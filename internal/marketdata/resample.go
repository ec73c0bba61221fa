package marketdata

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// IntervalMinutes 解析形如 "15m"、"1h" 的周期，其余单位视为配置错误。
func IntervalMinutes(interval string) (int, error) {
	if len(interval) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedInterval, interval)
	}

	value, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedInterval, interval)
	}

	switch {
	case strings.HasSuffix(interval, "m"):
		return value, nil
	case strings.HasSuffix(interval, "h"):
		return value * 60, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedInterval, interval)
	}
}

// ResampleFromBase 将基础周期K线聚合为目标周期。分桶以首根K线的时间戳
// 为锚点，而不是对齐到整点边界。成员数不足覆盖率阈值的桶被丢弃，
// coverage = 保留桶数 / 观测桶数。
func ResampleFromBase(candles []Candle, targetInterval string, baseMinutes int, coverageThreshold float64) ([]Candle, float64, error) {
	if baseMinutes <= 0 {
		baseMinutes = 1
	}
	if len(candles) == 0 {
		return nil, 0, nil
	}

	targetMinutes, err := IntervalMinutes(targetInterval)
	if err != nil {
		return nil, 0, err
	}
	expected := targetMinutes / baseMinutes
	if expected <= 0 {
		return nil, 0, fmt.Errorf("%w: 目标周期 %q 小于基础周期", ErrUnsupportedInterval, targetInterval)
	}

	bucketSpan := int64(targetMinutes) * 60_000
	baseTS := candles[0].TS

	grouped := make(map[int64][]Candle)
	for _, candle := range candles {
		bucket := (candle.TS - baseTS) / bucketSpan
		grouped[bucket] = append(grouped[bucket], candle)
	}

	buckets := make([]int64, 0, len(grouped))
	for bucket := range grouped {
		buckets = append(buckets, bucket)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i] < buckets[j] })

	resampled := make([]Candle, 0, len(buckets))
	kept := 0
	for _, bucket := range buckets {
		members := grouped[bucket]
		if float64(len(members)) < coverageThreshold*float64(expected) {
			continue
		}

		sort.Slice(members, func(i, j int) bool { return members[i].TS < members[j].TS })

		merged := Candle{
			TS:    members[0].TS,
			Open:  members[0].Open,
			Close: members[len(members)-1].Close,
			High:  members[0].High,
			Low:   members[0].Low,
		}
		for _, member := range members {
			if member.High > merged.High {
				merged.High = member.High
			}
			if member.Low < merged.Low {
				merged.Low = member.Low
			}
			merged.Volume += member.Volume
		}

		resampled = append(resampled, merged)
		kept++
	}

	coverage := 0.0
	if len(buckets) > 0 {
		coverage = float64(kept) / float64(len(buckets))
	}
	return resampled, coverage, nil
}

// TailCandles 截取最近的 lookback 根K线，lookback<=0 表示不截断。
func TailCandles(candles []Candle, lookback int) []Candle {
	if lookback <= 0 || len(candles) <= lookback {
		return candles
	}
	return candles[len(candles)-lookback:]
}
