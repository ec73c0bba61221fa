package marketdata

import (
	"errors"
	"math"
	"testing"
)

func makeMinuteCandles(start int64, count int) []Candle {
	candles := make([]Candle, 0, count)
	for i := 0; i < count; i++ {
		candles = append(candles, Candle{
			TS:     start + int64(i)*60_000,
			Open:   1 + float64(i),
			High:   2 + float64(i),
			Low:    0.5 + float64(i),
			Close:  1.5 + float64(i),
			Volume: 1,
		})
	}
	return candles
}

func TestResampleFifteenMinutesFullBucket(t *testing.T) {
	candles := makeMinuteCandles(1_690_000_000_000, 15)

	resampled, coverage, err := ResampleFromBase(candles, "15m", 1, 0.85)
	if err != nil {
		t.Fatalf("ResampleFromBase returned error: %v", err)
	}
	if len(resampled) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(resampled))
	}

	bucket := resampled[0]
	if bucket.Open != candles[0].Open {
		t.Errorf("expected open=%v, got %v", candles[0].Open, bucket.Open)
	}
	if bucket.Close != candles[14].Close {
		t.Errorf("expected close=%v, got %v", candles[14].Close, bucket.Close)
	}
	if bucket.High != candles[14].High {
		t.Errorf("expected high=%v, got %v", candles[14].High, bucket.High)
	}
	if bucket.Low != candles[0].Low {
		t.Errorf("expected low=%v, got %v", candles[0].Low, bucket.Low)
	}
	if bucket.Volume != 15 {
		t.Errorf("expected volume=15, got %v", bucket.Volume)
	}
	if math.Abs(coverage-1.0) > 1e-9 {
		t.Errorf("expected coverage=1.0, got %v", coverage)
	}
}

func TestResampleInsufficientMembersDropped(t *testing.T) {
	candles := makeMinuteCandles(1_690_000_000_000, 5)

	resampled, coverage, err := ResampleFromBase(candles, "15m", 1, 0.85)
	if err != nil {
		t.Fatalf("ResampleFromBase returned error: %v", err)
	}
	if len(resampled) != 0 {
		t.Fatalf("expected 0 kept buckets, got %d", len(resampled))
	}
	if coverage != 0 {
		t.Fatalf("expected coverage=0, got %v", coverage)
	}
}

func TestResampleAnchorsToFirstSample(t *testing.T) {
	// 首根K线未落在整点边界，分桶仍以它为锚点。
	candles := makeMinuteCandles(1_690_000_037_000, 15)

	resampled, coverage, err := ResampleFromBase(candles, "15m", 1, 0.85)
	if err != nil {
		t.Fatalf("ResampleFromBase returned error: %v", err)
	}
	if len(resampled) != 1 {
		t.Fatalf("expected 1 bucket with first-sample anchoring, got %d", len(resampled))
	}
	if resampled[0].TS != candles[0].TS {
		t.Errorf("expected bucket ts=%d, got %d", candles[0].TS, resampled[0].TS)
	}
	if math.Abs(coverage-1.0) > 1e-9 {
		t.Errorf("expected coverage=1.0, got %v", coverage)
	}
}

func TestResamplePartialTrailingBucketReducesCoverage(t *testing.T) {
	candles := makeMinuteCandles(1_690_000_000_000, 20)

	resampled, coverage, err := ResampleFromBase(candles, "15m", 1, 0.85)
	if err != nil {
		t.Fatalf("ResampleFromBase returned error: %v", err)
	}
	if len(resampled) != 1 {
		t.Fatalf("expected only the full bucket kept, got %d", len(resampled))
	}
	if math.Abs(coverage-0.5) > 1e-9 {
		t.Errorf("expected coverage=0.5, got %v", coverage)
	}
}

func TestResampleUnsupportedInterval(t *testing.T) {
	candles := makeMinuteCandles(1_690_000_000_000, 5)

	if _, _, err := ResampleFromBase(candles, "1d", 1, 0.85); !errors.Is(err, ErrUnsupportedInterval) {
		t.Fatalf("expected ErrUnsupportedInterval, got %v", err)
	}
}

func TestIntervalMinutes(t *testing.T) {
	cases := []struct {
		interval string
		minutes  int
	}{
		{"1m", 1},
		{"15m", 15},
		{"1h", 60},
		{"4h", 240},
	}
	for _, tc := range cases {
		minutes, err := IntervalMinutes(tc.interval)
		if err != nil {
			t.Fatalf("IntervalMinutes(%q) returned error: %v", tc.interval, err)
		}
		if minutes != tc.minutes {
			t.Errorf("IntervalMinutes(%q) = %d, want %d", tc.interval, minutes, tc.minutes)
		}
	}

	if _, err := IntervalMinutes("1d"); !errors.Is(err, ErrUnsupportedInterval) {
		t.Fatalf("expected ErrUnsupportedInterval for 1d, got %v", err)
	}
}

func TestTailCandles(t *testing.T) {
	candles := makeMinuteCandles(1_690_000_000_000, 10)

	tail := TailCandles(candles, 3)
	if len(tail) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(tail))
	}
	if tail[0].TS != candles[7].TS {
		t.Errorf("expected tail to keep most recent entries")
	}

	if got := TailCandles(candles, 0); len(got) != len(candles) {
		t.Errorf("lookback<=0 should not truncate")
	}
}
