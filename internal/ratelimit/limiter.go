package ratelimit

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"quantgate/internal/config"
)

// ErrAcquireTimeout 表示在等待窗口内未能取得令牌，调用方应立即失败。
var ErrAcquireTimeout = errors.New("ratelimit: 等待令牌超时")

const pollInterval = 50 * time.Millisecond

// TokenBucket 为单个端点的令牌桶，按到期时间惰性补充。
type TokenBucket struct {
	mu         sync.Mutex
	rate       float64 // 每秒补充的令牌数
	capacity   float64
	tokens     float64
	lastRefill time.Time
}

func newTokenBucket(rate, capacity float64) *TokenBucket {
	return &TokenBucket{
		rate:       rate,
		capacity:   capacity,
		tokens:     capacity,
		lastRefill: time.Now(),
	}
}

// Consume 尝试扣减指定权重的令牌，不足时立即返回 false。
func (b *TokenBucket) Consume(weight float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	refill := elapsed * b.rate
	if refill > 0 {
		b.tokens = math.Min(b.capacity, b.tokens+refill)
		b.lastRefill = now
	}
	if weight <= b.tokens {
		b.tokens -= weight
		return true
	}
	return false
}

// Limiter 按端点名称维护令牌桶，实现有界等待的准入控制。
type Limiter struct {
	cfg       config.RateLimitConfig
	logger    *zap.Logger
	onTimeout func(endpoint string)

	mu      sync.Mutex
	buckets map[string]*TokenBucket
}

// NewLimiter 创建端点级限流器。
func NewLimiter(cfg config.RateLimitConfig, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		cfg:     cfg,
		logger:  logger,
		buckets: make(map[string]*TokenBucket),
	}
}

// SetTimeoutHook 注册等待超时的回调，用于上报指标。
func (l *Limiter) SetTimeoutHook(fn func(endpoint string)) {
	l.onTimeout = fn
}

func (l *Limiter) bucket(endpoint string) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[endpoint]
	if !ok {
		capacity := l.cfg.DefaultRatePerMinute
		if c, exists := l.cfg.Capacities[endpoint]; exists {
			capacity = c
		}
		b = newTokenBucket(l.cfg.DefaultRatePerMinute/60.0, capacity)
		l.buckets[endpoint] = b
	}
	return b
}

// Acquire 在最大等待时间内轮询取令牌，超时即快速失败而不是无限阻塞。
func (l *Limiter) Acquire(ctx context.Context, endpoint string, weight float64) error {
	bucket := l.bucket(endpoint)
	deadline := time.Now().Add(l.cfg.MaxWait)

	for {
		if bucket.Consume(weight) {
			return nil
		}
		if time.Now().After(deadline) {
			l.logger.Warn("本地限流等待超时",
				zap.String("endpoint", endpoint),
				zap.Duration("max_wait", l.cfg.MaxWait),
			)
			if l.onTimeout != nil {
				l.onTimeout(endpoint)
			}
			return ErrAcquireTimeout
		}

		timer := time.NewTimer(pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Reset 清空全部令牌桶，主要用于测试与显式生命周期管理。
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*TokenBucket)
}
