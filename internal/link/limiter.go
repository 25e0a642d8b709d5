package link

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimiter 基于Token Bucket的发送节流
type RateLimiter struct {
	limiter    *rate.Limiter
	ratePerSec int
	burst      int
	sent       atomic.Int64
	dropped    atomic.Int64
}

// NewRateLimiter 创建发送节流器；ratePerSec<=0 时返回 nil（不限速）
// burst: 突发容量（桶的大小）
func NewRateLimiter(ratePerSec int, burst int) *RateLimiter {
	if ratePerSec <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
		ratePerSec: ratePerSec,
		burst:      burst,
	}
}

// Wait 等待直到允许发送；nil 节流器立即返回
func (l *RateLimiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := l.limiter.Wait(ctx); err != nil {
		l.dropped.Add(1)
		return err
	}
	l.sent.Add(1)
	return nil
}

// Stats 获取统计信息
func (l *RateLimiter) Stats() RateLimiterStats {
	if l == nil {
		return RateLimiterStats{}
	}
	return RateLimiterStats{
		RatePerSecond: l.ratePerSec,
		Burst:         l.burst,
		SentTotal:     l.sent.Load(),
		DroppedTotal:  l.dropped.Load(),
	}
}

// RateLimiterStats 发送节流统计
type RateLimiterStats struct {
	RatePerSecond int   `json:"rate_per_second"`
	Burst         int   `json:"burst"`
	SentTotal     int64 `json:"sent_total"`
	DroppedTotal  int64 `json:"dropped_total"`
}
