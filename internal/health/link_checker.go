package health

import (
	"context"
	"time"

	"github.com/taoyao-code/gaia-upgrader/internal/link"
)

// LinkState 链路状态来源，由 *link.Client 实现
type LinkState interface {
	Connected() bool
	SendStats() link.RateLimiterStats
}

// LinkChecker GAIA 链路检查
type LinkChecker struct {
	link LinkState
}

func NewLinkChecker(l LinkState) *LinkChecker {
	return &LinkChecker{link: l}
}

func (c *LinkChecker) Name() string { return "link" }

func (c *LinkChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	stats := c.link.SendStats()
	details := map[string]any{"rate_limited": stats.RatePerSecond > 0}
	if stats.RatePerSecond > 0 {
		details["rate_per_second"] = stats.RatePerSecond
		details["sent_total"] = stats.SentTotal
		details["dropped_total"] = stats.DroppedTotal
	}

	if !c.link.Connected() {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "transport not connected",
			Details: details,
			Latency: time.Since(start),
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: "ok",
		Details: details,
		Latency: time.Since(start),
	}
}
