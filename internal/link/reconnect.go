package link

import "time"

// ReconnectPolicy 有界重连策略：最多 MaxAttempts 次，每次间隔 Delay
// 计数器属于实例，不同客户端互不影响
type ReconnectPolicy struct {
	MaxAttempts int
	Delay       time.Duration

	attempts int
}

// Next 登记一次重连尝试；超过上限返回 false
func (p *ReconnectPolicy) Next() (time.Duration, bool) {
	if p.attempts >= p.MaxAttempts {
		return 0, false
	}
	p.attempts++
	return p.Delay, true
}

// Attempts 已进行的重连次数
func (p *ReconnectPolicy) Attempts() int { return p.attempts }

// Reset 连接成功后清零
func (p *ReconnectPolicy) Reset() { p.attempts = 0 }
