package health

import (
	"context"
	"time"

	"github.com/taoyao-code/gaia-upgrader/internal/upgrade"
)

// UpgradeChecker 升级会话检查：重连或暂停时降级
type UpgradeChecker struct {
	status func() upgrade.Status
}

func NewUpgradeChecker(status func() upgrade.Status) *UpgradeChecker {
	return &UpgradeChecker{status: status}
}

func (c *UpgradeChecker) Name() string { return "upgrade" }

func (c *UpgradeChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	st := c.status()
	details := map[string]any{
		"state":   st.State,
		"phase":   st.Phase,
		"percent": st.Percent,
	}
	if st.LastError != "" {
		details["last_error"] = st.LastError
	}

	status, msg := StatusHealthy, "ok"
	switch st.State {
	case upgrade.StateReconnecting:
		status, msg = StatusDegraded, "transport reconnecting"
		details["reconnect_attempts"] = st.ReconnectAttempts
	case upgrade.StatePaused:
		status, msg = StatusDegraded, "paused on device battery level"
	case upgrade.StateFailed:
		status, msg = StatusDegraded, "last upgrade failed"
	}
	return CheckResult{Status: status, Message: msg, Details: details, Latency: time.Since(start)}
}
