package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/gaia-upgrader/internal/link"
	"github.com/taoyao-code/gaia-upgrader/internal/upgrade"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(ctx context.Context) CheckResult {
	return CheckResult{Status: m.status, Message: "mock", Latency: time.Millisecond}
}

type fakeLink struct {
	connected bool
	stats     link.RateLimiterStats
}

func (f fakeLink) Connected() bool                  { return f.connected }
func (f fakeLink) SendStats() link.RateLimiterStats { return f.stats }

func TestAggregator(t *testing.T) {
	ctx := context.Background()

	t.Run("全部健康", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"link", StatusHealthy}, &mockChecker{"upgrade", StatusHealthy})
		assert.Equal(t, StatusHealthy, agg.OverallStatus(ctx))
		assert.True(t, agg.Ready(ctx))
	})

	t.Run("部分降级仍就绪", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"link", StatusHealthy}, &mockChecker{"upgrade", StatusDegraded})
		assert.Equal(t, StatusDegraded, agg.OverallStatus(ctx))
		assert.True(t, agg.Ready(ctx))
	})

	t.Run("部分不健康", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"link", StatusUnhealthy}, &mockChecker{"upgrade", StatusDegraded})
		assert.Equal(t, StatusUnhealthy, agg.OverallStatus(ctx))
		assert.False(t, agg.Ready(ctx))
	})

	t.Run("动态添加检查器", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"initial", StatusHealthy})
		agg.AddChecker(&mockChecker{"added", StatusHealthy})
		report := agg.Report(ctx)
		assert.Len(t, report.Checks, 2)
		assert.Equal(t, StatusHealthy, report.Status)
	})
}

func TestLinkChecker(t *testing.T) {
	ctx := context.Background()

	r := NewLinkChecker(fakeLink{connected: true}).Check(ctx)
	assert.Equal(t, StatusHealthy, r.Status)
	assert.Equal(t, false, r.Details["rate_limited"])

	r = NewLinkChecker(fakeLink{stats: link.RateLimiterStats{RatePerSecond: 50, SentTotal: 9}}).Check(ctx)
	assert.Equal(t, StatusUnhealthy, r.Status)
	assert.Equal(t, int64(9), r.Details["sent_total"])
}

func TestUpgradeChecker(t *testing.T) {
	tests := []struct {
		name  string
		state string
		want  Status
	}{
		{"空闲", upgrade.StateIdle, StatusHealthy},
		{"传输中", upgrade.StateRunning, StatusHealthy},
		{"重连中", upgrade.StateReconnecting, StatusDegraded},
		{"电量低暂停", upgrade.StatePaused, StatusDegraded},
		{"上次失败", upgrade.StateFailed, StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewUpgradeChecker(func() upgrade.Status { return upgrade.Status{State: tt.state} })
			assert.Equal(t, tt.want, c.Check(context.Background()).Status)
		})
	}
}

func TestHTTPRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterHTTPRoutes(r, NewAggregator(
		NewLinkChecker(fakeLink{connected: false}),
		NewUpgradeChecker(func() upgrade.Status { return upgrade.Status{State: upgrade.StateIdle} }),
	))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var report HealthReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Contains(t, report.Checks, "link")
	assert.Contains(t, report.Checks, "upgrade")

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
