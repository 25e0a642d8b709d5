package app

import (
	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/gaia-upgrader/internal/health"
	"github.com/taoyao-code/gaia-upgrader/internal/upgrade"
)

// NewHealthAggregator 链路与升级会话检查
func NewHealthAggregator(l health.LinkState, status func() upgrade.Status) *health.Aggregator {
	return health.NewAggregator(
		health.NewLinkChecker(l),
		health.NewUpgradeChecker(status),
	)
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(r *gin.Engine, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}
