package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/gaia-upgrader/internal/api/middleware"
)

// RegisterUpgradeRoutes 注册升级控制路由
func RegisterUpgradeRoutes(r *gin.Engine, ctl Controller, authCfg middleware.AuthConfig, logger *zap.Logger) {
	if r == nil || ctl == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := NewUpgradeHandler(ctl, logger)

	api := r.Group("/api/upgrade")
	if authCfg.Enabled {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled")
	}

	api.GET("/status", handler.GetStatus)
	api.POST("/decision", handler.Decide)
	api.POST("/abort", handler.Abort)
}
