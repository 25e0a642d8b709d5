package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/gaia-upgrader/internal/api"
	"github.com/taoyao-code/gaia-upgrader/internal/api/middleware"
	cfgpkg "github.com/taoyao-code/gaia-upgrader/internal/config"
	"github.com/taoyao-code/gaia-upgrader/internal/httpserver"
)

// NewHTTPServer 根据配置创建 HTTP 服务器
func NewHTTPServer(cfg cfgpkg.HTTPConfig, metricsPath string, metricsHandler http.Handler, readyFn func() bool) *httpserver.Server {
	return httpserver.New(cfg, metricsPath, metricsHandler, readyFn)
}

// RegisterUpgradeRoutes 注册升级控制路由
func RegisterUpgradeRoutes(r *gin.Engine, ctl api.Controller, cfg cfgpkg.AuthConfig, log *zap.Logger) {
	api.RegisterUpgradeRoutes(r, ctl, middleware.AuthConfig{
		APIKeys: cfg.APIKeys,
		Enabled: cfg.Enabled,
	}, log)
}
