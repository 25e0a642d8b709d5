package app

import (
	"fmt"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/gaia-upgrader/internal/config"
	"github.com/taoyao-code/gaia-upgrader/internal/metrics"
	"github.com/taoyao-code/gaia-upgrader/internal/protocol/vmu"
	"github.com/taoyao-code/gaia-upgrader/internal/upgrade"
)

// NewEngine 按配置创建升级引擎；配置了返回码文案文件时覆盖默认文案
func NewEngine(cfg *cfgpkg.Config, l upgrade.Link, lis upgrade.Listener, log *zap.Logger, appm *metrics.AppMetrics) (*upgrade.Engine, error) {
	messages := vmu.DefaultCodeMessages()
	if path := cfg.Upgrade.CodeMessages; path != "" {
		m, err := vmu.LoadCodeMessages(path)
		if err != nil {
			return nil, fmt.Errorf("load code messages: %w", err)
		}
		messages = m
		log.Info("code messages loaded", zap.String("path", path), zap.Int("count", len(m.Messages)))
	}
	return upgrade.NewEngine(l, upgrade.Options{
		StartRetryDelay:        cfg.Upgrade.StartRetryDelay,
		MaxStartAttempts:       cfg.Upgrade.MaxStartAttempts,
		ValidationPollInterval: cfg.Upgrade.ValidationPollInterval,
		ChunkSize:              cfg.Upgrade.ChunkSize,
		ReconnectAttempts:      cfg.Reconnect.MaxAttempts,
		ReconnectDelay:         cfg.Reconnect.Delay,
		Messages:               messages,
		Listener:               lis,
		Logger:                 log,
		Metrics:                appm,
	}), nil
}
