package app

import (
	"fmt"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/gaia-upgrader/internal/config"
	"github.com/taoyao-code/gaia-upgrader/internal/link"
	"github.com/taoyao-code/gaia-upgrader/internal/metrics"
)

// NewDialer 按 link.transport 创建传输
func NewDialer(cfg cfgpkg.LinkConfig) (link.Dialer, error) {
	switch cfg.Transport {
	case "tcp":
		return &link.TCPDialer{
			Addr:         cfg.Addr,
			Timeout:      cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}, nil
	case "serial":
		return &link.SerialDialer{
			Port:         cfg.Port,
			BaudRate:     cfg.BaudRate,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}, nil
	default:
		return nil, fmt.Errorf("unknown link transport %q", cfg.Transport)
	}
}

// NewLinkClient 创建 GAIA 链路客户端
func NewLinkClient(cfg cfgpkg.LinkConfig, log *zap.Logger, appm *metrics.AppMetrics) (*link.Client, error) {
	d, err := NewDialer(cfg)
	if err != nil {
		return nil, err
	}
	return link.NewClient(d, link.Options{
		VendorID:    cfg.VendorID,
		Checksum:    cfg.Checksum,
		SendRate:    cfg.SendRate,
		SendBurst:   cfg.SendBurst,
		EventBuffer: cfg.EventBuffer,
		Logger:      log,
		Metrics:     appm,
	}), nil
}
