package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 链路与升级指标
// LinkConnected 1=已连接；UpgradeResumePoint -1 表示初始化阶段
// 标签：LinkFramesRx/LinkFramesTx 为 cmd，LinkFrameErrors 为 reason，UpgradeErrors 为 kind，UpgradeSessions 为 result
type AppMetrics struct {
	LinkConnected     prometheus.Gauge
	LinkBytesReceived prometheus.Counter
	LinkBytesSent     prometheus.Counter
	LinkFramesRx      *prometheus.CounterVec
	LinkFramesTx      *prometheus.CounterVec
	LinkFrameErrors   *prometheus.CounterVec
	ReconnectAttempts prometheus.Counter

	UpgradeBytesSent   prometheus.Counter
	UpgradeResumePoint prometheus.Gauge
	UpgradeErrors      *prometheus.CounterVec
	UpgradeSessions    *prometheus.CounterVec
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		LinkConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gaia_link_connected",
			Help: "Whether the GAIA transport is connected.",
		}),
		LinkBytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gaia_link_bytes_received_total",
			Help: "Total bytes received from the transport.",
		}),
		LinkBytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gaia_link_bytes_sent_total",
			Help: "Total bytes written to the transport.",
		}),
		LinkFramesRx: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gaia_link_frames_received_total",
			Help: "Decoded GAIA frames by command.",
		}, []string{"cmd"}),
		LinkFramesTx: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gaia_link_frames_sent_total",
			Help: "Sent GAIA frames by command.",
		}, []string{"cmd"}),
		LinkFrameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gaia_link_frame_errors_total",
			Help: "Rejected inbound frames by reason.",
		}, []string{"reason"}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gaia_link_reconnect_attempts_total",
			Help: "Transport reconnection attempts.",
		}),
		UpgradeBytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vmu_upgrade_bytes_sent_total",
			Help: "Firmware bytes sent in UPDATE_DATA packets.",
		}),
		UpgradeResumePoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vmu_upgrade_resume_point",
			Help: "Current upgrade resume point (-1 = initialisation).",
		}),
		UpgradeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vmu_upgrade_errors_total",
			Help: "Upgrade errors by kind.",
		}, []string{"kind"}),
		UpgradeSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vmu_upgrade_sessions_total",
			Help: "Finished upgrade sessions by result.",
		}, []string{"result"}),
	}
	m.UpgradeResumePoint.Set(-1)
	reg.MustRegister(
		m.LinkConnected, m.LinkBytesReceived, m.LinkBytesSent, m.LinkFramesRx, m.LinkFramesTx,
		m.LinkFrameErrors, m.ReconnectAttempts,
		m.UpgradeBytesSent, m.UpgradeResumePoint, m.UpgradeErrors, m.UpgradeSessions,
	)
	return m
}
