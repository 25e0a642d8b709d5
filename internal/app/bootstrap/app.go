package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/gaia-upgrader/internal/app"
	cfgpkg "github.com/taoyao-code/gaia-upgrader/internal/config"
	"github.com/taoyao-code/gaia-upgrader/internal/metrics"
	"github.com/taoyao-code/gaia-upgrader/internal/upgrade"
)

// statusPollInterval 等待会话结束时的轮询间隔
const statusPollInterval = 200 * time.Millisecond

// Run 统一启动流程：链路、引擎、HTTP，然后升级 cfg.Upgrade.File 直到会话结束
func Run(cfg *cfgpkg.Config, log *zap.Logger) error {
	log.Info("starting gaia upgrader", zap.String("app", cfg.App.Name), zap.String("transport", cfg.Link.Transport))

	image, err := os.ReadFile(cfg.Upgrade.File)
	if err != nil {
		return fmt.Errorf("read firmware image: %w", err)
	}

	// ========== 阶段1: 基础组件 ==========
	reg, appm := app.NewMetrics()
	client, err := app.NewLinkClient(cfg.Link, log, appm)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	consoleOpts := app.ConsoleOptions{
		Out:         os.Stderr,
		AutoConfirm: cfg.Upgrade.AutoConfirm,
		RetryDelay:  cfg.Reconnect.Delay,
		Logger:      log,
	}
	// 未启用 HTTP 时在终端确认决策
	if !cfg.Upgrade.AutoConfirm && !cfg.HTTP.Enable {
		consoleOpts.In = os.Stdin
	}
	listener := app.NewConsoleListener(consoleOpts)

	engine, err := app.NewEngine(cfg, client, listener, log, appm)
	if err != nil {
		return err
	}
	listener.Bind(engine.Resolve)

	// ========== 阶段2: HTTP（可选）==========
	if cfg.HTTP.Enable {
		metricsHandler := metrics.Handler(reg)
		if !cfg.Metrics.Enable {
			metricsHandler = nil
		}
		httpSrv := app.NewHTTPServer(cfg.HTTP, cfg.Metrics.Path, metricsHandler, client.Connected)
		healthAgg := app.NewHealthAggregator(client, engine.Status)
		httpSrv.Register(func(r *gin.Engine) {
			app.RegisterUpgradeRoutes(r, engine, cfg.API.Auth, log)
			app.RegisterHealthRoutes(r, healthAgg)
		})
		go func() {
			if err := httpSrv.Start(); err != nil {
				log.Error("http server error", zap.Error(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(ctx)
			log.Info("http server stopped")
		}()
		log.Info("http server started", zap.String("addr", cfg.HTTP.Addr))
	}

	// ========== 阶段3: 运行引擎并开始升级 ==========
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- engine.Run(ctx) }()

	if err := engine.Start(image, nil); err != nil {
		return err
	}
	log.Info("upgrade requested", zap.String("file", cfg.Upgrade.File), zap.Int("size", len(image)))

	// ========== 阶段4: 等待结束或信号 ==========
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	st, err := wait(engine, sigCh, cfg.Reconnect.Delay, log)
	cancel()
	<-runDone
	if err != nil {
		return err
	}

	log.Info("upgrade finished", zap.String("state", st.State), zap.String("session", st.SessionID))
	switch st.State {
	case upgrade.StateComplete:
		return nil
	case upgrade.StateFailed:
		return fmt.Errorf("upgrade failed: %s", st.LastError)
	default:
		return fmt.Errorf("upgrade %s", st.State)
	}
}

// wait 轮询直到会话结束；收到信号时先中止升级，超时后放弃等待
func wait(engine *upgrade.Engine, sigCh <-chan os.Signal, abortTimeout time.Duration, log *zap.Logger) (upgrade.Status, error) {
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	started := false
	var deadline <-chan time.Time
	for {
		select {
		case sig := <-sigCh:
			if deadline != nil {
				return engine.Status(), fmt.Errorf("interrupted by %s", sig)
			}
			log.Info("received shutdown signal, aborting upgrade", zap.Stringer("signal", sig))
			engine.Abort()
			deadline = time.After(abortTimeout)
		case <-deadline:
			return engine.Status(), fmt.Errorf("abort not confirmed within %s", abortTimeout)
		case <-ticker.C:
			st := engine.Status()
			if st.Active() {
				started = true
				continue
			}
			if started || st.State != upgrade.StateIdle {
				return st, nil
			}
		}
	}
}
