package upgrade

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/gaia-upgrader/internal/link"
	"github.com/taoyao-code/gaia-upgrader/internal/metrics"
	"github.com/taoyao-code/gaia-upgrader/internal/protocol/gaia"
	"github.com/taoyao-code/gaia-upgrader/internal/protocol/vmu"
)

// Link 引擎依赖的链路能力，由 *link.Client 实现
type Link interface {
	Events() <-chan link.Event
	Connect(ctx context.Context) error
	Disconnect() error
	Connected() bool
	VendorID() uint16
	SendPacket(commandID uint16, payload []byte) error
	SendCommand(commandID uint16, params ...byte) error
	SendAck(commandID uint16, status gaia.Status, params ...byte) error
	RegisterNotification(ev gaia.EventID) error
	CancelNotification(ev gaia.EventID) error
}

// Options 引擎参数
type Options struct {
	StartRetryDelay        time.Duration
	MaxStartAttempts       int
	ValidationPollInterval time.Duration
	ChunkSize              int // 0 或超过 vmu.MaxChunkSize 时按 vmu.MaxChunkSize
	ReconnectAttempts      int
	ReconnectDelay         time.Duration
	Messages               *vmu.CodeMessages
	Listener               Listener
	Logger                 *zap.Logger
	Metrics                *metrics.AppMetrics
}

func (o *Options) applyDefaults() {
	if o.StartRetryDelay <= 0 {
		o.StartRetryDelay = 2 * time.Second
	}
	if o.MaxStartAttempts <= 0 {
		o.MaxStartAttempts = 5
	}
	if o.ValidationPollInterval <= 0 {
		o.ValidationPollInterval = time.Second
	}
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = 30
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 10 * time.Second
	}
	if o.Messages == nil {
		o.Messages = vmu.DefaultCodeMessages()
	}
	if o.Listener == nil {
		o.Listener = NopListener{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Engine 可续传的 VM 升级引擎
// 所有状态只在 Run 的循环 goroutine 中修改；对外方法仅投递调用
type Engine struct {
	link   Link
	opts   Options
	log    *zap.Logger
	appm   *metrics.AppMetrics
	lis    Listener
	routes *gaia.Table

	calls  *callQueue
	timers *timers
	life   *lifecycle
	ctrl   controlQueue
	policy link.ReconnectPolicy

	sess                *session
	lastSession         string
	lastError           *Error
	linkUp              bool
	channelOpen         bool
	disconnectAfterAck  bool // 下一个 UPGRADE_CONTROL 应答后断开升级通道
	forceLinkDisconnect bool // 升级通道断开应答后断开传输

	ctx     context.Context
	running atomic.Bool

	statusMu sync.RWMutex
	status   Status
}

func NewEngine(l Link, opts Options) *Engine {
	opts.applyDefaults()
	e := &Engine{
		link:   l,
		opts:   opts,
		log:    opts.Logger.Named("upgrade"),
		appm:   opts.Metrics,
		lis:    opts.Listener,
		routes: gaia.NewTable(l.VendorID()),
		calls:  newCallQueue(),
		policy: link.ReconnectPolicy{MaxAttempts: opts.ReconnectAttempts, Delay: opts.ReconnectDelay},
		ctx:    context.Background(),
	}
	e.timers = newTimers(e.calls.post)
	e.life = newLifecycle(e.log)

	e.routes.Register(gaia.CommandVMUpgradeConnect|gaia.AckMask, e.onConnectAck)
	e.routes.Register(gaia.CommandVMUpgradeDisconnect|gaia.AckMask, e.onDisconnectAck)
	e.routes.Register(gaia.CommandVMUpgradeControl|gaia.AckMask, e.onControlAck)
	e.routes.Register(gaia.CommandRegisterNotification|gaia.AckMask, e.onRegisterAck)
	e.routes.Register(gaia.CommandCancelNotification|gaia.AckMask, e.onCancelAck)
	e.routes.Register(gaia.CommandEventNotification, e.onEvent)

	e.publish()
	return e
}

// Run 运行引擎循环，直到 ctx 结束
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine already running")
	}
	defer e.running.Store(false)

	e.ctx = ctx
	e.linkUp = e.link.Connected()
	e.publish()

	events := e.link.Events()
	for {
		select {
		case <-ctx.Done():
			e.timers.cancelAll()
			return ctx.Err()
		case ev := <-events:
			e.handleLinkEvent(ev)
		case <-e.calls.notify:
			for _, fn := range e.calls.drain() {
				fn()
			}
		}
		e.publish()
	}
}

// Start 开始升级；checksum 为镜像的 MD5 摘要，nil 时自动计算
func (e *Engine) Start(image, checksum []byte) error {
	if len(image) == 0 {
		return ErrEmptyImage
	}
	if checksum == nil {
		checksum = FileChecksum(image)
	}
	if len(checksum) != md5.Size {
		return ErrBadChecksum
	}
	if e.Status().Active() {
		return ErrSessionActive
	}
	img := append([]byte(nil), image...)
	sum := append([]byte(nil), checksum...)
	e.calls.post(func() { e.start(img, sum) })
	return nil
}

// Abort 用户中止升级
func (e *Engine) Abort() { e.calls.post(e.abortByUser) }

// Resolve 回复 OnDecisionRequired
func (e *Engine) Resolve(kind DecisionKind, accept bool) {
	e.calls.post(func() { e.resolve(kind, accept) })
}

// OnTransportConnected 由外部驱动传输时通知连接建立
func (e *Engine) OnTransportConnected() { e.calls.post(e.transportUp) }

// OnTransportDisconnected 由外部驱动传输时通知连接断开
func (e *Engine) OnTransportDisconnected() {
	e.calls.post(func() { e.transportDown(nil) })
}

func (e *Engine) handleLinkEvent(ev link.Event) {
	switch ev.Kind {
	case link.EventConnected:
		e.transportUp()
	case link.EventDisconnected:
		e.transportDown(ev.Err)
	case link.EventFrame:
		handled, err := e.routes.Route(ev.Frame)
		if err != nil {
			e.log.Warn("frame handler failed", zap.String("cmd", gaia.CommandName(ev.Frame.CommandID)), zap.Error(err))
		} else if !handled {
			e.unhandledFrame(ev.Frame)
		}
	case link.EventError:
		switch ev.Err.Kind {
		case link.ErrorFraming:
			// 丢弃坏帧，会话继续
			if e.appm != nil {
				e.appm.UpgradeErrors.WithLabelValues(KindFraming.String()).Inc()
			}
		case link.ErrorConnectionFailed:
			e.connectFailed(ev.Err)
		default:
			e.log.Warn("link error", zap.Error(ev.Err))
		}
	case link.EventStreamProgress:
		e.log.Debug("stream progress", zap.Int("bytes", ev.Bytes))
	}
}

// unhandledFrame 设备主动发来的未支持命令回复 NOT_SUPPORTED
func (e *Engine) unhandledFrame(f *gaia.Frame) {
	if f.IsAck() || f.VendorID != e.link.VendorID() {
		e.log.Debug("frame ignored",
			zap.String("cmd", gaia.CommandName(f.CommandID)),
			zap.Bool("ack", f.IsAck()),
			zap.Uint16("vendor", f.VendorID),
		)
		return
	}
	e.log.Debug("unsupported command from device", zap.String("cmd", gaia.CommandName(f.CommandID)))
	if err := e.link.SendAck(f.CommandID, gaia.StatusNotSupported); err != nil {
		e.log.Warn("ack unsupported command failed", zap.Error(err))
	}
}

func (e *Engine) start(image, checksum []byte) {
	if e.sess != nil && e.life.active() {
		e.log.Warn("upgrade already in progress", zap.String("session", e.sess.id))
		return
	}
	e.sess = newSession(image, checksum)
	e.lastSession = e.sess.id
	e.lastError = nil
	e.disconnectAfterAck = false
	e.forceLinkDisconnect = false
	e.policy.Reset()
	e.life.fire(evStart)
	if e.appm != nil {
		e.appm.UpgradeResumePoint.Set(-1)
	}
	e.log.Info("upgrade started", zap.String("session", e.sess.id), zap.Int("size", len(image)))

	if e.linkUp {
		e.openChannel()
		return
	}
	e.dial()
}

func (e *Engine) dial() {
	ctx := e.ctx
	go func() {
		// 结果以 EventConnected 或 ErrorConnectionFailed 事件返回
		_ = e.link.Connect(ctx)
	}()
}

func (e *Engine) transportUp() {
	if e.linkUp {
		return
	}
	e.linkUp = true
	if e.sess == nil || !e.life.is(StateConnecting, StateReconnecting) {
		return
	}
	e.timers.cancelAll()
	e.policy.Reset()
	if e.life.is(StateReconnecting) {
		e.life.fire(evReconnected)
	}
	e.log.Info("transport connected, opening upgrade channel", zap.String("session", e.sess.id))
	e.openChannel()
}

func (e *Engine) transportDown(lerr *link.Error) {
	if !e.linkUp {
		return
	}
	e.linkUp = false
	e.channelOpen = false
	e.ctrl.reset()
	e.disconnectAfterAck = false
	e.forceLinkDisconnect = false
	e.timers.cancelAll()

	s := e.sess
	if s == nil || !e.life.active() {
		return
	}
	if e.life.is(StateAborting) && !s.restartAfterAbort {
		e.log.Info("transport lost while aborting", zap.String("session", s.id))
		e.finish(s.abortCause)
		return
	}

	s.resetTransfer()
	msg := "transport disconnected"
	if lerr != nil {
		msg = lerr.Error()
	}
	e.report(plainError(KindTransport, msg))
	e.life.fire(evDrop)
	e.scheduleReconnect()
}

func (e *Engine) connectFailed(lerr *link.Error) {
	if e.linkUp || e.sess == nil || !e.life.is(StateConnecting, StateReconnecting) {
		return
	}
	e.log.Warn("connect attempt failed", zap.Int("attempt", e.policy.Attempts()), zap.Error(lerr))
	if e.life.is(StateConnecting) {
		e.life.fire(evDrop)
	}
	e.scheduleReconnect()
}

func (e *Engine) scheduleReconnect() {
	delay, ok := e.policy.Next()
	if !ok {
		e.fail(plainError(KindConnectionFailed, fmt.Sprintf("connection failed after %d attempts", e.policy.Attempts())))
		return
	}
	if e.appm != nil {
		e.appm.ReconnectAttempts.Inc()
	}
	e.log.Info("reconnect scheduled", zap.Int("attempt", e.policy.Attempts()), zap.Duration("delay", delay))
	e.timers.after(delay, e.dial)
}

// sendFailed 发送失败按传输错误处理：断开后由重连策略接管
func (e *Engine) sendFailed(err error) {
	e.log.Warn("send failed", zap.Error(err))
	if derr := e.link.Disconnect(); derr != nil {
		e.log.Debug("disconnect after send failure", zap.Error(derr))
	}
}

func (e *Engine) openChannel() {
	if err := e.link.SendCommand(gaia.CommandVMUpgradeConnect); err != nil {
		e.sendFailed(err)
	}
}

// disconnectUpgrade 取消 VMU 通知并断开升级通道，传输保持
func (e *Engine) disconnectUpgrade() {
	if err := e.link.CancelNotification(gaia.EventVMUPacket); err != nil {
		e.log.Warn("cancel notification failed", zap.Error(err))
	}
	if err := e.link.SendCommand(gaia.CommandVMUpgradeDisconnect); err != nil {
		e.log.Warn("upgrade disconnect failed", zap.Error(err))
	}
}

func (e *Engine) registerAndSync() {
	if err := e.link.RegisterNotification(gaia.EventVMUPacket); err != nil {
		e.sendFailed(err)
		return
	}
	e.sendSync()
}

func (e *Engine) sendSync() {
	e.sendControl(vmu.Encode(vmu.OpSyncReq, e.sess.syncID))
}

func (e *Engine) sendStartReq() {
	if e.sess == nil {
		return
	}
	e.sendControl(vmu.Encode(vmu.OpStartReq, nil))
}

func (e *Engine) sendControl(pkt []byte) {
	if !e.ctrl.push(pkt) {
		return
	}
	e.writeControl(pkt)
}

func (e *Engine) writeControl(pkt []byte) {
	e.log.Debug("vmu packet sent", zap.Stringer("op", vmu.OpCode(pkt[0])), zap.Int("len", len(pkt)-vmu.HeaderSize))
	if err := e.link.SendPacket(gaia.CommandVMUpgradeControl, pkt); err != nil {
		e.sendFailed(err)
	}
}

func (e *Engine) chunkLimit() int {
	if e.opts.ChunkSize > 0 && e.opts.ChunkSize < vmu.MaxChunkSize {
		return e.opts.ChunkSize
	}
	return vmu.MaxChunkSize
}

func (e *Engine) setResume(rp *vmu.ResumePoint) {
	s := e.sess
	if sameResume(s.resume, rp) {
		return
	}
	s.resume = rp
	if e.appm != nil {
		if rp == nil {
			e.appm.UpgradeResumePoint.Set(-1)
		} else {
			e.appm.UpgradeResumePoint.Set(float64(*rp))
		}
	}
	e.log.Info("upgrade phase", zap.String("session", s.id), zap.String("phase", vmu.Label(rp)))
	e.lis.OnPhaseChanged(rp)
}

func (e *Engine) ask(kind DecisionKind) {
	e.sess.awaiting = &kind
	if kind == DecisionBatteryLow {
		e.life.fire(evPause)
	} else {
		e.life.fire(evAsk)
	}
	e.log.Info("decision required", zap.String("session", e.sess.id), zap.Stringer("decision", kind))
	e.lis.OnDecisionRequired(kind)
}

func (e *Engine) resolve(kind DecisionKind, accept bool) {
	s := e.sess
	if s == nil || s.awaiting == nil || *s.awaiting != kind {
		e.log.Warn("no pending decision", zap.Stringer("decision", kind))
		return
	}
	s.awaiting = nil
	e.life.fire(evResolve)
	e.log.Info("decision resolved", zap.String("session", s.id), zap.Stringer("decision", kind), zap.Bool("accept", accept))

	switch kind {
	case DecisionTransferComplete:
		e.sendControl(vmu.ResponsePacket(vmu.OpTransferCompleteRes, accept))
		if !accept {
			e.declined()
		}
	case DecisionCommit:
		e.sendControl(vmu.ResponsePacket(vmu.OpCommitCfm, accept))
		if !accept {
			e.declined()
		}
	case DecisionEraseSQIF:
		e.sendControl(vmu.Encode(vmu.OpEraseSQIFCfm, []byte{vmu.EraseSQIFCfmPlaceholder}))
	case DecisionBatteryLow:
		if accept {
			e.sendSync()
		} else {
			e.abort(nil)
		}
	}
}

// declined 用户拒绝后，应答确认时断开升级通道
func (e *Engine) declined() {
	e.disconnectAfterAck = true
	e.finish(nil)
}

func (e *Engine) abortByUser() {
	if e.sess == nil || !e.life.active() {
		e.log.Debug("abort without active session")
		return
	}
	e.log.Info("abort requested", zap.String("session", e.sess.id))
	e.abort(nil)
}

// abort 发送 ABORT_REQ；通道未打开时直接结束会话
func (e *Engine) abort(cause *Error) {
	s := e.sess
	if s == nil {
		return
	}
	if !e.linkUp || !e.channelOpen || e.life.is(StateConnecting, StateReconnecting) {
		e.finish(cause)
		return
	}
	if e.life.is(StateAborting) {
		e.disconnectUpgrade()
		e.finish(cause)
		return
	}
	s.abortCause = cause
	s.restartAfterAbort = false
	s.awaiting = nil
	e.life.fire(evAbort)
	e.sendControl(vmu.Encode(vmu.OpAbortReq, nil))
}

// restartClean 中止后自动重新开始
func (e *Engine) restartClean(reason string) {
	s := e.sess
	if e.life.is(StateAborting) {
		e.log.Info("restart skipped, abort pending", zap.String("session", s.id), zap.String("reason", reason))
		return
	}
	e.log.Info("restarting upgrade", zap.String("session", s.id), zap.String("reason", reason))
	s.restartAfterAbort = true
	s.awaiting = nil
	e.life.fire(evAbort)
	e.sendControl(vmu.Encode(vmu.OpAbortReq, nil))
}

func (e *Engine) fail(err *Error) {
	e.report(err)
	e.finish(err)
}

// finish 销毁会话：cause 为 nil 时视为中止
func (e *Engine) finish(cause *Error) {
	if cause != nil {
		e.end(evFail)
		return
	}
	e.end(evCancel)
}

func (e *Engine) end(event string) {
	s := e.sess
	if s == nil {
		return
	}
	e.timers.cancelAll()
	e.life.fire(event)
	result := e.life.current()
	if e.appm != nil {
		e.appm.UpgradeSessions.WithLabelValues(result).Inc()
	}
	e.log.Info("upgrade finished",
		zap.String("session", s.id),
		zap.String("result", result),
		zap.Duration("elapsed", time.Since(s.startedAt)),
	)
	e.sess = nil
}

func (e *Engine) report(err *Error) {
	e.lastError = err
	if e.appm != nil {
		e.appm.UpgradeErrors.WithLabelValues(err.Kind.String()).Inc()
	}
	e.log.Warn("upgrade error", zap.Stringer("kind", err.Kind), zap.Error(err))
	e.lis.OnError(err)
}
