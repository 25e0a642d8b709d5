package upgrade

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// 会话生命周期状态
const (
	StateIdle             = "idle"
	StateConnecting       = "connecting"        // 建立传输或升级通道
	StateRunning          = "running"           // 升级协议交互中
	StateAwaitingDecision = "awaiting_decision" // 等待用户确认
	StatePaused           = "paused"            // 电量低暂停
	StateReconnecting     = "reconnecting"      // 传输断开，按策略重连
	StateAborting         = "aborting"          // 已发送 ABORT_REQ
	StateComplete         = "complete"
	StateAborted          = "aborted"
	StateFailed           = "failed"
)

// 生命周期事件
const (
	evStart       = "start"
	evChannelOpen = "channel_open"
	evAsk         = "ask"
	evPause       = "pause"
	evResolve     = "resolve"
	evDrop        = "drop"
	evReconnected = "reconnected"
	evAbort       = "abort"
	evRestart     = "restart"
	evComplete    = "complete"
	evCancel      = "cancel"
	evFail        = "fail"
)

var (
	terminalStates = []string{StateIdle, StateComplete, StateAborted, StateFailed}
	activeStates   = []string{StateConnecting, StateRunning, StateAwaitingDecision, StatePaused, StateReconnecting, StateAborting}
)

// lifecycle 基于 looplab/fsm 的会话状态机，仅由引擎循环驱动
type lifecycle struct {
	f   *fsm.FSM
	log *zap.Logger
}

func newLifecycle(log *zap.Logger) *lifecycle {
	l := &lifecycle{log: log}
	l.f = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: evStart, Src: terminalStates, Dst: StateConnecting},
			{Name: evChannelOpen, Src: []string{StateConnecting}, Dst: StateRunning},
			{Name: evAsk, Src: []string{StateRunning}, Dst: StateAwaitingDecision},
			{Name: evPause, Src: []string{StateRunning, StateAwaitingDecision}, Dst: StatePaused},
			{Name: evResolve, Src: []string{StateAwaitingDecision, StatePaused}, Dst: StateRunning},
			{Name: evDrop, Src: []string{StateConnecting, StateRunning, StateAwaitingDecision, StatePaused, StateAborting}, Dst: StateReconnecting},
			{Name: evReconnected, Src: []string{StateReconnecting}, Dst: StateConnecting},
			{Name: evAbort, Src: []string{StateRunning, StateAwaitingDecision, StatePaused}, Dst: StateAborting},
			{Name: evRestart, Src: []string{StateAborting}, Dst: StateRunning},
			{Name: evComplete, Src: []string{StateRunning, StateAwaitingDecision}, Dst: StateComplete},
			{Name: evCancel, Src: activeStates, Dst: StateAborted},
			{Name: evFail, Src: activeStates, Dst: StateFailed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debug("session state", zap.String("event", e.Event), zap.String("from", e.Src), zap.String("to", e.Dst))
			},
		},
	)
	return l
}

// fire 触发事件；当前状态不允许时返回 false
func (l *lifecycle) fire(name string) bool {
	err := l.f.Event(context.Background(), name)
	if err == nil {
		return true
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return true
	}
	l.log.Debug("session event rejected", zap.String("event", name), zap.String("state", l.f.Current()), zap.Error(err))
	return false
}

func (l *lifecycle) current() string { return l.f.Current() }

func (l *lifecycle) is(states ...string) bool {
	cur := l.f.Current()
	for _, s := range states {
		if s == cur {
			return true
		}
	}
	return false
}

// active 会话存在且未结束
func (l *lifecycle) active() bool { return l.is(activeStates...) }
