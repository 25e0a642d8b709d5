package app

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/taoyao-code/gaia-upgrader/internal/protocol/vmu"
	"github.com/taoyao-code/gaia-upgrader/internal/upgrade"
)

// ResolveFunc 回复决策，通常为 (*upgrade.Engine).Resolve
type ResolveFunc func(kind upgrade.DecisionKind, accept bool)

// ConsoleOptions 终端监听器参数
type ConsoleOptions struct {
	Out         io.Writer
	In          io.Reader // AutoConfirm 为 false 时从此读取 y/n
	AutoConfirm bool
	RetryDelay  time.Duration // 自动确认电量低时的等待
	Logger      *zap.Logger
}

// ConsoleListener 终端进度条，并在终端确认决策
type ConsoleListener struct {
	opts ConsoleOptions
	log  *zap.Logger
	bar  *progressbar.ProgressBar

	mu      sync.Mutex
	resolve ResolveFunc
	in      *bufio.Reader
}

func NewConsoleListener(opts ConsoleOptions) *ConsoleListener {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	l := &ConsoleListener{opts: opts, log: log}
	l.bar = progressbar.NewOptions(100,
		progressbar.OptionSetWriter(opts.Out),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(vmu.LabelInitialisation),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(opts.Out) }),
	)
	if opts.In != nil {
		l.in = bufio.NewReader(opts.In)
	}
	return l
}

// Bind 设置决策回复函数，需在引擎启动前调用
func (l *ConsoleListener) Bind(fn ResolveFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resolve = fn
}

func (l *ConsoleListener) OnProgress(percent float64, eta time.Duration) {
	_ = l.bar.Set(int(percent))
	if eta > 0 {
		l.bar.Describe(fmt.Sprintf("%s (eta %s)", vmu.ResumeDataTransfer, eta.Round(time.Second)))
	}
}

func (l *ConsoleListener) OnPhaseChanged(rp *vmu.ResumePoint) {
	l.bar.Describe(vmu.Label(rp))
}

func (l *ConsoleListener) OnDecisionRequired(kind upgrade.DecisionKind) {
	l.mu.Lock()
	resolve := l.resolve
	l.mu.Unlock()
	if resolve == nil {
		return
	}

	if l.opts.AutoConfirm {
		if kind == upgrade.DecisionBatteryLow {
			// 等待设备充电后重新同步
			time.AfterFunc(l.opts.RetryDelay, func() { resolve(kind, true) })
			return
		}
		l.log.Info("decision confirmed automatically", zap.Stringer("decision", kind))
		resolve(kind, true)
		return
	}
	if l.in == nil {
		l.log.Info("decision required, answer via POST /api/upgrade/decision", zap.Stringer("decision", kind))
		return
	}
	go l.prompt(kind, resolve)
}

func (l *ConsoleListener) prompt(kind upgrade.DecisionKind, resolve ResolveFunc) {
	fmt.Fprintf(l.opts.Out, "\n%s [y/N]: ", question(kind))
	line, err := l.in.ReadString('\n')
	if err != nil && line == "" {
		l.log.Warn("read decision failed", zap.Error(err))
		return
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	resolve(kind, answer == "y" || answer == "yes")
}

func question(kind upgrade.DecisionKind) string {
	switch kind {
	case upgrade.DecisionTransferComplete:
		return "File transfer complete, proceed with the upgrade?"
	case upgrade.DecisionCommit:
		return "Commit the new firmware?"
	case upgrade.DecisionEraseSQIF:
		return "The device will erase its SQIF partition, continue?"
	case upgrade.DecisionBatteryLow:
		return "Device battery is low, charge it and continue?"
	default:
		return kind.String()
	}
}

func (l *ConsoleListener) OnError(err *upgrade.Error) {
	l.log.Warn("upgrade error", zap.Stringer("kind", err.Kind), zap.String("message", err.Message))
}

func (l *ConsoleListener) OnComplete() {
	_ = l.bar.Finish()
	fmt.Fprintln(l.opts.Out, "Upgrade complete")
}
