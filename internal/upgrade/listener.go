package upgrade

import (
	"time"

	"github.com/taoyao-code/gaia-upgrader/internal/protocol/vmu"
)

// DecisionKind 需要用户确认的节点
type DecisionKind int

const (
	DecisionTransferComplete DecisionKind = iota // 数据传输完成，是否继续安装
	DecisionCommit                               // 是否提交新固件
	DecisionEraseSQIF                            // 即将擦除 SQIF，仅需知悉
	DecisionBatteryLow                           // 设备电量低，充电后继续
)

func (d DecisionKind) String() string {
	switch d {
	case DecisionTransferComplete:
		return "transfer_complete"
	case DecisionCommit:
		return "commit"
	case DecisionEraseSQIF:
		return "erase_sqif"
	case DecisionBatteryLow:
		return "battery_low"
	default:
		return "unknown"
	}
}

// ParseDecision 解析决策名称
func ParseDecision(s string) (DecisionKind, bool) {
	for _, d := range []DecisionKind{DecisionTransferComplete, DecisionCommit, DecisionEraseSQIF, DecisionBatteryLow} {
		if d.String() == s {
			return d, true
		}
	}
	return 0, false
}

// Listener 升级进度回调，均在引擎循环 goroutine 中调用，不得阻塞
type Listener interface {
	OnProgress(percent float64, eta time.Duration)
	OnPhaseChanged(rp *vmu.ResumePoint)
	OnDecisionRequired(kind DecisionKind)
	OnError(err *Error)
	OnComplete()
}

// NopListener 忽略全部回调
type NopListener struct{}

func (NopListener) OnProgress(float64, time.Duration) {}
func (NopListener) OnPhaseChanged(*vmu.ResumePoint)   {}
func (NopListener) OnDecisionRequired(DecisionKind)   {}
func (NopListener) OnError(*Error)                    {}
func (NopListener) OnComplete()                       {}
