package vmu

import "fmt"

// ResumePoint 设备记录的升级断点
type ResumePoint uint8

const (
	ResumeDataTransfer ResumePoint = iota
	ResumeValidation
	ResumeTransferComplete
	ResumeInProgress
	ResumeCommit
)

// LabelInitialisation 尚无断点时的阶段名称
const LabelInitialisation = "Initialisation"

var resumeLabels = [...]string{
	"Data transfer",
	"Data validation",
	"Data transfer complete",
	"Update in progress",
	"Update commit",
}

// ParseResumePoint 未知取值返回 false
func ParseResumePoint(b byte) (ResumePoint, bool) {
	if int(b) >= len(resumeLabels) {
		return 0, false
	}
	return ResumePoint(b), true
}

func (r ResumePoint) String() string {
	if int(r) < len(resumeLabels) {
		return resumeLabels[r]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(r))
}

// Label 断点名称，nil 表示初始化阶段
func Label(r *ResumePoint) string {
	if r == nil {
		return LabelInitialisation
	}
	return r.String()
}
