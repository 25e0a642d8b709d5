package vmu

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ReturnCode 设备在 UPDATE_ERROR_WARN_IND 中上报的返回码
type ReturnCode uint16

const (
	CodeUnknownID                        ReturnCode = 0x11
	CodeBadLengthDeprecated              ReturnCode = 0x12
	CodeWrongVariant                     ReturnCode = 0x13
	CodeWrongPartitionNumber             ReturnCode = 0x14
	CodePartitionSizeMismatch            ReturnCode = 0x15
	CodePartitionTypeNotFound            ReturnCode = 0x16
	CodePartitionOpenFailed              ReturnCode = 0x17
	CodePartitionWriteFailed             ReturnCode = 0x18
	CodePartitionCloseFailed1            ReturnCode = 0x19
	CodeSFSValidationFailed              ReturnCode = 0x1A
	CodeOEMValidationFailed              ReturnCode = 0x1B
	CodeUpdateFailed                     ReturnCode = 0x1C
	CodeAppNotReady                      ReturnCode = 0x1D
	CodeLoaderError                      ReturnCode = 0x1E
	CodeUnexpectedLoaderMsg              ReturnCode = 0x1F
	CodeMissingLoaderMsg                 ReturnCode = 0x20
	CodeBatteryLow                       ReturnCode = 0x21
	CodeBadLengthPartitionParse          ReturnCode = 0x38
	CodeBadLengthTooShort                ReturnCode = 0x39
	CodeBadLengthUpgradeHeader           ReturnCode = 0x3A
	CodeBadLengthPartitionHeader         ReturnCode = 0x3B
	CodeBadLengthSignature               ReturnCode = 0x3C
	CodeBadLengthDataHdrResume           ReturnCode = 0x3D
	CodePartitionCloseFailed2            ReturnCode = 0x40
	CodePartitionCloseFailedHeader       ReturnCode = 0x41
	CodePartitionTypeNotMatching         ReturnCode = 0x48
	CodePartitionTypeTwoDFU              ReturnCode = 0x49
	CodePartitionWriteFailedHeader       ReturnCode = 0x50
	CodePartitionWriteFailedData         ReturnCode = 0x51
	CodeInternalError1                   ReturnCode = 0x65
	CodeInternalError2                   ReturnCode = 0x66
	CodeInternalError3                   ReturnCode = 0x67
	CodeInternalError4                   ReturnCode = 0x68
	CodeInternalError5                   ReturnCode = 0x69
	CodeInternalError6                   ReturnCode = 0x6A
	CodeInternalError7                   ReturnCode = 0x6B
	CodeWarnAppConfigVersionIncompatible ReturnCode = 0x80
	CodeWarnSyncIDIsDifferent            ReturnCode = 0x81
)

// Severity 返回码处理方式
type Severity int

const (
	SeverityFatal      Severity = iota // 回显 ERROR_WARN_RES 后断开
	SeverityRestart                    // 静默重新开始
	SeverityBatteryLow                 // 暂停并等待用户确认
)

func (s Severity) String() string {
	switch s {
	case SeverityRestart:
		return "restart"
	case SeverityBatteryLow:
		return "battery_low"
	default:
		return "fatal"
	}
}

// Classify 仅两个可恢复的返回码，其余一律致命
func (c ReturnCode) Classify() Severity {
	switch c {
	case CodeWarnSyncIDIsDifferent:
		return SeverityRestart
	case CodeBatteryLow:
		return SeverityBatteryLow
	default:
		return SeverityFatal
	}
}

func (c ReturnCode) String() string { return fmt.Sprintf("0x%04X", uint16(c)) }

// CodeMessages 返回码 -> 文本
type CodeMessages struct {
	Messages map[uint16]string `yaml:"messages"`
}

// DefaultCodeMessages 返回内置的返回码文本
func DefaultCodeMessages() *CodeMessages {
	return &CodeMessages{
		Messages: map[uint16]string{
			0x11: "Error: unknown ID",
			0x12: "Deprecated error: bad length",
			0x13: "Error: wrong variant",
			0x14: "Error: wrong partition number",
			0x15: "Error: partition size mismatch",
			0x16: "Error: partition type not found",
			0x17: "Error: partition open failed",
			0x18: "Error: partition write failed",
			0x19: "Partition close failed type 1",
			0x1A: "Error: SFS validation failed",
			0x1B: "Error: OEM validation failed",
			0x1C: "Error: update failed",
			0x1D: "Error: application not ready",
			0x1E: "Error: loader error",
			0x1F: "Error: unexpected loader message",
			0x20: "Error: missing loader message",
			0x21: "Error: battery low",
			0x38: "Error: bad length partition parse",
			0x39: "Error: bad length too short",
			0x3A: "Error: bad length upgrade header",
			0x3B: "Error: bad length partition header",
			0x3C: "Error: bad length signature",
			0x3D: "Error: bad length data handler resume",
			0x40: "Error: partition close failed type 2",
			0x41: "Error: partition close failed header",
			0x48: "Error: partition type not matching",
			0x49: "Error: partition type two DFU",
			0x50: "Error: partition write failed header",
			0x51: "Error: partition write failed data",
			0x65: "Error: internal error 1",
			0x66: "Error: internal error 2",
			0x67: "Error: internal error 3",
			0x68: "Error: internal error 4",
			0x69: "Error: internal error 5",
			0x6A: "Error: internal error 6",
			0x6B: "Error: internal error 7",
			0x80: "Warning: application configuration version incompatible",
			0x81: "Warning: sync id is different",
		},
	}
}

// LoadCodeMessages 从YAML加载返回码文本，覆盖内置表中的同名项
func LoadCodeMessages(path string) (*CodeMessages, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read code messages: %w", err)
	}
	var m CodeMessages
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal code messages: %w", err)
	}
	out := DefaultCodeMessages()
	out.Merge(&m)
	return out, nil
}

// Message 未知返回码返回空串
func (m *CodeMessages) Message(code ReturnCode) string {
	if m == nil || m.Messages == nil {
		return ""
	}
	return m.Messages[uint16(code)]
}

// Merge 合并另一张表
func (m *CodeMessages) Merge(other *CodeMessages) {
	if m == nil || m.Messages == nil || other == nil {
		return
	}
	for k, v := range other.Messages {
		m.Messages[k] = v
	}
}
