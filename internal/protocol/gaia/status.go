package gaia

import "fmt"

// Status 应答状态码（应答帧载荷首字节）
type Status uint8

const (
	StatusSuccess Status = iota
	StatusNotSupported
	StatusNotAuthenticated
	StatusInsufficientResources
	StatusAuthenticating
	StatusInvalidParameter
	StatusIncorrectState
	StatusInProgress
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNotSupported:
		return "not_supported"
	case StatusNotAuthenticated:
		return "not_authenticated"
	case StatusInsufficientResources:
		return "insufficient_resources"
	case StatusAuthenticating:
		return "authenticating"
	case StatusInvalidParameter:
		return "invalid_parameter"
	case StatusIncorrectState:
		return "incorrect_state"
	case StatusInProgress:
		return "in_progress"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// EventID 通知事件类型（事件通知帧载荷首字节）
type EventID uint8

const (
	EventStart EventID = iota
	EventRSSILowThreshold
	EventRSSIHighThreshold
	EventBatteryLowThreshold
	EventBatteryHighThreshold
	EventDeviceStateChanged
	EventPIOChanged
	EventDebugMessage
	EventBatteryCharged
	EventChargerConnection
	EventCapsenseUpdate
	EventUserAction
	EventSpeechRecognition
	EventAVCommand
	EventRemoteBatteryLevel
	EventKey
	EventDFUState
	EventUARTReceivedData
	EventVMUPacket
)

var eventNames = [...]string{
	"start", "rssi_low_threshold", "rssi_high_threshold", "battery_low_threshold",
	"battery_high_threshold", "device_state_changed", "pio_changed", "debug_message",
	"battery_charged", "charger_connection", "capsense_update", "user_action",
	"speech_recognition", "av_command", "remote_battery_level", "key", "dfu_state",
	"uart_received_data", "vmu_packet",
}

func (e EventID) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("unknown(%d)", uint8(e))
}

// Known 是否为已定义的事件类型
func (e EventID) Known() bool { return int(e) < len(eventNames) }

// HexCommand 格式化命令码
func HexCommand(cmd uint16) string { return fmt.Sprintf("0x%04X", cmd) }
