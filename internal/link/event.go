package link

import "github.com/taoyao-code/gaia-upgrader/internal/protocol/gaia"

// EventKind 链路事件类型
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventFrame
	EventError
	EventStreamProgress
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventFrame:
		return "frame"
	case EventError:
		return "error"
	case EventStreamProgress:
		return "stream_progress"
	default:
		return "unknown"
	}
}

// Event 链路事件，按 Kind 取对应字段
type Event struct {
	Kind  EventKind
	Frame *gaia.Frame // EventFrame
	Err   *Error      // EventError；EventDisconnected 时为断开原因（可能为 nil）
	Bytes int         // EventStreamProgress：本次写出的原始字节数
}
