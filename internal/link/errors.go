package link

import (
	"fmt"

	"github.com/taoyao-code/gaia-upgrader/internal/protocol/gaia"
)

// ErrorKind 链路错误分类
type ErrorKind int

const (
	ErrorConnectionFailed ErrorKind = iota
	ErrorAlreadyConnected
	ErrorNotConnected
	ErrorSendFailed
	ErrorFraming
	ErrorTransport
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorConnectionFailed:
		return "connection_failed"
	case ErrorAlreadyConnected:
		return "already_connected"
	case ErrorNotConnected:
		return "not_connected"
	case ErrorSendFailed:
		return "send_failed"
	case ErrorFraming:
		return "framing"
	case ErrorTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// NoCommand 错误与具体命令无关
const NoCommand = -1

// Error 链路错误
type Error struct {
	Kind    ErrorKind
	Command int // 命令码，未知时为 NoCommand
	Err     error
}

func (e *Error) Error() string {
	if e.Command != NoCommand {
		if e.Err != nil {
			return fmt.Sprintf("gaia %s (%s): %v", e.Kind, gaia.CommandName(uint16(e.Command)), e.Err)
		}
		return fmt.Sprintf("gaia %s (%s)", e.Kind, gaia.CommandName(uint16(e.Command)))
	}
	if e.Err != nil {
		return fmt.Sprintf("gaia %s: %v", e.Kind, e.Err)
	}
	return "gaia " + e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, cmd int, err error) *Error {
	return &Error{Kind: kind, Command: cmd, Err: err}
}
