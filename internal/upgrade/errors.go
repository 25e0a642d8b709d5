package upgrade

import (
	"errors"
	"fmt"
	"strings"

	"github.com/taoyao-code/gaia-upgrader/internal/protocol/gaia"
	"github.com/taoyao-code/gaia-upgrader/internal/protocol/vmu"
)

var (
	ErrEmptyImage    = errors.New("firmware image is empty")
	ErrBadChecksum   = errors.New("checksum must be a 16-byte MD5 digest")
	ErrSessionActive = errors.New("an upgrade session is already active")
)

// ErrorKind 升级错误分类
type ErrorKind int

const (
	KindFraming ErrorKind = iota
	KindTransport
	KindConnectionFailed
	KindDeviceFatal
	KindDeviceWarning
	KindDesync
	KindStartFailed
	KindCommandFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindFraming:
		return "framing"
	case KindTransport:
		return "transport"
	case KindConnectionFailed:
		return "connection_failed"
	case KindDeviceFatal:
		return "device_fatal"
	case KindDeviceWarning:
		return "device_warning"
	case KindDesync:
		return "desync"
	case KindStartFailed:
		return "start_failed"
	case KindCommandFailed:
		return "command_failed"
	default:
		return "unknown"
	}
}

// Unknown 未知的返回码、操作码或命令码
const Unknown = -1

// Error 上报给监听者的升级错误
type Error struct {
	Kind    ErrorKind
	Code    int // 设备返回码
	OpCode  int // 升级操作码
	Command int // GAIA 命令码
	Message string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("upgrade ")
	b.WriteString(e.Kind.String())
	if e.OpCode != Unknown {
		fmt.Fprintf(&b, " op=%s", vmu.OpCode(e.OpCode))
	}
	if e.Command != Unknown {
		fmt.Fprintf(&b, " cmd=%s", gaia.CommandName(uint16(e.Command)))
	}
	if e.Code != Unknown {
		fmt.Fprintf(&b, " code=0x%04X", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func commandError(kind ErrorKind, cmd uint16, msg string) *Error {
	return &Error{Kind: kind, Code: Unknown, OpCode: Unknown, Command: int(cmd), Message: msg}
}

func plainError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Code: Unknown, OpCode: Unknown, Command: Unknown, Message: msg}
}
