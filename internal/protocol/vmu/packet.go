package vmu

import (
	"encoding/binary"
	"fmt"

	"github.com/taoyao-code/gaia-upgrader/internal/protocol/gaia"
)

// 升级包格式：opcode(1) + length(2, 大端) + data(length)
const (
	HeaderSize = 3

	// MaxDataLength 单个升级包可承载的最大数据长度
	MaxDataLength = gaia.MaxPayload - HeaderSize
	// MaxChunkSize UPDATE_DATA 中固件块最大长度，首字节为末包标记
	MaxChunkSize = MaxDataLength - 1

	// InvalidOpCode 解析失败时的哨兵操作码
	InvalidOpCode = -1
)

// Packet 升级协议包
type Packet struct {
	OpCode int // 解析失败时为 InvalidOpCode
	Length uint16
	Data   []byte
}

// Valid 是否为成功解析的包
func (p Packet) Valid() bool { return p.OpCode != InvalidOpCode }

// Op 有效包的操作码
func (p Packet) Op() OpCode { return OpCode(p.OpCode) }

func (p Packet) String() string {
	if !p.Valid() {
		return "UPDATE_INVALID"
	}
	return fmt.Sprintf("%s len=%d", p.Op(), p.Length)
}

// Encode 构造升级包
func Encode(op OpCode, data []byte) []byte {
	buf := make([]byte, HeaderSize+len(data))
	buf[0] = byte(op)
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(data)))
	copy(buf[HeaderSize:], data)
	return buf
}

// Decode 解析升级包；长度不足或长度字段越界时返回哨兵包
func Decode(b []byte) Packet {
	if len(b) < HeaderSize {
		return Packet{OpCode: InvalidOpCode}
	}
	n := binary.BigEndian.Uint16(b[1:3])
	if int(n) > len(b)-HeaderSize {
		return Packet{OpCode: InvalidOpCode, Length: n}
	}
	p := Packet{OpCode: int(b[0]), Length: n}
	if n > 0 {
		p.Data = make([]byte, n)
		copy(p.Data, b[HeaderSize:HeaderSize+int(n)])
	}
	return p
}

// FromEvent 从 VMU_PACKET 事件通知帧中提取升级包（去掉事件ID字节）
func FromEvent(f *gaia.Frame) (Packet, bool) {
	ev, ok := f.Event()
	if !ok || ev != gaia.EventVMUPacket {
		return Packet{OpCode: InvalidOpCode}, false
	}
	return Decode(f.Payload[1:]), true
}
