package gaia

import "encoding/binary"

// Frame GAIA 协议帧
type Frame struct {
	Version   uint8
	Flags     uint8
	VendorID  uint16
	CommandID uint16 // 含应答位
	Payload   []byte
	Checksum  uint8 // 仅当 Flags&FlagCheck 时有效

	// Truncated 帧头字段不完整，VendorID/CommandID 按0填充
	Truncated bool
}

// HasChecksum 是否携带校验字节
func (f *Frame) HasChecksum() bool { return f.Flags&FlagCheck != 0 }

// Command 去掉应答位后的命令码
func (f *Frame) Command() uint16 { return f.CommandID & CommandMask }

// IsAck 判断是否为应答帧
func (f *Frame) IsAck() bool { return f.CommandID&AckMask != 0 }

// IsKnownCommand 厂商为CSR且命令码匹配
func (f *Frame) IsKnownCommand(cmd uint16) bool {
	return f.VendorID == VendorCSR && f.Command() == cmd
}

// Status 应答帧的状态码；非应答帧或空载荷返回 false
func (f *Frame) Status() (Status, bool) {
	if !f.IsAck() || len(f.Payload) == 0 {
		return 0, false
	}
	return Status(f.Payload[0]), true
}

// Event 事件通知帧的事件类型；其它帧返回 false
func (f *Frame) Event() (EventID, bool) {
	if len(f.Payload) == 0 || !f.IsKnownCommand(CommandEventNotification) {
		return 0, false
	}
	return EventID(f.Payload[0]), true
}

// Uint8 读取载荷中 off 处的字节，越界时返回 (0, false)
func (f *Frame) Uint8(off int) (uint8, bool) {
	if off < 0 || off >= len(f.Payload) {
		return 0, false
	}
	return f.Payload[off], true
}

// Uint16 读取大端16位字段，越界时返回 (0, false)
func (f *Frame) Uint16(off int) (uint16, bool) {
	if off < 0 || off+2 > len(f.Payload) {
		return 0, false
	}
	return binary.BigEndian.Uint16(f.Payload[off:]), true
}

// Uint32 读取大端32位字段，越界时返回 (0, false)
func (f *Frame) Uint32(off int) (uint32, bool) {
	if off < 0 || off+4 > len(f.Payload) {
		return 0, false
	}
	return binary.BigEndian.Uint32(f.Payload[off:]), true
}

// Encode 将帧编码为字节数组
func (f *Frame) Encode() ([]byte, error) {
	return Encode(f.VendorID, f.CommandID, f.Payload, f.Flags)
}
