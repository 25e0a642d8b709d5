package gaia

import (
	"errors"
	"fmt"
)

var (
	ErrShort        = errors.New("short packet")
	ErrFrameTooLong = errors.New("frame too long")
)

// Decode 解析一个完整GAIA帧
// 帧头字段越界时按0填充并标记 Truncated；不足以读取 flags 时返回 ErrShort
func Decode(b []byte) (*Frame, error) {
	if len(b) <= offsetFlags {
		return nil, ErrShort
	}
	f := &Frame{Version: b[offsetVersion], Flags: b[offsetFlags]}

	payloadLen := len(b) - offsetPayload
	if f.HasChecksum() {
		payloadLen--
		f.Checksum = b[len(b)-1]
	}

	var ok1, ok2 bool
	f.VendorID, ok1 = uint16At(b, offsetVendorID)
	f.CommandID, ok2 = uint16At(b, offsetCommandID)
	f.Truncated = !ok1 || !ok2

	if payloadLen > 0 {
		f.Payload = make([]byte, payloadLen)
		copy(f.Payload, b[offsetPayload:offsetPayload+payloadLen])
	}
	return f, nil
}

func uint16At(b []byte, off int) (uint16, bool) {
	if off+2 > len(b) {
		return 0, false
	}
	return uint16(b[off])<<8 | uint16(b[off+1]), true
}

type decoderState int

const (
	stateSeeking decoderState = iota // 寻找 SOF
	stateHeader                      // 累积帧头
	statePayload                     // 已知长度，累积载荷
)

// StreamDecoder 流式解码：按 SOF + 长度字节切分帧，处理半包/粘包
// SOF 不转义：帧内出现 0xFF 视为普通数据
type StreamDecoder struct {
	buf      [MaxPacket]byte
	n        int
	flags    byte
	expected int
	state    decoderState
}

func NewStreamDecoder() *StreamDecoder { return &StreamDecoder{} }

// Feed 输入原始字节，返回本次完整的帧
// 校验失败或超长的候选帧被丢弃，错误合并返回，已解出的帧不受影响
func (d *StreamDecoder) Feed(p []byte) ([]*Frame, error) {
	var out []*Frame
	var errs []error
	for _, c := range p {
		if d.state == stateSeeking {
			if c == SOF {
				d.buf[0] = c
				d.n = 1
				d.state = stateHeader
			}
			continue
		}

		d.buf[d.n] = c
		switch d.n {
		case offsetFlags:
			d.flags = c
		case offsetLength:
			if int(c) > MaxPayload {
				errs = append(errs, fmt.Errorf("%w: payload length %d", ErrFrameTooLong, c))
				d.Reset()
				continue
			}
			d.expected = int(c) + HeaderSize
			if d.flags&FlagCheck != 0 {
				d.expected++
			}
			d.state = statePayload
		}
		d.n++

		if d.state == statePayload && d.n == d.expected {
			raw := d.buf[:d.n]
			if d.flags&FlagCheck != 0 {
				if err := VerifyChecksum(raw); err != nil {
					errs = append(errs, fmt.Errorf("command 0x%02X%02X: %w", raw[offsetCommandID], raw[offsetCommandID+1], err))
					d.Reset()
					continue
				}
			}
			fr, err := Decode(raw)
			if err != nil {
				errs = append(errs, err)
			} else {
				out = append(out, fr)
			}
			d.Reset()
		}
	}
	return out, errors.Join(errs...)
}

// Reset 丢弃当前候选帧，回到寻找 SOF 状态
func (d *StreamDecoder) Reset() {
	d.n = 0
	d.flags = 0
	d.expected = 0
	d.state = stateSeeking
}

// Pending 当前候选帧已累积的字节数
func (d *StreamDecoder) Pending() int { return d.n }
