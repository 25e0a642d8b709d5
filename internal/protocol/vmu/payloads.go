package vmu

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrBadLength = errors.New("bad payload length")
)

// DataBytesRequest UPDATE_DATA_BYTES_REQ：设备请求的数据长度与偏移增量
type DataBytesRequest struct {
	Length uint32
	Offset uint32
}

// ParseDataBytesRequest 载荷必须恰好8字节
func ParseDataBytesRequest(data []byte) (DataBytesRequest, error) {
	if len(data) != DataBytesReqLength {
		return DataBytesRequest{}, fmt.Errorf("%w: data bytes request has %d bytes", ErrBadLength, len(data))
	}
	return DataBytesRequest{
		Length: binary.BigEndian.Uint32(data[0:4]),
		Offset: binary.BigEndian.Uint32(data[4:8]),
	}, nil
}

// SyncConfirm UPDATE_SYNC_CFM
type SyncConfirm struct {
	ResumePoint     *ResumePoint // nil 表示未知或缺失
	InProgressID    []byte       // 设备当前升级的标识（可选，4字节）
	ProtocolVersion int          // 未携带时为 -1
}

// ParseSyncConfirm 空载荷视为无断点
func ParseSyncConfirm(data []byte) SyncConfirm {
	sc := SyncConfirm{ProtocolVersion: -1}
	if len(data) == 0 {
		return sc
	}
	if rp, ok := ParseResumePoint(data[0]); ok {
		sc.ResumePoint = &rp
	}
	if len(data) >= 1+SyncReqLength {
		sc.InProgressID = append([]byte(nil), data[1:1+SyncReqLength]...)
	}
	if len(data) >= 2+SyncReqLength {
		sc.ProtocolVersion = int(data[1+SyncReqLength])
	}
	return sc
}

// IDDiffers 设备标识非全零且与本次发送的不一致
func (sc SyncConfirm) IDDiffers(sent []byte) bool {
	if len(sc.InProgressID) != SyncReqLength || len(sent) != SyncReqLength {
		return false
	}
	zero := true
	for _, b := range sc.InProgressID {
		if b != 0 {
			zero = false
			break
		}
	}
	if zero {
		return false
	}
	for i := range sent {
		if sent[i] != sc.InProgressID[i] {
			return true
		}
	}
	return false
}

// ParseErrorCode UPDATE_ERROR_WARN_IND 中的返回码；不足2字节时 ok=false
func ParseErrorCode(data []byte) (ReturnCode, bool) {
	if len(data) < ErrorWarnResLength {
		if len(data) == 1 {
			return ReturnCode(data[0]), false
		}
		return 0, false
	}
	return ReturnCode(binary.BigEndian.Uint16(data[:2])), true
}

// SyncRequest 取MD5末4字节构造 SYNC_REQ 数据
func SyncRequest(md5sum []byte) []byte {
	if len(md5sum) < SyncReqLength {
		out := make([]byte, SyncReqLength)
		copy(out[SyncReqLength-len(md5sum):], md5sum)
		return out
	}
	return append([]byte(nil), md5sum[len(md5sum)-SyncReqLength:]...)
}

// DataPacket 构造 UPDATE_DATA：首字节为末包标记
func DataPacket(last bool, chunk []byte) []byte {
	data := make([]byte, 1+len(chunk))
	if last {
		data[0] = DataLastPacket
	}
	copy(data[1:], chunk)
	return Encode(OpData, data)
}

// ResponsePacket 构造带 continue/abort 字节的应答
func ResponsePacket(op OpCode, proceed bool) []byte {
	v := byte(ResponseAbort)
	if proceed {
		v = ResponseContinue
	}
	return Encode(op, []byte{v})
}

// ErrorWarnResponse 回显返回码
func ErrorWarnResponse(code ReturnCode) []byte {
	data := make([]byte, ErrorWarnResLength)
	binary.BigEndian.PutUint16(data, uint16(code))
	return Encode(OpErrorWarnRes, data)
}
