package gaia

import "errors"

var (
	// ErrPayloadTooLong 载荷超过 MaxPayload
	ErrPayloadTooLong = errors.New("payload too long")
)

// Encode 构造GAIA帧
// flags 含 FlagCheck 时在帧尾追加异或校验字节
func Encode(vendorID, commandID uint16, payload []byte, flags uint8) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, ErrPayloadTooLong
	}
	useCheck := flags&FlagCheck != 0
	total := HeaderSize + len(payload)
	if useCheck {
		total++
	}

	buf := make([]byte, 0, total)
	buf = append(buf, SOF, ProtocolVersion, flags, byte(len(payload)))
	buf = append(buf, byte(vendorID>>8), byte(vendorID))
	buf = append(buf, byte(commandID>>8), byte(commandID))
	buf = append(buf, payload...)

	if useCheck {
		buf = append(buf, CalculateChecksum(buf))
	}
	return buf, nil
}

// EncodeAck 构造应答帧：命令码置应答位，载荷首字节为状态码
func EncodeAck(vendorID, commandID uint16, status Status, flags uint8, params ...byte) ([]byte, error) {
	payload := make([]byte, 0, len(params)+1)
	payload = append(payload, byte(status))
	payload = append(payload, params...)
	return Encode(vendorID, commandID|AckMask, payload, flags)
}
