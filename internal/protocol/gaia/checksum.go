package gaia

import "errors"

var (
	// ErrChecksumMismatch 校验失败
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// CalculateChecksum 计算GAIA校验字节：对帧内校验字节之前的所有字节做异或
func CalculateChecksum(data []byte) byte {
	var check byte
	for _, b := range data {
		check ^= b
	}
	return check
}

// VerifyChecksum 验证带校验字节的完整帧（最后一个字节为校验字节）
func VerifyChecksum(raw []byte) error {
	if len(raw) < 1 {
		return errors.New("data too short for checksum verification")
	}
	pos := len(raw) - 1
	if raw[pos] != CalculateChecksum(raw[:pos]) {
		return ErrChecksumMismatch
	}
	return nil
}
