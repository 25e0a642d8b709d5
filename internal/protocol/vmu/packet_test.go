package vmu

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/gaia-upgrader/internal/protocol/gaia"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		op   OpCode
		data []byte
	}{
		{name: "无数据", op: OpStartReq, data: nil},
		{name: "同步请求", op: OpSyncReq, data: []byte{0xDE, 0xAD, 0xBE, 0xEF}},
		{name: "最大数据", op: OpData, data: bytes.Repeat([]byte{0x5A}, MaxDataLength)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := Encode(tt.op, tt.data)
			require.Len(t, raw, HeaderSize+len(tt.data))
			p := Decode(raw)
			require.True(t, p.Valid())
			assert.Equal(t, tt.op, p.Op())
			assert.Equal(t, uint16(len(tt.data)), p.Length)
			assert.Equal(t, len(tt.data), len(p.Data))
			if len(tt.data) > 0 {
				assert.Equal(t, tt.data, p.Data)
			}
		})
	}
}

func TestDecode_Invalid(t *testing.T) {
	t.Run("长度不足", func(t *testing.T) {
		p := Decode([]byte{0x03, 0x00})
		assert.False(t, p.Valid())
		assert.Equal(t, InvalidOpCode, p.OpCode)
	})

	t.Run("长度字段越界", func(t *testing.T) {
		p := Decode([]byte{0x03, 0x00, 0x08, 0x00})
		assert.False(t, p.Valid())
		assert.Equal(t, "UPDATE_INVALID", p.String())
	})

	t.Run("多余字节忽略", func(t *testing.T) {
		p := Decode([]byte{0x02, 0x00, 0x01, 0x00, 0xEE})
		require.True(t, p.Valid())
		assert.Equal(t, []byte{0x00}, p.Data)
	})
}

func TestFromEvent(t *testing.T) {
	inner := Encode(OpSyncCfm, []byte{byte(ResumeValidation)})
	raw, err := gaia.Encode(gaia.VendorCSR, gaia.CommandEventNotification, append([]byte{byte(gaia.EventVMUPacket)}, inner...), gaia.DefaultFlags)
	require.NoError(t, err)
	fr, err := gaia.Decode(raw)
	require.NoError(t, err)

	p, ok := FromEvent(fr)
	require.True(t, ok)
	assert.Equal(t, OpSyncCfm, p.Op())

	other := &gaia.Frame{VendorID: gaia.VendorCSR, CommandID: gaia.CommandEventNotification, Payload: []byte{byte(gaia.EventBatteryCharged)}}
	_, ok = FromEvent(other)
	assert.False(t, ok)
}

func TestChunkSizes(t *testing.T) {
	assert.Equal(t, 251, MaxDataLength)
	assert.Equal(t, 250, MaxChunkSize)
	// 最大块加上标记与包头正好填满一个GAIA载荷
	assert.Len(t, DataPacket(true, make([]byte, MaxChunkSize)), gaia.MaxPayload)
}

func TestResumePoint(t *testing.T) {
	rp, ok := ParseResumePoint(0x04)
	require.True(t, ok)
	assert.Equal(t, ResumeCommit, rp)
	assert.Equal(t, "Update commit", Label(&rp))
	assert.Equal(t, "Initialisation", Label(nil))

	_, ok = ParseResumePoint(0x05)
	assert.False(t, ok)
}

func TestParseDataBytesRequest(t *testing.T) {
	req, err := ParseDataBytesRequest([]byte{0x00, 0x00, 0x00, 0x64, 0x00, 0x00, 0x01, 0x00})
	require.NoError(t, err)
	assert.Equal(t, uint32(100), req.Length)
	assert.Equal(t, uint32(256), req.Offset)

	_, err = ParseDataBytesRequest([]byte{0x00, 0x00, 0x00, 0x64})
	assert.ErrorIs(t, err, ErrBadLength)
}

func TestParseSyncConfirm(t *testing.T) {
	t.Run("空载荷", func(t *testing.T) {
		sc := ParseSyncConfirm(nil)
		assert.Nil(t, sc.ResumePoint)
		assert.Equal(t, -1, sc.ProtocolVersion)
	})

	t.Run("完整载荷", func(t *testing.T) {
		sc := ParseSyncConfirm([]byte{0x02, 0x01, 0x02, 0x03, 0x04, 0x03})
		require.NotNil(t, sc.ResumePoint)
		assert.Equal(t, ResumeTransferComplete, *sc.ResumePoint)
		assert.Equal(t, 3, sc.ProtocolVersion)
		assert.False(t, sc.IDDiffers([]byte{0x01, 0x02, 0x03, 0x04}))
		assert.True(t, sc.IDDiffers([]byte{0x01, 0x02, 0x03, 0x05}))
	})

	t.Run("全零标识不视为不同", func(t *testing.T) {
		sc := ParseSyncConfirm([]byte{0x00, 0x00, 0x00, 0x00, 0x00})
		assert.False(t, sc.IDDiffers([]byte{0x01, 0x02, 0x03, 0x04}))
	})
}

func TestPayloadBuilders(t *testing.T) {
	assert.Equal(t, []byte{0x0A, 0x0B, 0x0C, 0x0D}, SyncRequest([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 0x0A, 0x0B, 0x0C, 0x0D}))
	assert.Equal(t, []byte{0x04, 0x00, 0x03, 0x00, 0xAA, 0xBB}, DataPacket(false, []byte{0xAA, 0xBB}))
	assert.Equal(t, []byte{0x04, 0x00, 0x02, 0x01, 0xAA}, DataPacket(true, []byte{0xAA}))
	assert.Equal(t, []byte{0x10, 0x00, 0x01, 0x01}, ResponsePacket(OpCommitCfm, false))
	assert.Equal(t, []byte{0x0C, 0x00, 0x01, 0x00}, ResponsePacket(OpTransferCompleteRes, true))
	assert.Equal(t, []byte{0x1F, 0x00, 0x02, 0x00, 0x42}, ErrorWarnResponse(0x42))
}

func TestReturnCodes(t *testing.T) {
	tests := []struct {
		name     string
		code     ReturnCode
		severity Severity
	}{
		{name: "同步ID不同", code: CodeWarnSyncIDIsDifferent, severity: SeverityRestart},
		{name: "电量低", code: CodeBatteryLow, severity: SeverityBatteryLow},
		{name: "配置版本不兼容", code: CodeWarnAppConfigVersionIncompatible, severity: SeverityFatal},
		{name: "未知码", code: 0x42, severity: SeverityFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.severity, tt.code.Classify())
		})
	}

	code, ok := ParseErrorCode([]byte{0x00, 0x21})
	require.True(t, ok)
	assert.Equal(t, CodeBatteryLow, code)
	_, ok = ParseErrorCode([]byte{0x21})
	assert.False(t, ok)
}

func TestLoadCodeMessages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("messages:\n  0x21: \"电量不足，请充电\"\n  0x99: \"custom\"\n"), 0o644))

	m, err := LoadCodeMessages(path)
	require.NoError(t, err)
	assert.Equal(t, "电量不足，请充电", m.Message(CodeBatteryLow))
	assert.Equal(t, "custom", m.Message(0x99))
	assert.Equal(t, "Error: update failed", m.Message(CodeUpdateFailed))
	assert.Equal(t, "", m.Message(0x01))

	_, err = LoadCodeMessages(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadCodeMessages_ShippedFile(t *testing.T) {
	m, err := LoadCodeMessages(filepath.Join("..", "..", "..", "configs", "code_messages.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, m.Message(CodeBatteryLow))
	assert.NotEmpty(t, m.Message(CodeUpdateFailed))
}
