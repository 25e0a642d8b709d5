package vmu

import "fmt"

// OpCode 升级协议操作码
type OpCode uint8

const (
	OpStartReq            OpCode = 0x01
	OpStartCfm            OpCode = 0x02
	OpDataBytesReq        OpCode = 0x03
	OpData                OpCode = 0x04
	OpSuspendInd          OpCode = 0x05 // 已废弃
	OpResumeInd           OpCode = 0x06 // 已废弃
	OpAbortReq            OpCode = 0x07
	OpAbortCfm            OpCode = 0x08
	OpProgressReq         OpCode = 0x09 // 已废弃
	OpProgressCfm         OpCode = 0x0A // 已废弃
	OpTransferCompleteInd OpCode = 0x0B
	OpTransferCompleteRes OpCode = 0x0C
	OpInProgressInd       OpCode = 0x0D // 已废弃
	OpInProgressRes       OpCode = 0x0E
	OpCommitReq           OpCode = 0x0F
	OpCommitCfm           OpCode = 0x10
	OpErrorWarnInd        OpCode = 0x11
	OpCompleteInd         OpCode = 0x12
	OpSyncReq             OpCode = 0x13
	OpSyncCfm             OpCode = 0x14
	OpStartDataReq        OpCode = 0x15
	OpIsValidationDoneReq OpCode = 0x16
	OpIsValidationDoneCfm OpCode = 0x17
	OpSyncAfterRebootReq  OpCode = 0x18 // 已废弃
	OpVersionReq          OpCode = 0x19
	OpVersionCfm          OpCode = 0x1A
	OpVariantReq          OpCode = 0x1B
	OpVariantCfm          OpCode = 0x1C
	OpEraseSQIFReq        OpCode = 0x1D
	OpEraseSQIFCfm        OpCode = 0x1E
	OpErrorWarnRes        OpCode = 0x1F
)

// 载荷取值
const (
	SyncReqLength = 4 // SYNC_REQ 携带 MD5 末4字节

	DataNotLastPacket = 0x00
	DataLastPacket    = 0x01

	StartCfmSuccess         = 0x00
	StartCfmAppNotReady     = 0x09
	DataBytesReqLength      = 8
	ErrorWarnResLength      = 2
	ResponseContinue        = 0x00
	ResponseAbort           = 0x01
	EraseSQIFCfmPlaceholder = 0x00
)

var opNames = map[OpCode]string{
	OpStartReq:            "UPDATE_START_REQ",
	OpStartCfm:            "UPDATE_START_CFM",
	OpDataBytesReq:        "UPDATE_DATA_BYTES_REQ",
	OpData:                "UPDATE_DATA",
	OpSuspendInd:          "UPDATE_SUSPEND_IND",
	OpResumeInd:           "UPDATE_RESUME_IND",
	OpAbortReq:            "UPDATE_ABORT_REQ",
	OpAbortCfm:            "UPDATE_ABORT_CFM",
	OpProgressReq:         "UPDATE_PROGRESS_REQ",
	OpProgressCfm:         "UPDATE_PROGRESS_CFM",
	OpTransferCompleteInd: "UPDATE_TRANSFER_COMPLETE_IND",
	OpTransferCompleteRes: "UPDATE_TRANSFER_COMPLETE_RES",
	OpInProgressInd:       "UPDATE_IN_PROGRESS_IND",
	OpInProgressRes:       "UPDATE_IN_PROGRESS_RES",
	OpCommitReq:           "UPDATE_COMMIT_REQ",
	OpCommitCfm:           "UPDATE_COMMIT_CFM",
	OpErrorWarnInd:        "UPDATE_ERROR_WARN_IND",
	OpCompleteInd:         "UPDATE_COMPLETE_IND",
	OpSyncReq:             "UPDATE_SYNC_REQ",
	OpSyncCfm:             "UPDATE_SYNC_CFM",
	OpStartDataReq:        "UPDATE_START_DATA_REQ",
	OpIsValidationDoneReq: "UPDATE_IS_VALIDATION_DONE_REQ",
	OpIsValidationDoneCfm: "UPDATE_IS_VALIDATION_DONE_CFM",
	OpSyncAfterRebootReq:  "UPDATE_SYNC_AFTER_REBOOT_REQ",
	OpVersionReq:          "UPDATE_VERSION_REQ",
	OpVersionCfm:          "UPDATE_VERSION_CFM",
	OpVariantReq:          "UPDATE_VARIANT_REQ",
	OpVariantCfm:          "UPDATE_VARIANT_CFM",
	OpEraseSQIFReq:        "UPDATE_ERASE_SQIF_REQ",
	OpEraseSQIFCfm:        "UPDATE_ERASE_SQIF_CFM",
	OpErrorWarnRes:        "UPDATE_ERROR_WARN_RES",
}

func (o OpCode) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("UPDATE_0x%02X", uint8(o))
}

// Deprecated 已废弃但仍可能出现在旧固件中的操作码
func (o OpCode) Deprecated() bool {
	switch o {
	case OpSuspendInd, OpResumeInd, OpProgressReq, OpProgressCfm, OpInProgressInd, OpSyncAfterRebootReq:
		return true
	}
	return false
}
