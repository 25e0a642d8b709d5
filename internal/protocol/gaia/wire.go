package gaia

// GAIA 帧格式常量
// 格式：SOF(1) + version(1) + flags(1) + len(1) + vendorID(2) + commandID(2) + payload(len) + [check(1)]
const (
	SOF             = 0xFF // 帧起始标记（无转义）
	ProtocolVersion = 0x01

	FlagCheck    = 0x01 // 帧尾带异或校验
	DefaultFlags = 0x00

	HeaderSize = 8   // 帧头长度
	MaxPayload = 254 // 最大载荷长度
	MaxPacket  = HeaderSize + MaxPayload + 1

	offsetSOF       = 0
	offsetVersion   = 1
	offsetFlags     = 2
	offsetLength    = 3
	offsetVendorID  = 4
	offsetCommandID = 6
	offsetPayload   = HeaderSize

	CommandMask = 0x7FFF // 命令码掩码
	AckMask     = 0x8000 // 应答位
)

// 厂商ID
const (
	VendorNone uint16 = 0x7FFE
	VendorCSR  uint16 = 0x000A
)

// 命令码（仅列出本客户端关心的部分）
const (
	CommandGetAPIVersion          uint16 = 0x0300
	CommandGetCurrentBatteryLevel uint16 = 0x0302
	CommandGetApplicationVersion  uint16 = 0x0304

	CommandVMUpgradeConnect    uint16 = 0x0640
	CommandVMUpgradeDisconnect uint16 = 0x0641
	CommandVMUpgradeControl    uint16 = 0x0642
	CommandVMUpgradeData       uint16 = 0x0643

	CommandNoOperation uint16 = 0x0700

	CommandRegisterNotification uint16 = 0x4001
	CommandCancelNotification   uint16 = 0x4002
	CommandEventNotification    uint16 = 0x4003
	CommandGetNotification      uint16 = 0x4081
)

// CommandName 返回命令码的可读名称，未知命令返回十六进制
func CommandName(cmd uint16) string {
	switch cmd & CommandMask {
	case CommandGetAPIVersion:
		return "GET_API_VERSION"
	case CommandGetCurrentBatteryLevel:
		return "GET_CURRENT_BATTERY_LEVEL"
	case CommandGetApplicationVersion:
		return "GET_APPLICATION_VERSION"
	case CommandVMUpgradeConnect:
		return "VM_UPGRADE_CONNECT"
	case CommandVMUpgradeDisconnect:
		return "VM_UPGRADE_DISCONNECT"
	case CommandVMUpgradeControl:
		return "VM_UPGRADE_CONTROL"
	case CommandVMUpgradeData:
		return "VM_UPGRADE_DATA"
	case CommandNoOperation:
		return "NO_OPERATION"
	case CommandRegisterNotification:
		return "REGISTER_NOTIFICATION"
	case CommandCancelNotification:
		return "CANCEL_NOTIFICATION"
	case CommandEventNotification:
		return "EVENT_NOTIFICATION"
	case CommandGetNotification:
		return "GET_NOTIFICATION"
	default:
		return HexCommand(cmd)
	}
}
