package core

// DataFormat is the wire representation of a point's raw value.
type DataFormat int

const (
	FormatBool DataFormat = iota
	FormatUInt16
	FormatInt16
	FormatUInt32
	FormatInt32
	FormatUInt64
	FormatInt64
	FormatFloat32
	FormatFloat64
	FormatString
)

// RegisterCount returns the number of 16-bit Modbus registers this format
// spans.
func (f DataFormat) RegisterCount() uint16 {
	switch f {
	case FormatBool, FormatUInt16, FormatInt16:
		return 1
	case FormatUInt32, FormatInt32, FormatFloat32:
		return 2
	case FormatUInt64, FormatInt64, FormatFloat64:
		return 4
	case FormatString:
		return 8
	default:
		return 1
	}
}

// ByteSize returns the format's width in bytes.
func (f DataFormat) ByteSize() int {
	switch f {
	case FormatBool:
		return 1
	case FormatUInt16, FormatInt16:
		return 2
	case FormatUInt32, FormatInt32, FormatFloat32:
		return 4
	case FormatUInt64, FormatInt64, FormatFloat64:
		return 8
	case FormatString:
		return 16
	default:
		return 1
	}
}

// ByteOrder controls how multi-register values are assembled.
type ByteOrder int

const (
	// Abcd is big-endian / network byte order: register[0] holds the
	// most significant 16 bits, most significant byte first.
	Abcd ByteOrder = iota
	// Dcba is full little-endian: both word and byte order reversed.
	Dcba
	// Badc swaps the two bytes within each register but keeps word order.
	Badc
	// Cdab swaps register (word) order but keeps byte order within each.
	Cdab
)

func (o ByteOrder) String() string {
	switch o {
	case Abcd:
		return "ABCD"
	case Dcba:
		return "DCBA"
	case Badc:
		return "BADC"
	case Cdab:
		return "CDAB"
	default:
		return "ABCD"
	}
}

// ProtocolAddress is the closed sum of protocol-specific point addresses.
// Exactly one of the embedded pointers is non-nil.
type ProtocolAddress struct {
	Modbus  *ModbusAddress
	Iec104  *Iec104Address
	OpcUa   *OpcUaAddress
	Virtual *VirtualAddress
	Gpio    *GpioAddress
	Generic *string
}

func ModbusAddr(a ModbusAddress) ProtocolAddress  { return ProtocolAddress{Modbus: &a} }
func Iec104Addr(a Iec104Address) ProtocolAddress  { return ProtocolAddress{Iec104: &a} }
func OpcUaAddr(a OpcUaAddress) ProtocolAddress    { return ProtocolAddress{OpcUa: &a} }
func VirtualAddr(a VirtualAddress) ProtocolAddress { return ProtocolAddress{Virtual: &a} }
func GpioAddr(a GpioAddress) ProtocolAddress      { return ProtocolAddress{Gpio: &a} }
func GenericAddr(s string) ProtocolAddress        { return ProtocolAddress{Generic: &s} }

// Protocol names the active variant, for logging and error messages.
func (a ProtocolAddress) Protocol() string {
	switch {
	case a.Modbus != nil:
		return "modbus"
	case a.Iec104 != nil:
		return "iec104"
	case a.OpcUa != nil:
		return "opcua"
	case a.Virtual != nil:
		return "virtual"
	case a.Gpio != nil:
		return "gpio"
	case a.Generic != nil:
		return "generic"
	default:
		return "none"
	}
}

// ModbusAddress identifies a value within a Modbus slave's register map.
type ModbusAddress struct {
	SlaveID      uint8
	FunctionCode uint8
	Register     uint16
	Format       DataFormat
	ByteOrder    ByteOrder
	// BitPosition, when set, selects a single bit (0-15) out of the
	// register's raw 16-bit value for Bool format reads/writes via FC03/04.
	BitPosition *uint8
}

// HoldingRegister builds an FC03 address with the default ABCD byte order.
func HoldingRegister(slaveID uint8, register uint16, format DataFormat) ModbusAddress {
	return ModbusAddress{SlaveID: slaveID, FunctionCode: 3, Register: register, Format: format}
}

// InputRegister builds an FC04 address with the default ABCD byte order.
func InputRegister(slaveID uint8, register uint16, format DataFormat) ModbusAddress {
	return ModbusAddress{SlaveID: slaveID, FunctionCode: 4, Register: register, Format: format}
}

// Coil builds an FC01 address.
func Coil(slaveID uint8, register uint16) ModbusAddress {
	return ModbusAddress{SlaveID: slaveID, FunctionCode: 1, Register: register, Format: FormatBool}
}

// DiscreteInput builds an FC02 address.
func DiscreteInput(slaveID uint8, register uint16) ModbusAddress {
	return ModbusAddress{SlaveID: slaveID, FunctionCode: 2, Register: register, Format: FormatBool}
}

// RegisterCount returns how many 16-bit registers this address spans.
func (a ModbusAddress) RegisterCount() uint16 { return a.Format.RegisterCount() }

// IsWrite reports whether this address targets a write function code.
func (a ModbusAddress) IsWrite() bool {
	switch a.FunctionCode {
	case 5, 6, 15, 16:
		return true
	default:
		return false
	}
}

// Iec104Address identifies an IEC 60870-5-104 information object.
type Iec104Address struct {
	IOA           uint32
	TypeID        uint8
	CommonAddress uint16
}

// OpcUaAddress identifies an OPC UA node.
type OpcUaAddress struct {
	NodeID         string
	NamespaceIndex uint16
}

// VirtualAddress identifies a point within the in-memory virtual channel.
type VirtualAddress struct {
	Group string // empty means ungrouped
	Tag   string
}

// GpioDirection is the pin's configured role.
type GpioDirection int

const (
	GpioInput GpioDirection = iota
	GpioOutput
)

// GpioAddress identifies a sysfs-exposed GPIO line.
type GpioAddress struct {
	Chip      string
	Pin       uint32
	Direction GpioDirection
	ActiveLow bool
}

func DigitalInput(chip string, pin uint32) GpioAddress {
	return GpioAddress{Chip: chip, Pin: pin, Direction: GpioInput}
}

func DigitalOutput(chip string, pin uint32) GpioAddress {
	return GpioAddress{Chip: chip, Pin: pin, Direction: GpioOutput}
}
