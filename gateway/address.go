package gateway

import (
	"strconv"
	"strings"

	"github.com/fieldgw/igw/core"
)

// ParseAddress converts a protocol's shorthand address string into a
// ProtocolAddress. The protocol keyword is matched case-insensitively;
// everything else is strict.
func ParseAddress(protocol, address string) (core.ProtocolAddress, error) {
	switch strings.ToLower(protocol) {
	case "modbus":
		return parseModbusAddress(address)
	case "iec104":
		return parseIec104Address(address)
	case "opcua":
		return parseOpcUaAddress(address)
	case "can":
		return core.GenericAddr(address), nil
	case "gpio":
		return parseGpioAddress(address)
	case "virtual":
		return core.VirtualAddr(core.VirtualAddress{Tag: address}), nil
	default:
		return core.ProtocolAddress{}, core.ConfigErr("unknown protocol %q", protocol)
	}
}

func parseModbusAddress(address string) (core.ProtocolAddress, error) {
	parts := strings.Split(address, ":")
	switch len(parts) {
	case 2:
		slave, err := strconv.ParseUint(parts[0], 10, 8)
		if err != nil {
			return core.ProtocolAddress{}, core.ConfigErr("invalid modbus slave_id %q", parts[0])
		}
		register, err := strconv.ParseUint(parts[1], 10, 16)
		if err != nil {
			return core.ProtocolAddress{}, core.ConfigErr("invalid modbus register %q", parts[1])
		}
		return core.ModbusAddr(core.HoldingRegister(uint8(slave), uint16(register), core.FormatUInt16)), nil
	case 3:
		slave, err := strconv.ParseUint(parts[0], 10, 8)
		if err != nil {
			return core.ProtocolAddress{}, core.ConfigErr("invalid modbus slave_id %q", parts[0])
		}
		register, err := strconv.ParseUint(parts[1], 10, 16)
		if err != nil {
			return core.ProtocolAddress{}, core.ConfigErr("invalid modbus register %q", parts[1])
		}
		fc, err := strconv.ParseUint(parts[2], 10, 8)
		if err != nil {
			return core.ProtocolAddress{}, core.ConfigErr("invalid modbus function_code %q", parts[2])
		}
		return core.ModbusAddr(core.ModbusAddress{
			SlaveID:      uint8(slave),
			Register:     uint16(register),
			FunctionCode: uint8(fc),
			Format:       core.FormatUInt16,
			ByteOrder:    core.Abcd,
		}), nil
	default:
		return core.ProtocolAddress{}, core.ConfigErr("invalid modbus address %q: expected 'slave:register' or 'slave:register:fc'", address)
	}
}

func parseIec104Address(address string) (core.ProtocolAddress, error) {
	parts := strings.Split(address, ":")
	switch len(parts) {
	case 1:
		ioa, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return core.ProtocolAddress{}, core.ConfigErr("invalid iec104 ioa %q", parts[0])
		}
		return core.Iec104Addr(core.Iec104Address{IOA: uint32(ioa), TypeID: 0, CommonAddress: 1}), nil
	case 2:
		ioa, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return core.ProtocolAddress{}, core.ConfigErr("invalid iec104 ioa %q", parts[0])
		}
		typeID, err := strconv.ParseUint(parts[1], 10, 8)
		if err != nil {
			return core.ProtocolAddress{}, core.ConfigErr("invalid iec104 type_id %q", parts[1])
		}
		return core.Iec104Addr(core.Iec104Address{IOA: uint32(ioa), TypeID: uint8(typeID), CommonAddress: 1}), nil
	default:
		return core.ProtocolAddress{}, core.ConfigErr("invalid iec104 address %q: expected 'ioa' or 'ioa:type_id'", address)
	}
}

func parseOpcUaAddress(address string) (core.ProtocolAddress, error) {
	var namespace uint64
	nodeID := address

	if strings.HasPrefix(address, "ns=") {
		semi := strings.IndexByte(address, ';')
		if semi < 0 {
			return core.ProtocolAddress{}, core.ConfigErr("invalid opcua address %q: expected 'ns=N;i=ID' or 'ns=N;s=Name'", address)
		}
		var err error
		namespace, err = strconv.ParseUint(address[3:semi], 10, 16)
		if err != nil {
			return core.ProtocolAddress{}, core.ConfigErr("invalid opcua namespace %q", address[3:semi])
		}
		nodeID = address[semi+1:]
	}

	if !hasAnyPrefix(nodeID, "i=", "s=", "g=", "b=") {
		return core.ProtocolAddress{}, core.ConfigErr("invalid opcua node id %q: expected 'i=N', 's=Name', 'g=GUID', or 'b=Base64'", nodeID)
	}

	return core.OpcUaAddr(core.OpcUaAddress{NodeID: nodeID, NamespaceIndex: uint16(namespace)}), nil
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func parseGpioAddress(address string) (core.ProtocolAddress, error) {
	parts := strings.Split(address, ":")
	switch len(parts) {
	case 1:
		pin, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return core.ProtocolAddress{}, core.ConfigErr("invalid gpio pin %q", parts[0])
		}
		return core.GpioAddr(core.DigitalInput("gpiochip0", uint32(pin))), nil
	case 2:
		pin, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return core.ProtocolAddress{}, core.ConfigErr("invalid gpio pin %q", parts[1])
		}
		return core.GpioAddr(core.DigitalInput(parts[0], uint32(pin))), nil
	case 3:
		pin, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return core.ProtocolAddress{}, core.ConfigErr("invalid gpio pin %q", parts[1])
		}
		dir, err := parseGpioDirection(parts[2])
		if err != nil {
			return core.ProtocolAddress{}, err
		}
		addr := core.GpioAddress{Chip: parts[0], Pin: uint32(pin), Direction: dir}
		return core.GpioAddr(addr), nil
	default:
		return core.ProtocolAddress{}, core.ConfigErr("invalid gpio address %q: expected 'pin', 'chip:pin', or 'chip:pin:direction'", address)
	}
}

func parseGpioDirection(s string) (core.GpioDirection, error) {
	switch strings.ToLower(s) {
	case "input", "in", "di":
		return core.GpioInput, nil
	case "output", "out", "do":
		return core.GpioOutput, nil
	default:
		return 0, core.ConfigErr("invalid gpio direction %q: expected input or output", s)
	}
}
